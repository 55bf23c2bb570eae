package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is a parsed 5-field cron expression (minute, hour, day, month,
// weekday).
type Schedule struct {
	minutes  map[int]bool // 0-59
	hours    map[int]bool // 0-23
	days     map[int]bool // 1-31
	months   map[int]bool // 1-12
	weekdays map[int]bool // 0-6 (Sunday=0)
}

// ParseCron parses a 5-field cron expression.
func ParseCron(expr string) (*Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression: expected 5 fields, got %d", len(fields))
	}

	minutes, err := parseCronField(fields[0], 0, 59)
	if err != nil {
		return nil, fmt.Errorf("minute: %w", err)
	}
	hours, err := parseCronField(fields[1], 0, 23)
	if err != nil {
		return nil, fmt.Errorf("hour: %w", err)
	}
	days, err := parseCronField(fields[2], 1, 31)
	if err != nil {
		return nil, fmt.Errorf("day: %w", err)
	}
	months, err := parseCronField(fields[3], 1, 12)
	if err != nil {
		return nil, fmt.Errorf("month: %w", err)
	}
	weekdays, err := parseCronField(fields[4], 0, 6)
	if err != nil {
		return nil, fmt.Errorf("weekday: %w", err)
	}

	return &Schedule{
		minutes:  minutes,
		hours:    hours,
		days:     days,
		months:   months,
		weekdays: weekdays,
	}, nil
}

// parseCronField parses one cron field (supports *, values, lists and ranges).
func parseCronField(field string, min, max int) (map[int]bool, error) {
	result := make(map[int]bool)
	if field == "*" {
		for i := min; i <= max; i++ {
			result[i] = true
		}
		return result, nil
	}
	for _, part := range strings.Split(field, ",") {
		if strings.Contains(part, "-") {
			bounds := strings.Split(part, "-")
			if len(bounds) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err1 := strconv.Atoi(bounds[0])
			end, err2 := strconv.Atoi(bounds[1])
			if err1 != nil || err2 != nil || start > end || start < min || end > max {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			for i := start; i <= end; i++ {
				result[i] = true
			}
			continue
		}
		val, err := strconv.Atoi(part)
		if err != nil || val < min || val > max {
			return nil, fmt.Errorf("invalid value: %s", part)
		}
		result[val] = true
	}
	return result, nil
}

// Next returns the next time after 'after' that matches the schedule.
func (s *Schedule) Next(after time.Time) time.Time {
	// Brute-force: advance minute by minute until every field matches.
	t := after.Add(time.Minute).Truncate(time.Minute)
	for {
		if s.minutes[t.Minute()] &&
			s.hours[t.Hour()] &&
			s.days[t.Day()] &&
			s.months[int(t.Month())] &&
			s.weekdays[int(t.Weekday())] {
			return t
		}
		t = t.Add(time.Minute)
	}
}
