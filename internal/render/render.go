// Package render turns a quote record into its HTML document. It is pure
// string formatting: no I/O, no control logic beyond iterating the record's
// own fields.
package render

import (
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"dtfquotes-go/pkg/models"
)

// RenderError indicates the document could not be generated from the record.
// Fields default gracefully, so this is not expected in normal operation.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering quote document: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

var documentTemplate = template.Must(template.New("quote").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 40px; color: #222; }
h1 { border-bottom: 2px solid #222; padding-bottom: 8px; }
table { border-collapse: collapse; width: 100%; margin: 16px 0; }
th, td { border: 1px solid #ccc; padding: 8px; text-align: left; }
th { background: #f4f4f4; }
.summary { margin-top: 24px; }
.footer { margin-top: 40px; font-size: 12px; color: #777; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Quote ID: {{.QuoteID}}<br>
Customer: {{.CustomerID}}{{if .CustomerEmail}} ({{.CustomerEmail}}){{end}}<br>
Date: {{.Date}}</p>
{{if .Locations}}<table>
<tr><th>Location</th><th>Width</th><th>Height</th><th>Quantity</th></tr>
{{range .Locations}}<tr><td>{{.Name}}</td><td>{{printf "%.2f" .Width}}</td><td>{{printf "%.2f" .Height}}</td><td>{{.Quantity}}</td></tr>
{{end}}</table>{{end}}
<p>Total transfers: {{.TotalTransfers}}</p>
{{if .Pricing}}<div class="summary"><h2>Pricing</h2><table>
{{range .Pricing}}<tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>
{{end}}</table></div>{{end}}
<div class="footer">Generated {{.Generated}}</div>
</body>
</html>
`))

type pricingRow struct {
	Key   string
	Value string
}

type documentData struct {
	Title          string
	QuoteID        string
	CustomerID     string
	CustomerEmail  string
	Date           string
	Locations      []models.Location
	TotalTransfers int
	Pricing        []pricingRow
	Generated      string
}

// Document renders the HTML document for a quote record.
func Document(quote *models.Quote) (string, error) {
	if quote == nil {
		return "", &RenderError{Err: fmt.Errorf("quote is nil")}
	}

	title := quote.QuoteName
	if title == "" {
		title = "DTF Quote"
	}

	createdAt := quote.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	data := documentData{
		Title:          title,
		QuoteID:        quote.QuoteID,
		CustomerID:     quote.CustomerID,
		CustomerEmail:  quote.CustomerEmail,
		Date:           createdAt.Format("2006-01-02"),
		Locations:      quote.Locations,
		TotalTransfers: quote.TotalTransfers,
		Pricing:        pricingRows(quote.PricingSummary),
		Generated:      time.Now().UTC().Format(time.RFC3339),
	}

	var sb strings.Builder
	if err := documentTemplate.Execute(&sb, data); err != nil {
		return "", &RenderError{Err: err}
	}
	return sb.String(), nil
}

// pricingRows flattens the pricing summary map into stable display rows.
func pricingRows(summary map[string]any) []pricingRow {
	if len(summary) == 0 {
		return nil
	}
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	// Stable ordering for reproducible documents.
	sort.Strings(keys)

	rows := make([]pricingRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, pricingRow{Key: k, Value: fmt.Sprintf("%v", summary[k])})
	}
	return rows
}
