package models

import "time"

// Quote represents a single quote record as persisted in the remote store.
// The metadata document is the JSON form of this struct.
type Quote struct {
	QuoteID        string         `json:"quote_id"`
	QuoteName      string         `json:"quote_name"`
	CustomerID     string         `json:"customer_id"`
	CustomerEmail  string         `json:"customer_email,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastUpdated    time.Time      `json:"last_updated"`
	QuoteData      map[string]any `json:"quote_data,omitempty"`
	Locations      []Location     `json:"locations,omitempty"`
	TotalTransfers int            `json:"total_transfers"`
	PricingSummary map[string]any `json:"pricing_summary,omitempty"`
	DocumentPath   string         `json:"document_path,omitempty"`
}

// Location is a print location embedded in a quote. It has no identity of
// its own outside the owning quote.
type Location struct {
	Name     string  `json:"name"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Quantity int     `json:"quantity"`
}

// SaveResult is the envelope returned by a successful quote save.
// ShareURL is nil when the share link could not be created.
type SaveResult struct {
	QuoteID  string  `json:"quote_id"`
	Path     string  `json:"path"`
	ShareURL *string `json:"share_url"`
	Quote    *Quote  `json:"quote"`
}

// Logo is the per-customer logo metadata document. It is free-form apart
// from the file_name field, which names the binary stored next to it.
type Logo map[string]any

// FileName returns the logo's binary filename, or "" when unset.
func (l Logo) FileName() string {
	v, ok := l["file_name"].(string)
	if !ok {
		return ""
	}
	return v
}
