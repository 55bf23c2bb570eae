package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"dtfquotes-go/internal/dropbox"
	"dtfquotes-go/internal/metrics"
	"dtfquotes-go/internal/render"
	"dtfquotes-go/pkg/models"

	"github.com/google/uuid"
)

// Format selects what LoadQuote returns.
type Format string

const (
	// FormatMetadata returns the parsed metadata record.
	FormatMetadata Format = "metadata"
	// FormatDocument additionally returns the rendered HTML document.
	FormatDocument Format = "document"
)

// QuoteListing is the result of a customer quote listing. Degraded is set
// when the folder listing itself failed (the list is then empty) and Skipped
// counts individual metadata files that could not be fetched or parsed.
// Callers that care can tell "no quotes" apart from "listing failed".
type QuoteListing struct {
	Quotes   []*models.Quote `json:"quotes"`
	Degraded bool            `json:"degraded"`
	Skipped  int             `json:"skipped"`
}

// SaveQuote renders the quote document, uploads it and the metadata record,
// and best-effort creates a public share link. Uploads always overwrite:
// a save wins regardless of what is already stored (last-write-wins, no
// revision check). Share-link failure never fails the save; the result then
// carries a nil ShareURL.
func (g *Gateway) SaveQuote(ctx context.Context, quote *models.Quote, isUpdate bool) (*models.SaveResult, error) {
	timer := metrics.OperationDuration.WithLabelValues("save_quote")
	start := time.Now()
	defer func() { timer.Observe(time.Since(start).Seconds()) }()

	if quote == nil {
		return nil, fmt.Errorf("quote cannot be nil")
	}
	if quote.QuoteID == "" {
		quote.QuoteID = uuid.NewString()
	}

	now := time.Now().UTC()
	if !isUpdate || quote.CreatedAt.IsZero() {
		quote.CreatedAt = now
	}
	quote.LastUpdated = now

	document, err := render.Document(quote)
	if err != nil {
		metrics.QuoteOperations.WithLabelValues("save_quote", "error").Inc()
		return nil, err
	}

	docPath := quoteDocumentPath(quote.QuoteName, quote.QuoteID)
	quote.DocumentPath = docPath

	token, err := g.tokens.Token(ctx)
	if err != nil {
		metrics.QuoteOperations.WithLabelValues("save_quote", "error").Inc()
		return nil, err
	}
	if err := g.client.Upload(ctx, token, docPath, []byte(document)); err != nil {
		metrics.QuoteOperations.WithLabelValues("save_quote", "error").Inc()
		return nil, &RemoteOperationError{Op: "upload document", Err: err}
	}

	metadata, err := json.MarshalIndent(quote, "", "  ")
	if err != nil {
		metrics.QuoteOperations.WithLabelValues("save_quote", "error").Inc()
		return nil, fmt.Errorf("marshaling quote metadata: %w", err)
	}

	token, err = g.tokens.Token(ctx)
	if err != nil {
		metrics.QuoteOperations.WithLabelValues("save_quote", "error").Inc()
		return nil, err
	}
	if err := g.client.Upload(ctx, token, quoteMetadataPath(quote.QuoteID), metadata); err != nil {
		metrics.QuoteOperations.WithLabelValues("save_quote", "error").Inc()
		return nil, &RemoteOperationError{Op: "upload metadata", Err: err}
	}

	result := &models.SaveResult{
		QuoteID: quote.QuoteID,
		Path:    docPath,
		Quote:   quote,
	}

	// Share link is best effort: a failure is logged and surfaced as a nil
	// link, never as a failed save.
	if token, err = g.tokens.Token(ctx); err == nil {
		url, linkErr := g.client.CreateSharedLink(ctx, token, docPath)
		if linkErr != nil {
			g.logger.Printf("store: share link for %s failed: %v", docPath, linkErr)
		} else {
			result.ShareURL = &url
		}
	} else {
		g.logger.Printf("store: share link token for %s failed: %v", docPath, err)
	}

	metrics.QuoteOperations.WithLabelValues("save_quote", "success").Inc()
	return result, nil
}

// LoadQuote fetches the metadata record for id. With FormatDocument it also
// fetches the rendered HTML content. Returns a NotFoundError when the
// metadata document does not exist.
func (g *Gateway) LoadQuote(ctx context.Context, id string, format Format) (*models.Quote, []byte, error) {
	quote, err := g.fetchQuoteMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if format != FormatDocument {
		return quote, nil, nil
	}

	docPath := quote.DocumentPath
	if docPath == "" {
		docPath = quoteDocumentPath(quote.QuoteName, quote.QuoteID)
	}

	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, nil, err
	}
	content, err := g.client.Download(ctx, token, docPath)
	if err != nil {
		if dropbox.IsNotFound(err) {
			return nil, nil, &NotFoundError{Kind: "quote document", ID: id}
		}
		return nil, nil, &RemoteOperationError{Op: "download document", Err: err}
	}
	return quote, content, nil
}

// LoadCustomerQuotes lists every quote belonging to customerID, newest
// first. The operation degrades instead of failing: a metadata file that
// cannot be fetched or parsed is skipped and counted, and a folder-listing
// failure yields an empty degraded listing. Only token refresh failures
// propagate.
func (g *Gateway) LoadCustomerQuotes(ctx context.Context, customerID string) (*QuoteListing, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	listing := &QuoteListing{Quotes: []*models.Quote{}}

	entries, err := g.client.ListFolder(ctx, token, quotesDir)
	if err != nil {
		g.logger.Printf("store: listing %s failed, returning empty result: %v", quotesDir, err)
		metrics.ListingsDegraded.Inc()
		listing.Degraded = true
		return listing, nil
	}

	for _, entry := range entries {
		if entry.Tag != "file" || !strings.HasSuffix(entry.Name, metadataSuffix) {
			continue
		}

		token, err := g.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		content, err := g.client.Download(ctx, token, entry.PathLower)
		if err != nil {
			g.logger.Printf("store: fetching %s failed, skipping: %v", entry.Name, err)
			listing.Skipped++
			continue
		}

		var quote models.Quote
		if err := json.Unmarshal(content, &quote); err != nil {
			g.logger.Printf("store: parsing %s failed, skipping: %v", entry.Name, err)
			listing.Skipped++
			continue
		}

		if quote.CustomerID == customerID {
			listing.Quotes = append(listing.Quotes, &quote)
		}
	}

	sort.Slice(listing.Quotes, func(i, j int) bool {
		return listing.Quotes[i].CreatedAt.After(listing.Quotes[j].CreatedAt)
	})

	if listing.Skipped > 0 {
		metrics.ListingsDegraded.Inc()
	}
	return listing, nil
}

// DeleteQuote removes the rendered document and then the metadata record.
// When customerID is non-empty it must match the stored record. The two
// deletes have no compensating rollback: if the document delete succeeds and
// the metadata delete fails, an orphaned metadata record remains until a
// retry. A document already gone is not an error, so a retry after such a
// partial failure can still clean up the metadata.
func (g *Gateway) DeleteQuote(ctx context.Context, id, customerID string) error {
	quote, err := g.fetchQuoteMetadata(ctx, id)
	if err != nil {
		return err
	}

	if customerID != "" && quote.CustomerID != customerID {
		return &NotFoundError{Kind: "quote", ID: id}
	}

	docPath := quote.DocumentPath
	if docPath == "" {
		docPath = quoteDocumentPath(quote.QuoteName, quote.QuoteID)
	}

	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if err := g.client.Delete(ctx, token, docPath); err != nil && !dropbox.IsNotFound(err) {
		metrics.QuoteOperations.WithLabelValues("delete_quote", "error").Inc()
		return &RemoteOperationError{Op: "delete document", Err: err}
	}

	token, err = g.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if err := g.client.Delete(ctx, token, quoteMetadataPath(id)); err != nil {
		metrics.QuoteOperations.WithLabelValues("delete_quote", "error").Inc()
		return &RemoteOperationError{Op: "delete metadata", Err: err}
	}

	metrics.QuoteOperations.WithLabelValues("delete_quote", "success").Inc()
	return nil
}

// fetchQuoteMetadata downloads and parses the metadata record for id.
func (g *Gateway) fetchQuoteMetadata(ctx context.Context, id string) (*models.Quote, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	content, err := g.client.Download(ctx, token, quoteMetadataPath(id))
	if err != nil {
		if dropbox.IsNotFound(err) {
			return nil, &NotFoundError{Kind: "quote", ID: id}
		}
		return nil, &RemoteOperationError{Op: "download metadata", Err: err}
	}

	var quote models.Quote
	if err := json.Unmarshal(content, &quote); err != nil {
		return nil, fmt.Errorf("parsing quote metadata %q: %w", id, err)
	}
	return &quote, nil
}
