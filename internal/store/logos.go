package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dtfquotes-go/internal/dropbox"
	"dtfquotes-go/internal/metrics"
	"dtfquotes-go/pkg/models"
)

// SaveCustomerLogo stores one logo per customer: the binary under the
// customer's folder and a metadata document next to it. A subsequent save
// overwrites the metadata record for that customer.
func (g *Gateway) SaveCustomerLogo(ctx context.Context, customerID, fileName string, content []byte, meta models.Logo) error {
	if customerID == "" {
		return fmt.Errorf("customer ID cannot be empty")
	}
	if fileName == "" {
		return fmt.Errorf("logo file name cannot be empty")
	}

	if len(content) > 0 {
		token, err := g.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if err := g.client.Upload(ctx, token, logoFilePath(customerID, fileName), content); err != nil {
			metrics.QuoteOperations.WithLabelValues("save_logo", "error").Inc()
			return &RemoteOperationError{Op: "upload logo", Err: err}
		}
	}

	if meta == nil {
		meta = models.Logo{}
	}
	meta["file_name"] = fileName
	meta["customer_id"] = customerID
	meta["uploaded_at"] = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling logo metadata: %w", err)
	}

	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if err := g.client.Upload(ctx, token, logoMetadataPath(customerID), payload); err != nil {
		metrics.QuoteOperations.WithLabelValues("save_logo", "error").Inc()
		return &RemoteOperationError{Op: "upload logo metadata", Err: err}
	}

	metrics.QuoteOperations.WithLabelValues("save_logo", "success").Inc()
	return nil
}

// LoadCustomerLogo returns the customer's logo metadata, or nil (not an
// error) when no logo has been saved.
func (g *Gateway) LoadCustomerLogo(ctx context.Context, customerID string) (models.Logo, error) {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	content, err := g.client.Download(ctx, token, logoMetadataPath(customerID))
	if err != nil {
		if dropbox.IsNotFound(err) {
			return nil, nil
		}
		return nil, &RemoteOperationError{Op: "download logo metadata", Err: err}
	}

	var logo models.Logo
	if err := json.Unmarshal(content, &logo); err != nil {
		return nil, fmt.Errorf("parsing logo metadata for %q: %w", customerID, err)
	}
	return logo, nil
}

// DeleteCustomerLogo removes the referenced binary and then the metadata
// document. Deleting a logo that does not exist is a successful no-op.
func (g *Gateway) DeleteCustomerLogo(ctx context.Context, customerID string) error {
	logo, err := g.LoadCustomerLogo(ctx, customerID)
	if err != nil {
		return err
	}
	if logo == nil {
		return nil
	}

	if fileName := logo.FileName(); fileName != "" {
		token, err := g.tokens.Token(ctx)
		if err != nil {
			return err
		}
		if err := g.client.Delete(ctx, token, logoFilePath(customerID, fileName)); err != nil && !dropbox.IsNotFound(err) {
			metrics.QuoteOperations.WithLabelValues("delete_logo", "error").Inc()
			return &RemoteOperationError{Op: "delete logo", Err: err}
		}
	}

	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if err := g.client.Delete(ctx, token, logoMetadataPath(customerID)); err != nil && !dropbox.IsNotFound(err) {
		metrics.QuoteOperations.WithLabelValues("delete_logo", "error").Inc()
		return &RemoteOperationError{Op: "delete logo metadata", Err: err}
	}

	metrics.QuoteOperations.WithLabelValues("delete_logo", "success").Inc()
	return nil
}
