// Package store is the storage gateway: it translates quote and logo CRUD
// operations into calls against the remote Dropbox file store, obtaining a
// fresh access token from the auth manager before every remote call.
package store

import (
	"context"
	"log"
	"regexp"

	"dtfquotes-go/internal/auth"
	"dtfquotes-go/internal/dropbox"
)

const (
	quotesDir = "/dtf-quotes"
	logosDir  = "/customer_logos"

	metadataSuffix = "_metadata.json"
)

// TokenSource yields a currently valid access token, refreshing when needed.
// *auth.Manager satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Gateway exposes the quote and logo storage operations. It holds no
// per-request state; every call fetches its token immediately before use and
// never reuses one across the sub-calls of a multi-step operation.
type Gateway struct {
	tokens TokenSource
	client *dropbox.Client
	logger *log.Logger
}

// NewGateway creates a Gateway on top of the token manager and Dropbox client.
func NewGateway(tokens *auth.Manager, client *dropbox.Client, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.Default()
	}
	return &Gateway{
		tokens: tokens,
		client: client,
		logger: logger,
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeName reduces a display name to a filesystem-safe token: every run
// of characters outside [A-Za-z0-9_-] becomes an underscore apiece.
func sanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// quoteDocumentPath derives the rendered document path from the quote's
// display name and identifier.
func quoteDocumentPath(name, id string) string {
	return quotesDir + "/" + sanitizeName(name) + "_" + id + ".html"
}

// quoteMetadataPath derives the metadata document path from the identifier.
func quoteMetadataPath(id string) string {
	return quotesDir + "/" + id + metadataSuffix
}

// logoMetadataPath is the per-customer logo metadata document path.
func logoMetadataPath(customerID string) string {
	return logosDir + "/" + customerID + "/logo_metadata.json"
}

// logoFilePath is the per-customer logo binary path.
func logoFilePath(customerID, fileName string) string {
	return logosDir + "/" + customerID + "/" + fileName
}
