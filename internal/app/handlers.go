package app

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"dtfquotes-go/internal/auth"
	"dtfquotes-go/internal/render"
	"dtfquotes-go/internal/store"
	"dtfquotes-go/pkg/models"
)

// errorResponse is the JSON shape of every error reply.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeJSON serializes v with the given status.
func (a *Application) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.Logger.Printf("writing response: %v", err)
	}
}

// writeError maps typed errors onto HTTP statuses and a machine-usable kind.
func (a *Application) writeError(w http.ResponseWriter, err error) {
	var (
		notFound   *store.NotFoundError
		remote     *store.RemoteOperationError
		refresh    *auth.RefreshError
		configured *auth.ConfigurationError
		renderErr  *render.RenderError
	)

	switch {
	case errors.As(err, &notFound):
		a.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not_found"})
	case errors.As(err, &refresh):
		a.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "token_refresh"})
	case errors.As(err, &configured):
		a.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Kind: "configuration"})
	case errors.As(err, &remote):
		a.writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Kind: "remote_operation"})
	case errors.As(err, &renderErr):
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "render"})
	default:
		a.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: "internal"})
	}
}

// handleHealth reports liveness.
func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSaveQuote creates or updates a quote. The update flag comes from
// the "update" query parameter.
func (a *Application) handleSaveQuote(w http.ResponseWriter, r *http.Request) {
	var quote models.Quote
	if err := json.NewDecoder(r.Body).Decode(&quote); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid quote payload: " + err.Error(), Kind: "bad_request"})
		return
	}

	isUpdate := r.URL.Query().Get("update") == "true"

	result, err := a.Gateway.SaveQuote(r.Context(), &quote, isUpdate)
	if err != nil {
		a.Logger.Printf("save quote %q failed: %v", quote.QuoteID, err)
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, result)
}

// handleLoadQuote returns quote metadata, or the rendered HTML document
// when format=document is requested.
func (a *Application) handleLoadQuote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	format := store.FormatMetadata
	if r.URL.Query().Get("format") == "document" {
		format = store.FormatDocument
	}

	quote, content, err := a.Gateway.LoadQuote(r.Context(), id, format)
	if err != nil {
		a.writeError(w, err)
		return
	}

	if format == store.FormatDocument {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(content)
		return
	}
	a.writeJSON(w, http.StatusOK, quote)
}

// handleDeleteQuote deletes a quote's document and metadata. An optional
// customer_id query parameter validates ownership first.
func (a *Application) handleDeleteQuote(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	customerID := r.URL.Query().Get("customer_id")

	if err := a.Gateway.DeleteQuote(r.Context(), id, customerID); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// handleListCustomerQuotes lists a customer's quotes, newest first. The
// response carries the degraded/skipped markers so callers can tell an
// empty listing from a failed one.
func (a *Application) handleListCustomerQuotes(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")

	listing, err := a.Gateway.LoadCustomerQuotes(r.Context(), customerID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, listing)
}

// logoPayload is the save-logo request body. Content is base64 so the
// binary can travel inside JSON.
type logoPayload struct {
	FileName string      `json:"file_name"`
	Content  string      `json:"content,omitempty"`
	Metadata models.Logo `json:"metadata,omitempty"`
}

// handleSaveLogo stores a customer's logo binary and metadata.
func (a *Application) handleSaveLogo(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")

	var payload logoPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid logo payload: " + err.Error(), Kind: "bad_request"})
		return
	}

	var content []byte
	if payload.Content != "" {
		var err error
		content, err = base64.StdEncoding.DecodeString(payload.Content)
		if err != nil {
			a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid logo content: " + err.Error(), Kind: "bad_request"})
			return
		}
	}

	if err := a.Gateway.SaveCustomerLogo(r.Context(), customerID, payload.FileName, content, payload.Metadata); err != nil {
		a.Logger.Printf("save logo for customer %q failed: %v", customerID, err)
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"customer_id": customerID, "file_name": payload.FileName})
}

// handleLoadLogo returns the customer's logo metadata; a customer without a
// logo gets a null logo, not an error.
func (a *Application) handleLoadLogo(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")

	logo, err := a.Gateway.LoadCustomerLogo(r.Context(), customerID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"logo": logo})
}

// handleDeleteLogo removes the customer's logo; deleting an absent logo
// still reports success.
func (a *Application) handleDeleteLogo(w http.ResponseWriter, r *http.Request) {
	customerID := r.PathValue("customerID")

	if err := a.Gateway.DeleteCustomerLogo(r.Context(), customerID); err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]string{"deleted": customerID})
}
