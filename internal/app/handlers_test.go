package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dtfquotes-go/internal/auth"
	"dtfquotes-go/internal/config"
	"dtfquotes-go/internal/dropbox"
	"dtfquotes-go/internal/store"
	"dtfquotes-go/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote is a minimal in-memory Dropbox for handler tests.
type fakeRemote struct {
	mu       sync.Mutex
	files    map[string][]byte
	failList bool
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/files/upload", func(w http.ResponseWriter, r *http.Request) {
		var arg struct {
			Path string `json:"path"`
		}
		json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg)
		content, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.files[arg.Path] = content
		f.mu.Unlock()
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/files/download", func(w http.ResponseWriter, r *http.Request) {
		var arg struct {
			Path string `json:"path"`
		}
		json.Unmarshal([]byte(r.Header.Get("Dropbox-API-Arg")), &arg)
		f.mu.Lock()
		content, ok := f.files[arg.Path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error_summary": "path/not_found/..."}`))
			return
		}
		w.Write(content)
	})
	mux.HandleFunc("/files/delete_v2", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		_, ok := f.files[body.Path]
		delete(f.files, body.Path)
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error_summary": "path_lookup/not_found/..."}`))
			return
		}
		w.Write([]byte(`{"metadata": {}}`))
	})
	mux.HandleFunc("/files/list_folder", func(w http.ResponseWriter, r *http.Request) {
		if f.failList {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error_summary": "internal_error/..."}`))
			return
		}
		var body struct {
			Path string `json:"path"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		type entry struct {
			Tag       string `json:".tag"`
			Name      string `json:"name"`
			PathLower string `json:"path_lower"`
		}
		var entries []entry
		f.mu.Lock()
		for path := range f.files {
			if strings.HasPrefix(path, body.Path+"/") && !strings.Contains(strings.TrimPrefix(path, body.Path+"/"), "/") {
				entries = append(entries, entry{Tag: "file", Name: strings.TrimPrefix(path, body.Path+"/"), PathLower: path})
			}
		}
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"entries": entries})
	})
	mux.HandleFunc("/sharing/create_shared_link_with_settings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"url": "https://dropbox.example/s/link"})
	})
	return mux
}

// newTestApp wires an Application around fake remote endpoints. No real
// listeners: tests drive the route handler directly.
func newTestApp(t *testing.T, apiKey string) (*Application, http.Handler, *fakeRemote) {
	t.Helper()

	remote := &fakeRemote{files: make(map[string][]byte)}
	remoteSrv := httptest.NewServer(remote.handler())
	t.Cleanup(remoteSrv.Close)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok", "token_type": "bearer", "expires_in": 3600,
		})
	}))
	t.Cleanup(tokenSrv.Close)

	logger := log.New(io.Discard, "", 0)

	manager := auth.NewManager("key", "secret", "refresh", logger)
	manager.SetTokenURL(tokenSrv.URL)

	client := dropbox.NewClient()
	client.SetBaseURLs(remoteSrv.URL, remoteSrv.URL)

	cfg := &config.Config{APIKey: apiKey}

	app := &Application{
		Config:  cfg,
		Logger:  logger,
		Auth:    manager,
		Gateway: store.NewGateway(manager, client, logger),
	}
	return app, app.routes(), remote
}

func doJSON(t *testing.T, handler http.Handler, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSaveAndLoadQuote(t *testing.T) {
	_, handler, remote := newTestApp(t, "")

	quote := models.Quote{QuoteID: "q1", QuoteName: "Order #1", CustomerID: "c1", TotalTransfers: 50}
	rec := doJSON(t, handler, http.MethodPost, "/api/quotes", "", quote)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.SaveResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "q1", result.QuoteID)
	assert.Equal(t, "/dtf-quotes/Order__1_q1.html", result.Path)
	require.NotNil(t, result.ShareURL)

	remote.mu.Lock()
	_, docExists := remote.files["/dtf-quotes/Order__1_q1.html"]
	remote.mu.Unlock()
	assert.True(t, docExists)

	rec = doJSON(t, handler, http.MethodGet, "/api/quotes/q1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded models.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	assert.Equal(t, 50, loaded.TotalTransfers)
}

func TestLoadQuote_DocumentFormat(t *testing.T) {
	_, handler, _ := newTestApp(t, "")

	rec := doJSON(t, handler, http.MethodPost, "/api/quotes", "", models.Quote{QuoteID: "q2", QuoteName: "Doc", CustomerID: "c1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/quotes/q2?format=document", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<html>")
}

func TestLoadQuote_NotFound(t *testing.T) {
	_, handler, _ := newTestApp(t, "")

	rec := doJSON(t, handler, http.MethodGet, "/api/quotes/ghost", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var errResp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "not_found", errResp.Kind)
}

func TestSaveQuote_BadPayload(t *testing.T) {
	_, handler, _ := newTestApp(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/quotes", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteQuote(t *testing.T) {
	_, handler, _ := newTestApp(t, "")

	rec := doJSON(t, handler, http.MethodPost, "/api/quotes", "", models.Quote{QuoteID: "q3", QuoteName: "Bye", CustomerID: "c1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodDelete, "/api/quotes/q3", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/quotes/q3", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListCustomerQuotes(t *testing.T) {
	_, handler, _ := newTestApp(t, "")

	for _, q := range []models.Quote{
		{QuoteID: "qa", QuoteName: "A1", CustomerID: "A"},
		{QuoteID: "qb", QuoteName: "B1", CustomerID: "B"},
	} {
		rec := doJSON(t, handler, http.MethodPost, "/api/quotes", "", q)
		require.Equal(t, http.StatusOK, rec.Code)
		time.Sleep(5 * time.Millisecond) // distinct creation timestamps
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/customers/A/quotes", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing store.QuoteListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.False(t, listing.Degraded)
	require.Len(t, listing.Quotes, 1)
	assert.Equal(t, "qa", listing.Quotes[0].QuoteID)
}

func TestListCustomerQuotes_DegradedPassthrough(t *testing.T) {
	_, handler, remote := newTestApp(t, "")
	remote.failList = true

	rec := doJSON(t, handler, http.MethodGet, "/api/customers/A/quotes", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing store.QuoteListing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.True(t, listing.Degraded)
	assert.Empty(t, listing.Quotes)
}

func TestLogoLifecycle(t *testing.T) {
	_, handler, _ := newTestApp(t, "")

	// Absent logo loads as null.
	rec := doJSON(t, handler, http.MethodGet, "/api/customers/c1/logo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"logo": null}`, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPost, "/api/customers/c1/logo", "", logoPayload{
		FileName: "logo.png",
		Content:  "iVBORw0KGgo=",
		Metadata: models.Logo{"source": "test"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodGet, "/api/customers/c1/logo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var loaded struct {
		Logo models.Logo `json:"logo"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	assert.Equal(t, "logo.png", loaded.Logo.FileName())

	rec = doJSON(t, handler, http.MethodDelete, "/api/customers/c1/logo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Deleting again is still a success.
	rec = doJSON(t, handler, http.MethodDelete, "/api/customers/c1/logo", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAPIKey(t *testing.T) {
	_, handler, _ := newTestApp(t, "secret-key")

	rec := doJSON(t, handler, http.MethodGet, "/api/quotes/q1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/quotes/q1", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A correct key reaches the handler (404: the quote does not exist).
	rec = doJSON(t, handler, http.MethodGet, "/api/quotes/q1", "secret-key", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Health stays open.
	rec = doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	_, handler, _ := newTestApp(t, "")

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}
