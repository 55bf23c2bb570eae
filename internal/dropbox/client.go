// Package dropbox is a thin client for the subset of the Dropbox HTTP API
// this service consumes: upload, download, delete, folder listing and shared
// links. Authentication is the caller's problem; every call takes the bearer
// token to use.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	// DefaultAPIBaseURL serves the JSON RPC endpoints.
	DefaultAPIBaseURL = "https://api.dropboxapi.com/2"
	// DefaultContentBaseURL serves the raw content endpoints.
	DefaultContentBaseURL = "https://content.dropboxapi.com/2"
)

// Entry is a single item returned by ListFolder.
type Entry struct {
	Tag         string `json:".tag"`
	Name        string `json:"name"`
	PathLower   string `json:"path_lower"`
	PathDisplay string `json:"path_display"`
}

// Client calls the Dropbox API over a plain HTTP client.
type Client struct {
	httpClient  *http.Client
	apiBase     string
	contentBase string
}

// NewClient creates a Client against the production Dropbox endpoints.
func NewClient() *Client {
	return &Client{
		httpClient:  http.DefaultClient,
		apiBase:     DefaultAPIBaseURL,
		contentBase: DefaultContentBaseURL,
	}
}

// SetClient sets the underlying HTTP client.
func (c *Client) SetClient(client *http.Client) {
	if client == nil {
		client = http.DefaultClient
	}
	c.httpClient = client
}

// SetBaseURLs overrides the API and content endpoints.
func (c *Client) SetBaseURLs(apiBase, contentBase string) {
	c.apiBase = apiBase
	c.contentBase = contentBase
}

// Upload writes content to path, overwriting any existing file.
func (c *Client) Upload(ctx context.Context, token, path string, content []byte) error {
	arg, err := json.Marshal(map[string]any{
		"path":       path,
		"mode":       "overwrite",
		"autorename": false,
	})
	if err != nil {
		return fmt.Errorf("marshaling upload arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBase+"/files/upload", bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Dropbox-API-Arg", string(arg))
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("files/upload", resp); err != nil {
		return err
	}
	return nil
}

// Download returns the raw content stored at path.
func (c *Client) Download(ctx context.Context, token, path string) ([]byte, error) {
	arg, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return nil, fmt.Errorf("marshaling download arg: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentBase+"/files/download", nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Dropbox-API-Arg", string(arg))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("files/download", resp); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading download body: %w", err)
	}
	return content, nil
}

// Delete removes the file or folder at path.
func (c *Client) Delete(ctx context.Context, token, path string) error {
	var ignored json.RawMessage
	return c.rpc(ctx, token, "files/delete_v2", map[string]string{"path": path}, &ignored)
}

// ListFolder returns the immediate entries of the folder at path.
func (c *Client) ListFolder(ctx context.Context, token, path string) ([]Entry, error) {
	var result struct {
		Entries []Entry `json:"entries"`
	}
	err := c.rpc(ctx, token, "files/list_folder", map[string]any{
		"path":      path,
		"recursive": false,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// CreateSharedLink creates a public shared link for path. When a link
// already exists it falls back to listing the existing links and returns
// the first direct one.
func (c *Client) CreateSharedLink(ctx context.Context, token, path string) (string, error) {
	var result struct {
		URL string `json:"url"`
	}
	err := c.rpc(ctx, token, "sharing/create_shared_link_with_settings", map[string]any{
		"path": path,
		"settings": map[string]string{
			"requested_visibility": "public",
			"audience":             "public",
			"access":               "viewer",
		},
	}, &result)
	if err == nil {
		return result.URL, nil
	}
	if !IsSharedLinkExists(err) {
		return "", err
	}
	return c.listSharedLink(ctx, token, path)
}

// listSharedLink fetches an already-existing shared link for path.
func (c *Client) listSharedLink(ctx context.Context, token, path string) (string, error) {
	var result struct {
		Links []struct {
			URL string `json:"url"`
		} `json:"links"`
	}
	err := c.rpc(ctx, token, "sharing/list_shared_links", map[string]any{
		"path":        path,
		"direct_only": true,
	}, &result)
	if err != nil {
		return "", err
	}
	if len(result.Links) == 0 {
		return "", &APIError{Op: "sharing/list_shared_links", Status: http.StatusNotFound, Summary: "no existing shared link"}
	}
	return result.Links[0].URL, nil
}

// rpc performs a JSON-in/JSON-out call against the API base.
func (c *Client) rpc(ctx context.Context, token, op string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s body: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+op, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(op, resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}

// checkStatus converts a non-2xx response into an APIError, pulling the
// error_summary out of the body when there is one.
func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	summary := string(body)

	var apiBody struct {
		ErrorSummary string `json:"error_summary"`
	}
	if err := json.Unmarshal(body, &apiBody); err == nil && apiBody.ErrorSummary != "" {
		summary = apiBody.ErrorSummary
	}

	return &APIError{Op: op, Status: resp.StatusCode, Summary: summary}
}
