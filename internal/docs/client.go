// ABOUTME: Client for the remote document source (file listing and raw fetch)
// ABOUTME: Backs the Document Summaries browser; not part of the conversation core

package docs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrUnavailable indicates the document source could not be reached.
	ErrUnavailable = errors.New("document source unavailable")

	// ErrNotFound indicates the named document does not exist.
	ErrNotFound = errors.New("document not found")
)

// maxDocumentSize caps a single fetched document at 4 MiB.
const maxDocumentSize = 4 << 20

// Client fetches file names and contents from the document source.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a document source client for the service at baseURL.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With("component", "docs"),
	}
}

type fileEntry struct {
	Name string `json:"name"`
}

type listResponse struct {
	Files []fileEntry `json:"files"`
}

// List returns the file names available under the source's fixed path.
func (c *Client) List(ctx context.Context) ([]string, error) {
	resp, err := c.get(ctx, "/files")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing documents: status %d", resp.StatusCode)
	}

	var list listResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding document list: %w", err)
	}

	names := make([]string, len(list.Files))
	for i, f := range list.Files {
		names[i] = f.Name
	}
	return names, nil
}

// Fetch returns the raw content of the named document.
func (c *Client) Fetch(ctx context.Context, name string) (string, error) {
	resp, err := c.get(ctx, "/files/"+url.PathEscape(name))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching document %s: status %d", name, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return "", fmt.Errorf("reading document %s: %w", name, err)
	}
	return string(data), nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return resp, nil
}
