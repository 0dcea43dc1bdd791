// ABOUTME: Tests for the document source client
// ABOUTME: Uses an httptest server standing in for the file listing endpoint

package docs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "docs-key", nil)
}

func TestList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files", r.URL.Path)
		require.Equal(t, "Bearer docs-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"files": [{"name": "tariff_2024.pdf"}, {"name": "filing_q3.txt"}]}`))
	})

	names, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tariff_2024.pdf", "filing_q3.txt"}, names)
}

func TestList_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"files": []}`))
	})

	names, err := client.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFetch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/files/summary.md", r.URL.Path)
		w.Write([]byte("# Summary\n\nContents here."))
	})

	content, err := client.Fetch(context.Background(), "summary.md")
	require.NoError(t, err)
	assert.Equal(t, "# Summary\n\nContents here.", content)
}

func TestFetch_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.Fetch(context.Background(), "missing.md")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServerError_MapsToUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.List(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestConnectionRefused_MapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, "docs-key", nil)

	_, err := client.List(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}
