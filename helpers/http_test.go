package helpers

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "dealscout/pkg/errors"
)

func newTestFetcher() *Fetcher {
	// Zero delays keep the tests fast
	return NewFetcher(FetcherOptions{UserAgent: "test-agent"})
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		assert.Equal(t, "gzip, deflate, br", r.Header.Get("Accept-Encoding"))
		assert.Equal(t, "navigate", r.Header.Get("Sec-Fetch-Mode"))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>Hello, World!</body></html>"))
	}))
	defer server.Close()

	text, err := newTestFetcher().Fetch(context.Background(), server.URL)
	assert.NoError(t, err)
	assert.Contains(t, text, "Hello, World!")
}

func TestFetchDecodesGzip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte("<html><body>gzip page</body></html>"))
		gz.Close()

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	text, err := newTestFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "gzip page")
}

func TestFetchDecodesDeflate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		zw.Write([]byte("<html><body>deflate page</body></html>"))
		zw.Close()

		w.Header().Set("Content-Encoding", "deflate")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	text, err := newTestFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "deflate page")
}

func TestFetchDecodesBrotli(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte("<html><body>brotli page</body></html>"))
		bw.Close()

		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	text, err := newTestFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "brotli page")
}

func TestFetchFallsBackOnBadEncoding(t *testing.T) {
	// Declared gzip but body is plain text; the raw bytes come back instead
	// of an error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write([]byte("<html><body>not actually gzipped</body></html>"))
	}))
	defer server.Close()

	text, err := newTestFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "not actually gzipped")
}

func TestFetchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)
	assert.Error(t, err)
	status, ok := apperrors.HTTPStatus(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestFetchRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL)
	assert.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
	assert.Contains(t, err.Error(), "60")
}

func TestFetchNonUTF8(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		// "café" in ISO-8859-1
		w.Write([]byte("<html><body>caf\xe9</body></html>"))
	}))
	defer server.Close()

	text, err := newTestFetcher().Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "café")
}

func TestFetchInvalidURL(t *testing.T) {
	_, err := newTestFetcher().Fetch(context.Background(), "http://invalid.url.that.does.not.exist")
	assert.Error(t, err)
}

func TestFetchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := NewFetcher(FetcherOptions{UserAgent: "test-agent", DelayMin: 50 * time.Millisecond})
	_, err := fetcher.Fetch(ctx, "http://example.com")
	assert.Error(t, err)
}
