package helpers

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	mathrand "math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"dealscout/logger"
	apperrors "dealscout/pkg/errors"
)

// Fetcher issues HTTP GET requests with browser-like headers and manual
// content-encoding handling. Setting Accept-Encoding by hand disables the
// transport's transparent decompression, so the body arrives exactly as the
// server encoded it.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	delayMin    time.Duration
	delayJitter time.Duration
	log         *logger.Logger
}

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	UserAgent   string
	Timeout     time.Duration
	DelayMin    time.Duration
	DelayJitter time.Duration
}

// NewFetcher creates a new Fetcher
func NewFetcher(opts FetcherOptions) *Fetcher {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		userAgent:   opts.UserAgent,
		delayMin:    opts.DelayMin,
		delayJitter: opts.DelayJitter,
		log:         logger.ForTransport(),
	}
}

// Fetch retrieves a URL and returns the decoded body as UTF-8 text.
// A randomized delay runs before every request to avoid a predictable cadence.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.pause(ctx); err != nil {
		return "", apperrors.NewNetwork(url, "cancelled before request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperrors.NewURL(url, err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", apperrors.NewNetwork(url, "failed to fetch URL", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 430 {
		return "", apperrors.NewRateLimit(url, resp.Header.Get("Retry-After"))
	}
	if resp.StatusCode >= 400 {
		return "", apperrors.NewHTTP(resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperrors.NewNetwork(url, "failed to read response body", err)
	}

	decoded := f.decode(body, resp.Header.Get("Content-Encoding"), url)
	return f.toUTF8(decoded, resp.Header.Get("Content-Type")), nil
}

// pause sleeps for the randomized pre-request delay, honoring cancellation
func (f *Fetcher) pause(ctx context.Context) error {
	delay := f.delayMin
	if f.delayJitter > 0 {
		delay += time.Duration(mathrand.Int63n(int64(f.delayJitter)))
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// decode decompresses the body according to the declared content encoding.
// A failed or unrecognized decompression falls back to the raw bytes; a page
// that decodes partially garbled still beats losing the page entirely.
func (f *Fetcher) decode(body []byte, encoding, url string) []byte {
	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			f.log.Debug().Str("url", url).Err(err).Msg("gzip decode failed, using raw body")
			return body
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			f.log.Debug().Str("url", url).Err(err).Msg("deflate decode failed, using raw body")
			return body
		}
		defer zr.Close()
		reader = zr
	case "br":
		reader = brotli.NewReader(bytes.NewReader(body))
	default:
		return body
	}

	decompressed, err := io.ReadAll(reader)
	if err != nil {
		f.log.Debug().Str("url", url).Err(err).Msg("decompression failed, using raw body")
		return body
	}
	return decompressed
}

// toUTF8 converts the decompressed body to UTF-8 text when the charset differs
func (f *Fetcher) toUTF8(body []byte, contentType string) string {
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" || name == "UTF-8" {
		return string(body)
	}

	converted, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return string(body)
	}
	return string(converted)
}
