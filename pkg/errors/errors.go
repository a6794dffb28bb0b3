package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors, including HTTP error statuses
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit represents rate limiting responses (429/430)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeDecompress represents content-encoding decompression errors
	ErrorTypeDecompress ErrorType = "decompress"
	// ErrorTypeParsing represents HTML/JSON-LD/XML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeURL represents malformed URL errors
	ErrorTypeURL ErrorType = "url"
	// ErrorTypeOutput represents output writing errors
	ErrorTypeOutput ErrorType = "output"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// ScrapeError represents a scraper-specific error
type ScrapeError struct {
	Type    ErrorType
	URL     string
	Status  int
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("[%s] HTTP %d %s", e.Type, e.Status, e.URL)
	case e.Err != nil && e.URL != "":
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.URL, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %s - %v", e.Type, e.Message, e.Err)
	case e.URL != "":
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.URL, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	default:
		return false
	}
}

// New creates a new ScrapeError
func New(errType ErrorType, url, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		URL:     url,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewHTTP creates a network error carrying the response status
func NewHTTP(status int, url string) *ScrapeError {
	e := New(ErrorTypeNetwork, url, fmt.Sprintf("unexpected status code: %d", status), nil)
	e.Status = status
	return e
}

// NewRateLimit creates a rate limit error
func NewRateLimit(url, retryAfter string) *ScrapeError {
	message := "rate limited"
	if retryAfter != "" {
		message = fmt.Sprintf("rate limited; retry after %s", retryAfter)
	}
	return New(ErrorTypeRateLimit, url, message, nil)
}

// NewNetwork creates a new network error
func NewNetwork(url, message string, err error) *ScrapeError {
	return New(ErrorTypeNetwork, url, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(url, message string, err error) *ScrapeError {
	return New(ErrorTypeParsing, url, message, err)
}

// NewURL creates a new malformed-URL error
func NewURL(raw string, err error) *ScrapeError {
	return New(ErrorTypeURL, raw, "malformed URL", err)
}

// NewOutput creates a new output error
func NewOutput(message string, err error) *ScrapeError {
	return New(ErrorTypeOutput, "", message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsRateLimited reports whether err wraps a rate limit error
func IsRateLimited(err error) bool {
	var se *ScrapeError
	return errors.As(err, &se) && se.Type == ErrorTypeRateLimit
}

// HTTPStatus extracts the HTTP status from err, if it carries one
func HTTPStatus(err error) (int, bool) {
	var se *ScrapeError
	if errors.As(err, &se) && se.Status != 0 {
		return se.Status, true
	}
	return 0, false
}
