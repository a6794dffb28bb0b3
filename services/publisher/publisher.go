package publisher

// Publisher represents a service for publishing finalized deals
type Publisher interface {
	// Publish publishes one encoded deal to the stream
	Publish(message []byte) error

	// Trim trims the stream to the configured maximum length
	Trim() error

	// Close closes the publisher connection
	Close() error
}
