package llm

import "fmt"

// Params controls sampling for a single completion request.
type Params struct {
	Temperature float32
	TopP        float32
}

// Config represents completion backend configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

// CompletionError is returned for any failed completion attempt: transport
// errors, non-2xx statuses and malformed reply bodies alike. Status is zero
// when no HTTP status was received.
type CompletionError struct {
	Status int
	Cause  string
}

func (e *CompletionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion failed (status %d): %s", e.Status, e.Cause)
	}
	return fmt.Sprintf("completion failed: %s", e.Cause)
}
