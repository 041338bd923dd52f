package llm

import (
	"fmt"
	"time"
)

// ConnectionError means the backend was unreachable at the transport level.
// The client retries these internally up to its configured bound; once
// surfaced, the caller should treat the backend as dead.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to generation backend at %s: %v (is Ollama running? start it with: ollama serve)",
		e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means the backend accepted the request but did not respond
// within the deadline. Never retried automatically; the caller decides
// whether to consume a repair attempt or abort.
type TimeoutError struct {
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation request timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StatusError means the backend was reachable but answered with a non-200
// status. Distinct from ConnectionError so a live-but-erroring backend is
// not misdiagnosed as unreachable.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("generation backend returned status %d: %s", e.Code, e.Body)
}

// ExtractionError means no parseable JSON payload could be recovered from
// the generated text. RawText is carried for diagnostics.
type ExtractionError struct {
	RawText string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no JSON document found in model output (%d chars)", len(e.RawText))
}
