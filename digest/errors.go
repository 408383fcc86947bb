package digest

import (
	"errors"
	"fmt"
)

// Reason classifies why a completion failed.
type Reason string

const (
	// ReasonAPIError is a non-200, non-429 response. It is never retried.
	ReasonAPIError Reason = "api_error"
	// ReasonRetriesExhausted means every attempt hit a rate limit or a network failure.
	ReasonRetriesExhausted Reason = "retries_exhausted"
	// ReasonInvalidResponse is a 200 whose body carried no usable completion.
	ReasonInvalidResponse Reason = "invalid_response"
	// ReasonTooManyChunks is returned by sub-chunk recovery when the input is too large to attempt.
	ReasonTooManyChunks Reason = "too_many_chunks"
)

var (
	ErrAPI              = errors.New("model api error")
	ErrRetriesExhausted = errors.New("model call failed after repeated retries")
	ErrInvalidResponse  = errors.New("model returned no completion")
	ErrTooManyChunks    = errors.New("too many chunks")
	ErrRateLimited      = errors.New("rate limited")
)

// CompletionError is the typed failure of a model completion or a summarization call.
type CompletionError struct {
	Reason     Reason
	StatusCode int
	Attempts   int
	Chunks     int
	Err        error
}

func (e *CompletionError) Error() string {
	msg := string(e.Reason)
	switch e.Reason {
	case ReasonAPIError:
		msg = fmt.Sprintf("api error: status %d", e.StatusCode)
	case ReasonRetriesExhausted:
		msg = fmt.Sprintf("failed after %d attempts", e.Attempts)
	case ReasonInvalidResponse:
		msg = "invalid response"
	case ReasonTooManyChunks:
		msg = fmt.Sprintf("too many chunks: %d", e.Chunks)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the failure reason.
func (e *CompletionError) Is(target error) bool {
	switch target {
	case ErrAPI:
		return e.Reason == ReasonAPIError
	case ErrRetriesExhausted:
		return e.Reason == ReasonRetriesExhausted
	case ErrInvalidResponse:
		return e.Reason == ReasonInvalidResponse
	case ErrTooManyChunks:
		return e.Reason == ReasonTooManyChunks
	case ErrRateLimited:
		return e.StatusCode == 429
	}
	return false
}

// StatusError is an HTTP-level failure reported by a model backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}
