package summarizer

import (
	"errors"
	"fmt"
)

// ErrAllChunksFailed is returned when no chunk could be analyzed, including
// when the text has no chunks at all.
var ErrAllChunksFailed = errors.New("all chunks failed")

// ReduceCallError reports that the final synthesis call itself failed.
type ReduceCallError struct {
	Reason string
}

func (e *ReduceCallError) Error() string {
	return fmt.Sprintf("final synthesis failed: %s", e.Reason)
}

// ReduceParseError reports that the final synthesis call succeeded but its
// reply is not valid JSON.
type ReduceParseError struct {
	Reply string
	Err   error
}

func (e *ReduceParseError) Error() string {
	return fmt.Sprintf("final synthesis reply is not valid structured output: %v", e.Err)
}

func (e *ReduceParseError) Unwrap() error {
	return e.Err
}
