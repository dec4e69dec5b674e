package assistant

import (
	"errors"

	"edumate/internal/extract"
	"edumate/internal/preset"
	"edumate/internal/summarizer"
)

var (
	ErrBusy           = errors.New("another request is still being processed")
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrChatFailed     = errors.New("tutor could not reply")
)

// ErrorKind groups errors by who should act on them.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	// KindBusy means the owner must wait for the running job.
	KindBusy
	// KindInvalid means the request itself must change.
	KindInvalid
	// KindUpstream means the language model could not produce a result.
	KindUpstream
	KindNotFound
)

func Classify(err error) ErrorKind {
	var (
		callErr  *summarizer.ReduceCallError
		parseErr *summarizer.ReduceParseError
	)

	switch {
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, preset.ErrUnknownPreset),
		errors.Is(err, extract.ErrUnsupportedType),
		errors.Is(err, extract.ErrNoText),
		errors.Is(err, extract.ErrTooLarge),
		errors.Is(err, extract.ErrInvalidURL):
		return KindInvalid
	case errors.Is(err, summarizer.ErrAllChunksFailed),
		errors.Is(err, ErrChatFailed),
		errors.As(err, &callErr),
		errors.As(err, &parseErr):
		return KindUpstream
	default:
		return KindInternal
	}
}
