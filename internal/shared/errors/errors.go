package errors

import (
	"errors"
	"fmt"
)

var (
	ErrMissingBotToken      = errors.New("TELEGRAM_BOT_TOKEN is required when the telegram transport is enabled")
	ErrUnauthorized         = errors.New("unauthorized user")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUnknownPlatform      = errors.New("unknown platform")

	// Fetch failures. Every FetchError matches exactly one of these with errors.Is.
	ErrNetworking = errors.New("networking error")
	ErrParsing    = errors.New("parsing error")

	ErrPattern        = errors.New("invalid filter pattern")
	ErrMalformedRow   = errors.New("malformed row")
	ErrTableStructure = errors.New("malformed table")
	ErrIO             = errors.New("i/o error")
)

// FetchKind tells apart the two ways a subscription fetch can fail.
type FetchKind int

const (
	KindNetworking FetchKind = iota
	KindParsing
)

func (k FetchKind) String() string {
	if k == KindParsing {
		return "parsing"
	}
	return "networking"
}

// FetchError is returned by feed fetchers. Source is the identifier of the
// subscription whose feed failed.
type FetchError struct {
	Kind   FetchKind
	Source string
	Err    error
}

func NewNetworking(source string, err error) *FetchError {
	return &FetchError{Kind: KindNetworking, Source: source, Err: err}
}

func NewParsing(source string, err error) *FetchError {
	return &FetchError{Kind: KindParsing, Source: source, Err: err}
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error for %s", e.Kind, e.Source)
	}
	return fmt.Sprintf("%s error for %s: %v", e.Kind, e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrNetworking) and errors.Is(err, ErrParsing) work
// without losing the wrapped cause.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetworking:
		return e.Kind == KindNetworking
	case ErrParsing:
		return e.Kind == KindParsing
	}
	return false
}

// PatternError reports which half of a filter failed to compile.
type PatternError struct {
	Field   string
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid %s pattern %q: %v", e.Field, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

func (e *PatternError) Is(target error) bool {
	return target == ErrPattern
}
