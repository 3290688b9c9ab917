package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSeed is returned when the seed is not an absolute http(s) URL.
	ErrInvalidSeed = errors.New("invalid seed url")
	// ErrAlreadyRun is returned when Run is called a second time.
	ErrAlreadyRun = errors.New("crawler already ran")
)

// FetchKind classifies a fetch failure.
type FetchKind int

// Fetch failure kinds.
const (
	FetchNetwork FetchKind = iota + 1
	FetchStatus
	FetchDecode
)

func (k FetchKind) String() string {
	switch k {
	case FetchNetwork:
		return "network"
	case FetchStatus:
		return "status"
	case FetchDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is returned by Link.Fetch. It only ever abandons a single link.
type FetchError struct {
	Kind       FetchKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// PersistKind classifies a persist failure.
type PersistKind int

// Persist failure kinds.
const (
	// PersistConflict means the address is already stored. Callers treat it as success.
	PersistConflict PersistKind = iota + 1
	// PersistConnection means the store was unreachable. Callers may retry.
	PersistConnection
	// PersistQuery covers every other store failure. It is not retried.
	PersistQuery
)

func (k PersistKind) String() string {
	switch k {
	case PersistConflict:
		return "conflict"
	case PersistConnection:
		return "connection"
	case PersistQuery:
		return "query"
	default:
		return "unknown"
	}
}

// PersistError is returned by Link.Persist.
type PersistError struct {
	Kind PersistKind
	URL  string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

func isPersistKind(err error, kind PersistKind) bool {
	var perr *PersistError
	return errors.As(err, &perr) && perr.Kind == kind
}
