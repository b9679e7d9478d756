package drill

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPool means every word is currently locked. It is a normal terminal
	// selection state, not a failure.
	ErrEmptyPool        = errors.New("all words locked")
	ErrNotLoaded        = errors.New("word list not loaded")
	ErrNoCurrentWord    = errors.New("no current word")
	ErrInvalidThreshold = errors.New("unsupported lock threshold")
	ErrInvalidSentence  = errors.New("sentence index out of range")
)

// LoadError reports that a language's word list could not be loaded. The drill stays
// idle until another load succeeds.
type LoadError struct {
	Language string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load words for %s: %v", e.Language, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
