package synth

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is matched by every request validation error. The message
// of such an error is safe to show to end users.
var ErrInvalidRequest = errors.New("invalid synthesis request")

// ErrNotConfigured is returned when the speech provider is missing or could
// not be built.
var ErrNotConfigured = errors.New("synth: speech provider not configured")

// Dialogue validation errors.
var (
	ErrEmptyScript   error = invalidError("Dialogue text is required.")
	ErrNoLines       error = invalidError("Unable to find dialogue lines to convert.")
	ErrScriptTooLong error = errors.New("synth: script too long")
)

// Pronunciation validation errors.
var (
	ErrTextRequired        error = invalidError("Text is required for pronunciation.")
	ErrTextTooLong         error = errors.New("synth: text too long")
	ErrUnsupportedLanguage error = errors.New("synth: unsupported pronunciation language")
)

type invalidError string

func (e invalidError) Error() string        { return string(e) }
func (e invalidError) Is(target error) bool { return target == ErrInvalidRequest }

// limitError reports input over a character limit. It matches both
// ErrInvalidRequest and its kind sentinel.
type limitError struct {
	subject string
	limit   int
	kind    error
}

func (e *limitError) Error() string {
	return fmt.Sprintf("%s exceeds the %d character limit.", e.subject, e.limit)
}

func (e *limitError) Is(target error) bool {
	return target == ErrInvalidRequest || target == e.kind
}

type languageError struct{ code string }

func (e *languageError) Error() string {
	return fmt.Sprintf("Pronunciation for %s is not supported.", e.code)
}

func (e *languageError) Is(target error) bool {
	return target == ErrInvalidRequest || target == ErrUnsupportedLanguage
}
