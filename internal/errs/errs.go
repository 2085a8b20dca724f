// Package errs defines the error kinds surfaced to the user.
package errs

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInput marks missing or malformed user input.
	ErrInput = errors.New("invalid input")
	// ErrCollaborator marks a failed or malformed response from an external producer.
	ErrCollaborator = errors.New("collaborator failed")
	// ErrAsset marks an image or audio file that could not be decoded.
	ErrAsset = errors.New("asset could not be loaded")
	// ErrCapture marks a failure of the recording/encoding subsystem.
	ErrCapture = errors.New("capture failed")
)

var kinds = []error{ErrInput, ErrCollaborator, ErrAsset, ErrCapture}

// Input wraps err as an input error.
func Input(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

// Collaborator wraps err as a collaborator error with context.
func Collaborator(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCollaborator, what, err)
}

// Asset wraps err as an asset error with context.
func Asset(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrAsset, what, err)
}

// Capture wraps err as a capture error with context.
func Capture(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCapture, what, err)
}

// KindOf returns the kind sentinel in err's chain, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Message renders err as a single line for display.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	if len(msg) > 240 {
		n := 237
		for n > 0 && !utf8.RuneStart(msg[n]) {
			n--
		}
		msg = msg[:n] + "..."
	}
	return msg
}
