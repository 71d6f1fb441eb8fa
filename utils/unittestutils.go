package utils

import (
	"errors"
)

// Test helpers shared by the package tests. Not for production code.

var ErrSimulatedRead = errors.New("simulated read error")

// ErrorReadCloser fails every read, standing in for a broken request body
// or storage stream.
type ErrorReadCloser struct{}

func (e *ErrorReadCloser) Read(p []byte) (n int, err error) {
	return 0, ErrSimulatedRead
}

func (e *ErrorReadCloser) Close() error {
	return ErrSimulatedRead
}
