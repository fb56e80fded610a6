// Package cliperr defines the error kinds shared across the clipboard
// bridge. Callers classify failures with errors.Is; the wire layer maps
// them to and from result codes with Code and FromCode.
package cliperr

import "errors"

var (
	// ErrNoData means the requested selection is empty or the chosen
	// target returned no content.
	ErrNoData = errors.New("clipboard: no data")

	// ErrTimeout means the selection owner failed to convert in time.
	ErrTimeout = errors.New("clipboard: conversion timed out")

	// ErrTryAgain means a transfer was requested while another is in
	// flight. The caller may retry after a short delay.
	ErrTryAgain = errors.New("clipboard: transfer in progress, try again")

	// ErrNotImplemented means a format the bridge does not convert was
	// requested.
	ErrNotImplemented = errors.New("clipboard: format not implemented")

	// ErrNotSupported means the X server is unreachable or a required
	// extension is absent.
	ErrNotSupported = errors.New("clipboard: not supported")

	// ErrNoMemory is an allocation failure reported by an encoding
	// conversion. It is always surfaced, never swallowed.
	ErrNoMemory = errors.New("clipboard: out of memory")

	// ErrUnresolved is an encoding conversion failure not otherwise
	// classified.
	ErrUnresolved = errors.New("clipboard: conversion failed")
)

// CodeOK is the wire result code for a successful completion.
const CodeOK = "ok"

var codes = []struct {
	err  error
	code string
}{
	{ErrNoData, "no-data"},
	{ErrTimeout, "timeout"},
	{ErrTryAgain, "try-again"},
	{ErrNotImplemented, "not-implemented"},
	{ErrNotSupported, "not-supported"},
	{ErrNoMemory, "no-memory"},
	{ErrUnresolved, "unresolved"},
}

// Code returns the wire result code for err. A nil error is CodeOK;
// unclassified errors report as "unresolved".
func Code(err error) string {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "unresolved"
}

// FromCode returns the error kind for a wire result code, or nil for CodeOK.
func FromCode(code string) error {
	if code == CodeOK {
		return nil
	}
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return ErrUnresolved
}
