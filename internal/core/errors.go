package core

import "errors"

var (
	// ErrUnknownSource is returned when a provider tag is not recognised or
	// cannot be inferred from a file.
	ErrUnknownSource = errors.New("unknown source")

	// ErrSourceMismatch is returned when a file extension does not fit the provider.
	ErrSourceMismatch = errors.New("source does not accept this file type")

	// ErrEmptyValue is returned by the coercers for blank input.
	ErrEmptyValue = errors.New("missing")

	// ErrHeaderNotFound is returned when no line carries the provider's header tokens.
	ErrHeaderNotFound = errors.New("header not found")

	// ErrFileTooLarge is returned when an upload exceeds the configured size.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedExtension is returned for anything other than .csv or .pdf.
	ErrUnsupportedExtension = errors.New("unsupported file extension")

	// ErrEmptyFile is returned for zero-length uploads.
	ErrEmptyFile = errors.New("empty file")
)
