package model

import "errors"

var (
	// ErrNotFound is returned when an AOI or a stored result does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoData is returned by collaborators when a query yields no result.
	ErrNoData = errors.New("no data")
	// ErrUnsupported is returned when a backend cannot serve a request kind.
	ErrUnsupported = errors.New("unsupported")
	// ErrMalformedResult is returned when a stored result blob cannot be decoded.
	ErrMalformedResult = errors.New("malformed result")
	// ErrInvalidAOI is returned for geometries that cannot be used as an AOI.
	ErrInvalidAOI = errors.New("invalid aoi")
	// ErrInvalidIdentifier is returned for dataset or indicator names that are
	// not safe to use as storage identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)
