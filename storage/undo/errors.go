package undo

import "github.com/pkg/errors"

var (
	// ErrRecordNotFound is returned by Store.FetchRecord when no record exists at the pointer.
	// this alone is not corruption, the log may have been truncated concurrently.
	ErrRecordNotFound = errors.New("undo record not found")
	// ErrRecordMissing is returned when a record cannot be fetched even though the
	// pointer is not below the refreshed oldest undo pointer
	ErrRecordMissing = errors.New("could not find undo record")
	// ErrChainCorrupted is returned when prev does not point to an older record
	ErrChainCorrupted = errors.New("undo chain is corrupted")
	// ErrChainTooLong is returned when a chain exceeds the configured max depth
	ErrChainTooLong = errors.New("undo chain exceeds max depth")
	// ErrUnknownRecordType is returned when an encoded record has an unknown type tag
	ErrUnknownRecordType = errors.New("unexpected undo record type")
	// ErrMalformedRecord is returned when an encoded record cannot be decoded
	ErrMalformedRecord = errors.New("malformed undo record")
)
