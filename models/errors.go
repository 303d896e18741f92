package models

import "fmt"

// TransportError reports a failed page or asset fetch.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports markup that none of the expected patterns matched. It
// degrades to absent fields and never fails an item.
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("parse %s: no match", e.What)
	}
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a raw payload the transformer cannot turn into a
// Car. Fatal for that item only.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s %s", e.Field, e.Reason)
}

// PersistenceError reports the record store rejecting an operation. Fatal
// for that item only.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persist %s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

// LinkError reports a failed user link. Soft: the car stays persisted.
type LinkError struct {
	Phone string
	Err   error
}

func (e *LinkError) Error() string { return fmt.Sprintf("link user %q: %v", e.Phone, e.Err) }
func (e *LinkError) Unwrap() error { return e.Err }

// AssetError reports a failed image migration. Soft: the car stays persisted.
type AssetError struct {
	URL string
	Err error
}

func (e *AssetError) Error() string { return fmt.Sprintf("migrate image %s: %v", e.URL, e.Err) }
func (e *AssetError) Unwrap() error { return e.Err }
