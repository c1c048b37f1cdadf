package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrOperationFailed = errors.New("operation failed")
	ErrLockTimeout     = errors.New("session lock not acquired")

	// Conversation errors
	ErrUpstreamUnavailable    = errors.New("upstream unavailable")
	ErrGeocodeNoMatch         = errors.New("geocode: no match")
	ErrInvalidEventShape      = errors.New("event does not fit current state")
	ErrPaymentPayloadMismatch = errors.New("payment payload mismatch")
	ErrNoStores               = errors.New("no store entries configured")
)

// UpstreamError describes a failed call to a remote collaborator
// (commerce backend, geocoder, chat platform).
// Status is the HTTP status when the remote answered, 0 for transport failures.
type UpstreamError struct {
	Service string
	Op      string
	Status  int
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// Upstream wraps err as an UpstreamError. nil stays nil.
func Upstream(service, op string, status int, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Service: service, Op: op, Status: status, Err: err}
}
