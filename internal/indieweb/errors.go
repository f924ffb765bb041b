package indieweb

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or malformed field on the primary entity.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// NotFoundError reports that a required record does not exist.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// ReferenceFetchError reports that one referenced URL could not be resolved.
// It never fails a resolution batch.
type ReferenceFetchError struct {
	URL string
	Err error
}

func (e *ReferenceFetchError) Error() string {
	return fmt.Sprintf("resolve reference %s: %v", e.URL, e.Err)
}

func (e *ReferenceFetchError) Unwrap() error { return e.Err }

// ReferenceIdentityMismatch reports that a resolved citation declares a
// different identity than the URL that was requested.
type ReferenceIdentityMismatch struct {
	Requested string
	Declared  string
}

func (e *ReferenceIdentityMismatch) Error() string {
	return fmt.Sprintf("reference %s declares identity %s", e.Requested, e.Declared)
}

// StorageError reports a durable store failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RejectionKind classifies a terminal failure for the HTTP boundary.
type RejectionKind string

// Rejection kinds.
const (
	RejectValidation       RejectionKind = "validation"
	RejectNotFound         RejectionKind = "not_found"
	RejectIdentityMismatch RejectionKind = "identity_mismatch"
	RejectStorage          RejectionKind = "storage"
	RejectInternal         RejectionKind = "internal"
)

// Rejection is the client-facing summary of a failed ingestion.
type Rejection struct {
	Kind    RejectionKind
	Message string
}

// ClientError reports whether the rejection is the caller's fault.
func (r Rejection) ClientError() bool {
	switch r.Kind {
	case RejectValidation, RejectNotFound, RejectIdentityMismatch:
		return true
	default:
		return false
	}
}

// ReasonFor classifies err. Storage and unknown failures carry a generic
// message without internal detail.
func ReasonFor(err error) Rejection {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		mismatch   *ReferenceIdentityMismatch
		storage    *StorageError
	)
	switch {
	case errors.As(err, &validation):
		return Rejection{Kind: RejectValidation, Message: validation.Error()}
	case errors.As(err, &notFound):
		return Rejection{Kind: RejectNotFound, Message: notFound.Error()}
	case errors.As(err, &mismatch):
		return Rejection{Kind: RejectIdentityMismatch, Message: mismatch.Error()}
	case errors.As(err, &storage):
		return Rejection{Kind: RejectStorage, Message: "internal storage error"}
	default:
		return Rejection{Kind: RejectInternal, Message: "internal error"}
	}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
