package domainerrors

import (
	"errors"
	"net/http"
)

// Code classifies a domain error so transport layers can translate it
// without string matching.
type Code string

const (
	CodeValidation              Code = "validation_error"
	CodeInvalidRecipient        Code = "invalid_recipient"
	CodePolicyDenied            Code = "policy_denied"
	CodeCollaboratorUnavailable Code = "collaborator_unavailable"
	CodeConflict                Code = "concurrency_conflict"
	CodeNotFound                Code = "not_found"
	CodeStoreUnavailable        Code = "store_unavailable"
	CodeInternal                Code = "internal_error"
)

// DomainError carries a machine-readable code alongside a human message.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// New builds a coded error.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Wrap builds a coded error around a cause.
func Wrap(code Code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from an error chain, defaulting to internal.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Is reports whether the error chain carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// ToHTTPStatus maps codes onto HTTP statuses for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidRecipient:
		return http.StatusBadRequest
	case CodePolicyDenied:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeCollaboratorUnavailable, CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
