// Package apperr defines the wallet ledger's error kinds and their HTTP
// status mapping, in place of a generic error-wrapping framework.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a distinct, mutually exclusive error category.
type Kind int

const (
	// KindInvalidAmount marks an amount that failed the minimum-amount check.
	KindInvalidAmount Kind = iota
	// KindInvalidInput marks malformed or missing request fields.
	KindInvalidInput
	// KindWalletInactive marks a non-ACTIVE wallet on either transfer side.
	KindWalletInactive
	// KindInsufficientBalance marks a source balance below the transfer amount at CAS time.
	KindInsufficientBalance
	// KindRequestMissing marks a credit request not in WAITING status.
	KindRequestMissing
	// KindPermissionDenied marks a non-admin attempting an admin-only action.
	KindPermissionDenied
	// KindLockBusy marks exhaustion of lock acquisition retries.
	KindLockBusy
	// KindConflict marks a CAS precondition failure; retried internally, escalates to KindConcurrency.
	KindConflict
	// KindConcurrency marks CAS retry exhaustion.
	KindConcurrency
	// KindTransferFailed marks a transfer that ran compensation after a mid-flight failure.
	KindTransferFailed
	// KindNotFound marks a missing account, wallet, or other entity.
	KindNotFound
	// KindInternal marks an unclassified internal error.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidAmount:
		return "InvalidAmount"
	case KindInvalidInput:
		return "InvalidInput"
	case KindWalletInactive:
		return "WalletInactive"
	case KindInsufficientBalance:
		return "InsufficientBalance"
	case KindRequestMissing:
		return "RequestMissing"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindLockBusy:
		return "LockBusy"
	case KindConflict:
		return "Conflict"
	case KindConcurrency:
		return "Concurrency"
	case KindTransferFailed:
		return "TransferFailed"
	case KindNotFound:
		return "NotFound"
	default:
		return "Internal"
	}
}

// HTTPStatus returns the HTTP status code for this error kind, per the
// wire contract's error table.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidAmount, KindInvalidInput, KindWalletInactive, KindInsufficientBalance, KindRequestMissing:
		return http.StatusBadRequest
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindLockBusy, KindConflict, KindConcurrency:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTransferFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed application error carrying a Kind, a human-readable
// message, and an optional cause for TransferFailed.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new *Error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is an *Error, otherwise KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
