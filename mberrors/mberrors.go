// Package mberrors defines the error taxonomy the executor classifies
// every transaction failure into. Each kind drives a different retry and
// reconnect policy; callers that need the underlying cause can recover it
// with github.com/pkg/errors.Cause, since every type here wraps its
// source error rather than swallowing it.
package mberrors

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind identifies a class of transaction failure, used to select a retry
// policy without needing a type switch at every call site.
type Kind int

// Defined error kinds.
const (
	KindUnknown Kind = iota
	KindConnectionFailed
	KindIOError
	KindSlaveException
	KindTransactionIDMismatch
	KindDecodeError
)

func (k Kind) String() string {
	switch k {
	case KindConnectionFailed:
		return "connection failed"
	case KindIOError:
		return "io error"
	case KindSlaveException:
		return "slave exception"
	case KindTransactionIDMismatch:
		return "transaction id mismatch"
	case KindDecodeError:
		return "decode error"
	default:
		return "unknown"
	}
}

// TransactionError is the common shape of every error this package
// returns: a Kind for policy dispatch, the endpoint it occurred on (as a
// string so this package does not import endpoint and create a cycle),
// and the wrapped cause.
type TransactionError struct {
	Kind     Kind
	Endpoint string
	cause    error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Endpoint, e.Kind, e.cause)
}

// Cause implements the github.com/pkg/errors Causer interface so
// errors.Cause(err) unwraps to the original error.
func (e *TransactionError) Cause() error { return e.cause }

// Unwrap supports the standard library's errors.Is/errors.As.
func (e *TransactionError) Unwrap() error { return e.cause }

// ConnectionFailed wraps a dial/reconnect failure.
func ConnectionFailed(endpoint string, cause error) error {
	return &TransactionError{Kind: KindConnectionFailed, Endpoint: endpoint, cause: pkgerrors.WithStack(cause)}
}

// IOError wraps a read/write failure on an otherwise-established connection.
func IOError(endpoint string, cause error) error {
	return &TransactionError{Kind: KindIOError, Endpoint: endpoint, cause: pkgerrors.WithStack(cause)}
}

// SlaveException wraps a Modbus exception response (the slave understood
// the request but rejected it).
func SlaveException(endpoint string, cause error) error {
	return &TransactionError{Kind: KindSlaveException, Endpoint: endpoint, cause: pkgerrors.WithStack(cause)}
}

// TransactionIDMismatch wraps a response whose transaction id does not
// match the request that was sent (TCP/UDP only).
func TransactionIDMismatch(endpoint string, cause error) error {
	return &TransactionError{Kind: KindTransactionIDMismatch, Endpoint: endpoint, cause: pkgerrors.WithStack(cause)}
}

// DecodeError wraps a malformed or short response that failed to parse.
func DecodeError(endpoint string, cause error) error {
	return &TransactionError{Kind: KindDecodeError, Endpoint: endpoint, cause: pkgerrors.WithStack(cause)}
}

// Unknown wraps any error this package's callers could not classify.
func Unknown(endpoint string, cause error) error {
	return &TransactionError{Kind: KindUnknown, Endpoint: endpoint, cause: pkgerrors.WithStack(cause)}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *TransactionError, and KindUnknown otherwise.
func KindOf(err error) Kind {
	var te *TransactionError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// Retryable reports whether the executor's retry policy should attempt
// err's transaction again. Every defined kind retries except
// KindConnectionFailed and KindUnknown. A slave exception retries: the
// connection is healthy and the slave may accept the same request a
// moment later (busy/ack responses in particular are expected to resolve
// on retry). A connection-acquire failure does not: nothing was ever
// written to the slave, so there is no reason to believe an immediate
// second dial attempt fares any better, and the pool's own reconnect/age
// policy is what decides when the next Borrow should redial.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindIOError, KindDecodeError, KindTransactionIDMismatch, KindSlaveException:
		return true
	default:
		return false
	}
}

// DisconnectsConnection reports whether a failure of this kind indicates
// the link itself is unhealthy and should be torn down (subject to the
// endpoint's DisconnectOnError policy), as opposed to a slave exception,
// which is the slave's answer on an otherwise-healthy connection.
func DisconnectsConnection(err error) bool {
	return KindOf(err) != KindSlaveException
}
