package models

import (
	"errors"
	"fmt"
)

var (
	ErrRunNotFound             = errors.New("print run not found")
	ErrNotAwaitingConfirmation = errors.New("print run is not awaiting duplicate confirmation")
	ErrUnknownTransport        = errors.New("unknown transport kind")
	ErrTransportUnavailable    = errors.New("transport not configured")
	ErrBluetoothNotSupported   = errors.New("bluetooth RFCOMM is not supported on this platform")
)

// ValidationError reports a label field that failed validation. It is
// raised before any side effect and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// RenderError reports a document generation failure. Any partial artifact
// has already been removed when this error is returned.
type RenderError struct {
	OrderID string
	Cause   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render label for order %s: %v", e.OrderID, e.Cause)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// TransportError reports a failed delivery of one copy
type TransportError struct {
	Kind        TransportKind
	Destination string
	OrderID     string
	CopyIndex   int
	CopyTotal   int
	Reason      string
	Cause       error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s transport to %s failed", e.Kind, e.Destination)
	if e.CopyIndex > 0 {
		msg = fmt.Sprintf("%s on copy %d/%d of order %s", msg, e.CopyIndex, e.CopyTotal, e.OrderID)
	}
	return msg + ": " + e.Reason
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// LedgerError wraps a history read or write failure. It never leaves the
// ledger; it exists so the ledger can log a uniform message.
type LedgerError struct {
	Op    string // "load" or "append"
	Cause error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Cause)
}

func (e *LedgerError) Unwrap() error {
	return e.Cause
}
