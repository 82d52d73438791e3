// Package errors provides the error taxonomy for the persistent cache engine.
//
// Recoverable failures (missing entries, I/O and engine errors, failed handle
// duplication) surface as error values wrapped in *OpError. Programmer misuse
// (empty keys, caller-supplied write timestamps, unencodable cache ids) is not
// an error value at all: the engine panics, and nothing in this package
// recovers such panics.
package errors

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrorType identifies the layer an error originated from.
type ErrorType string

const (
	// ErrorTypeCollection represents collection-level errors
	ErrorTypeCollection ErrorType = "collection"
	// ErrorTypeBackend represents storage-engine errors
	ErrorTypeBackend ErrorType = "backend"
	// ErrorTypeStorage represents on-disk file management errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeSandbox represents file-handle and shared-memory errors
	ErrorTypeSandbox ErrorType = "sandbox"
	// ErrorTypeFactory represents cross-process provisioning errors
	ErrorTypeFactory ErrorType = "factory"
)

// Common error values
var (
	// Lookup errors
	ErrEntryNotFound = errors.New("entry not found")

	// Lifecycle errors
	ErrCollectionClosed = errors.New("collection is closed")
	ErrBackendClosed    = errors.New("backend is closed")
	ErrFactoryClosed    = errors.New("factory is closed")

	// Capability errors
	ErrReadOnlyBackend = errors.New("backend is read-only")
	ErrNotExportable   = errors.New("backend does not support parameter export")

	// Sandbox errors
	ErrAlreadyRegistered = errors.New("virtual path already registered")
	ErrHandleClosed      = errors.New("file handle is closed")
)

// OpError describes a failed engine operation.
type OpError struct {
	Op      string
	CacheID string
	Key     string
	Err     error
	ErrType ErrorType
}

// determineErrorType determines the error type based on the error
func determineErrorType(err error) ErrorType {
	switch {
	case errors.Is(err, ErrEntryNotFound) || errors.Is(err, ErrBackendClosed) ||
		errors.Is(err, ErrReadOnlyBackend) || errors.Is(err, ErrNotExportable):
		return ErrorTypeBackend
	case errors.Is(err, ErrCollectionClosed):
		return ErrorTypeCollection
	case errors.Is(err, ErrAlreadyRegistered) || errors.Is(err, ErrHandleClosed):
		return ErrorTypeSandbox
	case errors.Is(err, ErrFactoryClosed):
		return ErrorTypeFactory
	default:
		return ErrorTypeStorage
	}
}

// Error implements the error interface
func (e *OpError) Error() string {
	switch {
	case e.CacheID != "" && e.Key != "":
		return fmt.Sprintf("%s: %s: cache=%q key=%q: %v", e.ErrType, e.Op, e.CacheID, e.Key, e.Err)
	case e.CacheID != "":
		return fmt.Sprintf("%s: %s: cache=%q: %v", e.ErrType, e.Op, e.CacheID, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.ErrType, e.Op, e.Err)
	}
}

// Unwrap returns the underlying error
func (e *OpError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches the receiver
func (e *OpError) Is(target error) bool {
	t, ok := target.(*OpError)
	if !ok {
		return false
	}
	return e.ErrType == t.ErrType && e.Op == t.Op && errors.Is(e.Err, t.Err)
}

// NewOpError creates a new OpError
func NewOpError(errType ErrorType, op, cacheID, key string, err error) error {
	return &OpError{
		ErrType: errType,
		Op:      op,
		CacheID: cacheID,
		Key:     key,
		Err:     err,
	}
}

// ErrorMetrics tracks error statistics across the engine
type ErrorMetrics struct {
	// Error counts by type
	CollectionErrors atomic.Int64
	BackendErrors    atomic.Int64
	StorageErrors    atomic.Int64
	SandboxErrors    atomic.Int64
	FactoryErrors    atomic.Int64

	// Last error timestamp
	LastError atomic.Value // time.Time
}

var metrics = newErrorMetrics()

func newErrorMetrics() *ErrorMetrics {
	m := &ErrorMetrics{}
	m.LastError.Store(time.Time{})
	return m
}

// GetErrorMetrics returns the current error metrics
func GetErrorMetrics() *ErrorMetrics {
	return metrics
}

// ResetErrorMetrics resets all error metrics
func ResetErrorMetrics() {
	metrics.CollectionErrors.Store(0)
	metrics.BackendErrors.Store(0)
	metrics.StorageErrors.Store(0)
	metrics.SandboxErrors.Store(0)
	metrics.FactoryErrors.Store(0)
	metrics.LastError.Store(time.Time{})
}

// updateErrorMetrics updates metrics for the given error type
func updateErrorMetrics(errType ErrorType) {
	switch errType {
	case ErrorTypeCollection:
		metrics.CollectionErrors.Add(1)
	case ErrorTypeBackend:
		metrics.BackendErrors.Add(1)
	case ErrorTypeStorage:
		metrics.StorageErrors.Add(1)
	case ErrorTypeSandbox:
		metrics.SandboxErrors.Add(1)
	case ErrorTypeFactory:
		metrics.FactoryErrors.Add(1)
	}
	metrics.LastError.Store(time.Now())
}

// Wrap wraps an error with operation context and updates metrics.
// A nil error and a lookup miss pass through untouched so that
// errors.Is(err, ErrEntryNotFound) stays a one-step check for callers.
func Wrap(op, cacheID, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrEntryNotFound) {
		return err
	}

	errType := determineErrorType(err)
	updateErrorMetrics(errType)

	return NewOpError(errType, op, cacheID, key, err)
}

// IsOpError checks if an error is an OpError
func IsOpError(err error) bool {
	var opErr *OpError
	return errors.As(err, &opErr)
}

// GetOpError returns the OpError if the error chain contains one
func GetOpError(err error) *OpError {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr
	}
	return nil
}

// IsErrorType checks if an error belongs to a specific layer
func IsErrorType(err error, errType ErrorType) bool {
	if opErr := GetOpError(err); opErr != nil {
		return opErr.ErrType == errType
	}
	return false
}

// IsNotFound checks if the error is an entry miss
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}

// IsClosed checks if the error is any of the lifecycle terminal states
func IsClosed(err error) bool {
	return errors.Is(err, ErrCollectionClosed) ||
		errors.Is(err, ErrBackendClosed) ||
		errors.Is(err, ErrFactoryClosed)
}
