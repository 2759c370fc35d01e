package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// ValidationError reports bad caller input or a template mismatch. It is
// raised before any provisioning call and is never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedHandlerError is returned when no backend is registered for a handler type.
type UnsupportedHandlerError struct {
	Handler string
}

func (e *UnsupportedHandlerError) Error() string {
	return fmt.Sprintf("unsupported awsHandler [%s]", e.Handler)
}

// CloudBackendError wraps a failure returned by the cloud API.
type CloudBackendError struct {
	Op   string
	Code string
	Err  error
}

func (e *CloudBackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CloudBackendError) Unwrap() error {
	return e.Err
}

func NewCloudBackendError(op, code string, err error) error {
	return &CloudBackendError{Op: op, Code: code, Err: err}
}

// NotFoundError reports an unknown request, machine or template id.
type NotFoundError struct {
	Kind string
	Id   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s [%s] not found", e.Kind, e.Id)
}

func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, Id: id}
}

// StoreCorruptionError describes an unreadable store file that was moved aside.
type StoreCorruptionError struct {
	Path       string
	BackupPath string
	Err        error
}

func (e *StoreCorruptionError) Error() string {
	return fmt.Sprintf("store file [%s] is corrupt (backed up to [%s]): %v", e.Path, e.BackupPath, e.Err)
}

func (e *StoreCorruptionError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsUnsupportedHandler(err error) bool {
	var target *UnsupportedHandlerError
	return errors.As(err, &target)
}

func IsCloudBackend(err error) bool {
	var target *CloudBackendError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsStoreCorruption(err error) bool {
	var target *StoreCorruptionError
	return errors.As(err, &target)
}
