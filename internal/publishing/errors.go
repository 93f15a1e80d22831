package publishing

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrValidationFailed indicates a missing or malformed form field.
	ErrValidationFailed = errors.New("publishing: validation failed")

	errMissingBlobStore     = errors.New("blob store is required")
	errMissingContentStore  = errors.New("content store is required")
	errMissingProfileStore  = errors.New("profile store is required")
	errMissingCategoryStore = errors.New("category store is required")

	noOpLogger = zap.NewNop()
)

// ServiceError carries a dotted failure code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted failure code, e.g. "publishing.create_content.upload_failed".
func (e *ServiceError) Code() string {
	return e.code
}

const (
	reasonValidation   = "validation_failed"
	reasonLoadFailed   = "load_failed"
	reasonUploadFailed = "upload_failed"
	reasonPersist      = "persist_failed"
	reasonNotFound     = "not_found"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

func validationError(operation, format string, args ...any) error {
	return newServiceError(operation, reasonValidation, fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...)))
}

func loggerOrDefault(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return noOpLogger
	}
	return logger
}

func logError(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	loggerOrDefault(logger).Error("publishing operation failed", attrs...)
}
