package dynaform

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeConflict        ErrorType = "conflict"
	ErrorTypeSchemaExecution ErrorType = "schema_execution"
	ErrorTypeInternal        ErrorType = "internal"
)

// DynaformError is the error returned by the collection manager and the record engine.
type DynaformError struct {
	Type       ErrorType      `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Collection string         `json:"collection,omitempty"`
	Field      string         `json:"field,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

func (e *DynaformError) Error() string {
	if e.Collection != "" && e.Field != "" {
		return fmt.Sprintf("[%s:%s] collection '%s' field '%s': %s", e.Type, e.Code, e.Collection, e.Field, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	if e.Collection != "" {
		return fmt.Sprintf("[%s:%s] collection '%s': %s", e.Type, e.Code, e.Collection, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *DynaformError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to the error
func (e *DynaformError) WithDetail(key string, value any) *DynaformError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to the error
func (e *DynaformError) WithCause(cause error) *DynaformError {
	e.Cause = cause
	return e
}

// WithField adds field context to the error
func (e *DynaformError) WithField(field string) *DynaformError {
	e.Field = field
	return e
}

// WithCollection adds collection context to the error
func (e *DynaformError) WithCollection(collection string) *DynaformError {
	e.Collection = collection
	return e
}

const (
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeRequiredFieldMissing = "REQUIRED_FIELD_MISSING"
	ErrCodeInvalidName          = "INVALID_NAME"
	ErrCodeUnknownFieldType     = "UNKNOWN_FIELD_TYPE"
	ErrCodeSystemFieldImmutable = "SYSTEM_FIELD_IMMUTABLE"

	ErrCodeCollectionNotFound = "COLLECTION_NOT_FOUND"
	ErrCodeFieldNotFound      = "FIELD_NOT_FOUND"
	ErrCodeRecordNotFound     = "RECORD_NOT_FOUND"

	ErrCodeCollectionExists = "COLLECTION_ALREADY_EXISTS"
	ErrCodeFieldExists      = "FIELD_ALREADY_EXISTS"

	ErrCodeDDLFailed   = "DDL_FAILED"
	ErrCodeQueryFailed = "QUERY_FAILED"

	ErrCodeInternalError = "INTERNAL_ERROR"
)

// NewValidationError creates a validation error
func NewValidationError(field, message string) *DynaformError {
	return &DynaformError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeValidationFailed,
		Message: message,
		Field:   field,
	}
}

// NewRequiredFieldError reports a required field missing from a payload.
func NewRequiredFieldError(field string) *DynaformError {
	return &DynaformError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeRequiredFieldMissing,
		Message: fmt.Sprintf("%s is required", field),
		Field:   field,
	}
}

// NewInvalidNameError reports a collection, table, field or column name that cannot be used.
func NewInvalidNameError(field, message string) *DynaformError {
	return &DynaformError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidName,
		Message: message,
		Field:   field,
	}
}

// NewUnknownFieldTypeError reports a field type missing from the type registry.
func NewUnknownFieldTypeError(field string, fieldType FieldType) *DynaformError {
	return &DynaformError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeUnknownFieldType,
		Message: fmt.Sprintf("unknown field type %q", fieldType),
		Field:   field,
	}
}

// NewSystemFieldError reports an attempt to change or remove a system field.
func NewSystemFieldError(field string) *DynaformError {
	return &DynaformError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeSystemFieldImmutable,
		Message: "system fields cannot be modified",
		Field:   field,
	}
}

// NewCollectionNotFoundError creates a collection not found error. ref is the id or name used.
func NewCollectionNotFoundError(ref string) *DynaformError {
	return &DynaformError{
		Type:       ErrorTypeNotFound,
		Code:       ErrCodeCollectionNotFound,
		Message:    "collection not found",
		Collection: ref,
	}
}

// NewFieldNotFoundError creates a field not found error
func NewFieldNotFoundError(collection, field string) *DynaformError {
	return &DynaformError{
		Type:       ErrorTypeNotFound,
		Code:       ErrCodeFieldNotFound,
		Message:    "field not found",
		Collection: collection,
		Field:      field,
	}
}

// NewRecordNotFoundError creates a record not found error
func NewRecordNotFoundError(collection, id string) *DynaformError {
	return &DynaformError{
		Type:       ErrorTypeNotFound,
		Code:       ErrCodeRecordNotFound,
		Message:    fmt.Sprintf("record %s not found", id),
		Collection: collection,
	}
}

// NewCollectionExistsError reports a duplicate collection name.
func NewCollectionExistsError(name string) *DynaformError {
	return &DynaformError{
		Type:       ErrorTypeConflict,
		Code:       ErrCodeCollectionExists,
		Message:    "collection already exists",
		Collection: name,
	}
}

// NewFieldExistsError reports a duplicate field name within a collection.
func NewFieldExistsError(collection, field string) *DynaformError {
	return &DynaformError{
		Type:       ErrorTypeConflict,
		Code:       ErrCodeFieldExists,
		Message:    "field already exists",
		Collection: collection,
		Field:      field,
	}
}

// NewSchemaExecutionError wraps a store failure. The store's message is kept verbatim.
func NewSchemaExecutionError(code string, cause error) *DynaformError {
	msg := "schema execution failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &DynaformError{
		Type:    ErrorTypeSchemaExecution,
		Code:    code,
		Message: msg,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *DynaformError {
	return &DynaformError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// ErrorTypeOf returns the taxonomy type of err, or "" when err carries none.
func ErrorTypeOf(err error) ErrorType {
	var de *DynaformError
	if errors.As(err, &de) {
		return de.Type
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return ErrorTypeOf(err) == ErrorTypeValidation }

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool { return ErrorTypeOf(err) == ErrorTypeNotFound }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return ErrorTypeOf(err) == ErrorTypeConflict }

// IsSchemaExecution reports whether err is a schema execution error.
func IsSchemaExecution(err error) bool { return ErrorTypeOf(err) == ErrorTypeSchemaExecution }
