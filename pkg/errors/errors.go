package errors

import (
	"errors"
)

type Code string

const (
	CodeInvalidCatalog    Code = "invalid_catalog"
	CodeUnknownRole       Code = "unknown_role"
	CodeUnknownPermission Code = "unknown_permission"
	CodePermissionDenied  Code = "permission_denied"
	CodeBuildingDenied    Code = "building_denied"
	CodeUnauthenticated   Code = "unauthenticated"
	CodeNotFound          Code = "not_found"
	CodeInvalidInput      Code = "invalid_input"
)

const (
	CodeUnknown            Code = "unknown"
	CodeStorageUnavailable Code = "storage_unavailable"
	CodeCacheUnavailable   Code = "cache_unavailable"
)

var ErrMissingStore = errors.New("cityauthz: assignment store is not configured")

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	if e.Message != "" {
		return e.Message
	}

	if e.Err != nil {
		return e.Err.Error()
	}

	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func CodeOf(err error) Code {
	var typed *Error
	if !errors.As(err, &typed) {
		return CodeUnknown
	}
	return typed.Code
}

func IsCode(err error, code Code) bool {
	var typed *Error
	if !errors.As(err, &typed) {
		return false
	}
	return typed.Code == code
}

// IsInternalCode reports whether err carries one of the server-side codes.
// Untyped errors are not internal codes.
func IsInternalCode(err error) bool {
	return IsCode(err, CodeUnknown) || IsCode(err, CodeStorageUnavailable) || IsCode(err, CodeCacheUnavailable)
}
