package models

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind groups error codes by how callers should react to them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindOtp            ErrorKind = "otp"
	KindSessionExpired ErrorKind = "session_expired"
	KindNotFound       ErrorKind = "not_found"
	KindTransient      ErrorKind = "transient"
)

// AppError is the typed error every service returns. Two AppErrors match
// under errors.Is when their codes are equal.
type AppError struct {
	Kind              ErrorKind
	Code              string
	Message           string
	AttemptsRemaining int
	RetryAt           *time.Time
	Err               error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// HTTPStatus maps the error onto a response code.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case CodeNotOwner:
		return http.StatusForbidden
	case CodeCooldownActive:
		return http.StatusTooManyRequests
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindOtp:
		return http.StatusUnprocessableEntity
	case KindSessionExpired:
		return http.StatusGone
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

const (
	CodeValidation        = "VALIDATION"
	CodeNotOwner          = "NOT_OWNER"
	CodeNotActive         = "NOT_ACTIVE"
	CodeAlreadyPending    = "ALREADY_PENDING"
	CodeAlreadyCompleted  = "ALREADY_COMPLETED"
	CodeAlreadyTerminal   = "ALREADY_TERMINAL"
	CodeCooldownActive    = "COOLDOWN_ACTIVE"
	CodeResendLimit       = "RESEND_LIMIT"
	CodeSelfTransfer      = "SELF_TRANSFER"
	CodeDeviceExists      = "DEVICE_EXISTS"
	CodeHistoryExists     = "HISTORY_EXISTS"
	CodeOtpInvalid        = "OTP_INVALID"
	CodeOtpExpired        = "OTP_EXPIRED"
	CodeOtpLocked         = "OTP_LOCKED"
	CodeSessionExpired    = "SESSION_EXPIRED"
	CodeNotFound          = "NOT_FOUND"
	CodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	CodeNoKeyholder       = "NO_KEYHOLDER"
	CodeEmailExists       = "EMAIL_EXISTS"
	CodeTransient         = "TRANSIENT"
)

var (
	ErrValidation        = &AppError{Kind: KindValidation, Code: CodeValidation, Message: "invalid request"}
	ErrNotOwner          = &AppError{Kind: KindConflict, Code: CodeNotOwner, Message: "caller does not own this device"}
	ErrNotActive         = &AppError{Kind: KindConflict, Code: CodeNotActive, Message: "device is not active"}
	ErrAlreadyPending    = &AppError{Kind: KindConflict, Code: CodeAlreadyPending, Message: "device already has a pending transfer"}
	ErrAlreadyCompleted  = &AppError{Kind: KindConflict, Code: CodeAlreadyCompleted, Message: "transfer already completed"}
	ErrAlreadyTerminal   = &AppError{Kind: KindConflict, Code: CodeAlreadyTerminal, Message: "transfer is no longer open"}
	ErrCooldownActive    = &AppError{Kind: KindConflict, Code: CodeCooldownActive, Message: "please wait before requesting a new code"}
	ErrResendLimit       = &AppError{Kind: KindConflict, Code: CodeResendLimit, Message: "resend limit reached for this transfer"}
	ErrSelfTransfer      = &AppError{Kind: KindValidation, Code: CodeSelfTransfer, Message: "cannot transfer a device to yourself"}
	ErrDeviceExists      = &AppError{Kind: KindConflict, Code: CodeDeviceExists, Message: "a device with this identifier is already registered"}
	ErrHistoryExists     = &AppError{Kind: KindConflict, Code: CodeHistoryExists, Message: "history already recorded for this transfer"}
	ErrInvalidOtp        = &AppError{Kind: KindOtp, Code: CodeOtpInvalid, Message: "invalid code"}
	ErrOtpExpired        = &AppError{Kind: KindOtp, Code: CodeOtpExpired, Message: "code has expired, request a new one"}
	ErrOtpLocked         = &AppError{Kind: KindOtp, Code: CodeOtpLocked, Message: "too many attempts, request a new code"}
	ErrSessionExpired    = &AppError{Kind: KindSessionExpired, Code: CodeSessionExpired, Message: "transfer session expired, start again"}
	ErrNotFound          = &AppError{Kind: KindNotFound, Code: CodeNotFound, Message: "not found"}
	ErrRecipientNotFound = &AppError{Kind: KindNotFound, Code: CodeRecipientNotFound, Message: "no user with that email"}
	ErrNoKeyholder       = &AppError{Kind: KindValidation, Code: CodeNoKeyholder, Message: "owner has no phone number to receive the code"}
	ErrEmailExists       = &AppError{Kind: KindConflict, Code: CodeEmailExists, Message: "email already registered"}
	ErrTransient         = &AppError{Kind: KindTransient, Code: CodeTransient, Message: "temporarily unavailable, try again"}
)

// NewValidationError builds a validation error with a specific message.
func NewValidationError(msg string) *AppError {
	return &AppError{Kind: KindValidation, Code: CodeValidation, Message: msg}
}

// NewNotFoundError names the missing entity.
func NewNotFoundError(what string) *AppError {
	return &AppError{Kind: KindNotFound, Code: CodeNotFound, Message: what + " not found"}
}

// NewInvalidOtpError reports a wrong code and how many tries are left.
func NewInvalidOtpError(remaining int) *AppError {
	return &AppError{Kind: KindOtp, Code: CodeOtpInvalid, Message: fmt.Sprintf("invalid code, %d attempts remaining", remaining), AttemptsRemaining: remaining}
}

// NewCooldownError tells the caller when a resend becomes possible.
func NewCooldownError(until time.Time) *AppError {
	e := *ErrCooldownActive
	e.RetryAt = &until
	return &e
}

// NewTransientError wraps a storage failure.
func NewTransientError(err error) *AppError {
	return &AppError{Kind: KindTransient, Code: CodeTransient, Message: ErrTransient.Message, Err: err}
}

// AsAppError extracts an AppError from err.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsTransient reports whether err is worth one more try: a TransientError or
// a raw error that never made it into the taxonomy.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	appErr, ok := AsAppError(err)
	return !ok || appErr.Kind == KindTransient
}

// RetryTransient runs fn and runs it once more when it fails transiently.
// onRetry, when set, sees the first failure.
func RetryTransient(fn func() error, onRetry func(err error)) error {
	err := fn()
	if !IsTransient(err) {
		return err
	}
	if onRetry != nil {
		onRetry(err)
	}
	return fn()
}
