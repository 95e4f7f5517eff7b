package utils

import (
	"fmt"
)

// ResponseCode business response code
type ResponseCode int

const (
	CodeSuccess ResponseCode = 0

	// Validation errors: rejected synchronously, never retried
	CodeInvalidParam      ResponseCode = 40001
	CodeEmptySelection    ResponseCode = 40002
	CodeMalformedEnvelope ResponseCode = 40003
	CodeNonPositiveAmount ResponseCode = 40004

	// Business rejections: terminal for the saga instance, compensation fires
	CodeStockNotEnough  ResponseCode = 42001
	CodePaymentDeclined ResponseCode = 42002
	CodeCheckoutTimeout ResponseCode = 42003

	// Transient infrastructure errors: bounded retry behind idempotency marks
	CodeRateLimit     ResponseCode = 42901
	CodeGatewayError  ResponseCode = 50301
	CodeDatabaseError ResponseCode = 50302
	CodeRedisError    ResponseCode = 50303
	CodeQueueError    ResponseCode = 50304

	// Fatal inconsistency: halt the aggregate, flag for manual inspection
	CodeIllegalTransition  ResponseCode = 50901
	CodeValidationMismatch ResponseCode = 50902

	CodeInternalError ResponseCode = 50000
	CodeNotFound      ResponseCode = 40400
)

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WrapError wrap error
func WrapError(err error, code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Predefined errors
var (
	// Validation
	ErrInvalidParam           = NewError(CodeInvalidParam, "invalid parameter")
	ErrEmptyCheckoutSelection = NewError(CodeEmptySelection, "no valid items selected for checkout")
	ErrNonPositiveAmount      = NewError(CodeNonPositiveAmount, "order amount must not be negative")

	// Business rejections
	ErrStockNotEnough  = NewError(CodeStockNotEnough, "stock not enough")
	ErrPaymentDeclined = NewError(CodePaymentDeclined, "payment declined")
	ErrCheckoutTimeout = NewError(CodeCheckoutTimeout, "checkout timed out")

	// Lookup
	ErrOrderNotFound    = NewError(CodeNotFound, "order not found")
	ErrPaymentNotFound  = NewError(CodeNotFound, "payment not found")
	ErrCartItemNotFound = NewError(CodeNotFound, "cart item not found")

	// Fatal inconsistency
	ErrIllegalTransition  = NewError(CodeIllegalTransition, "illegal state transition")
	ErrValidationMismatch = NewError(CodeValidationMismatch, "order validation mismatch")

	// System
	ErrInternalError = NewError(CodeInternalError, "internal server error")
	ErrDatabaseError = NewError(CodeDatabaseError, "database error")
	ErrRedisError    = NewError(CodeRedisError, "redis error")
	ErrGatewayError  = NewError(CodeGatewayError, "payment gateway error")
	ErrRateLimit     = NewError(CodeRateLimit, "rate limit exceeded")
)

// IsAppError check if it's an application error
func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

// GetErrorCode get error code
func GetErrorCode(err error) ResponseCode {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// GetErrorMessage get error message
func GetErrorMessage(err error) string {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}

// IsTransient reports whether the error class is eligible for retry.
func IsTransient(err error) bool {
	switch GetErrorCode(err) {
	case CodeGatewayError, CodeDatabaseError, CodeRedisError, CodeQueueError, CodeRateLimit:
		return true
	}
	return false
}

// IsFatal reports whether the error indicates an inconsistency that must
// halt processing for the aggregate instead of being retried.
func IsFatal(err error) bool {
	switch GetErrorCode(err) {
	case CodeIllegalTransition, CodeValidationMismatch:
		return true
	}
	return false
}
