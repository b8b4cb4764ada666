package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	HTTPStatus int         `json:"-"`
	Err        error       `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches client-visible structured details.
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

func ErrMissingField(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrPayloadTooLarge() *AppError {
	return New("VAL_002", "Request body too large", http.StatusRequestEntityTooLarge)
}

func ErrInvalidAmount() *AppError {
	return New("PAY_002", "Invalid amount", http.StatusBadRequest)
}

// ---- Wallet (WAL) ----

func ErrBelowMinimum(minimum string) *AppError {
	return New("WAL_001", fmt.Sprintf("Minimum withdrawal amount is %s", minimum), http.StatusBadRequest)
}

func ErrAboveMaximum(maximum string) *AppError {
	return New("WAL_002", fmt.Sprintf("Maximum withdrawal amount is %s", maximum), http.StatusBadRequest)
}

func ErrInsufficientBalance() *AppError {
	return New("WAL_003", "Insufficient balance", http.StatusBadRequest)
}

func ErrNotDeletable() *AppError {
	return New("WAL_004", "Transaction cannot be deleted", http.StatusForbidden)
}

func ErrInvalidTransition(from, to string) *AppError {
	return New("WAL_005", fmt.Sprintf("Cannot change status from %s to %s", from, to), http.StatusConflict)
}

// ---- Refunds (REF) ----

func ErrDuplicateRefund() *AppError {
	return New("REF_001", "A pending refund request already exists for this order", http.StatusConflict)
}

func ErrRefundProcessed() *AppError {
	return New("REF_002", "Refund request has already been processed", http.StatusForbidden)
}

// ---- Lookup (NF) ----

func ErrNotFound(entity string) *AppError {
	return New("NF_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a VAL_001 error with a custom message.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}
