package services

import "errors"

// Sentinel errors for explicit error handling
// These errors allow callers to distinguish between different failure modes
// using errors.Is() instead of string matching

var (
	// ErrKeyNotFound indicates the requested key does not exist or belongs to another user
	ErrKeyNotFound = errors.New("key not found")

	// ErrKeyLimitReached indicates the user already holds the maximum number of active keys
	ErrKeyLimitReached = errors.New("maximum number of active API keys reached")

	// ErrKeyRevoked indicates an operation that requires an active key hit a revoked one
	ErrKeyRevoked = errors.New("key is revoked")

	// ErrRotationConflict indicates the key changed between read and rotation
	ErrRotationConflict = errors.New("key was rotated concurrently")

	// ErrInvalidInput indicates a request failed validation
	ErrInvalidInput = errors.New("invalid input")

	// ErrUserNotFound indicates the user does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists indicates the email or username is taken
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidCredentials indicates authentication failed
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrOrderNotFound indicates the order does not exist for this user
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderClosed indicates the order can no longer be changed
	ErrOrderClosed = errors.New("order is not open")

	// ErrNotificationNotFound indicates the notification does not exist for this user
	ErrNotificationNotFound = errors.New("notification not found")
)

// FieldError is a validation failure on a single input field
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Unwrap makes errors.Is(err, ErrInvalidInput) hold for field errors
func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, message string) error {
	return &FieldError{Field: field, Message: message}
}
