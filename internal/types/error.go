package types

import "fmt"

// CustomError is an HTTP-aware error raised outside of handlers (middleware, gate checks).
type CustomError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewError creates a CustomError.
func NewError(code int, message, errorType string) *CustomError {
	return &CustomError{Code: code, Message: message, Type: errorType}
}

func (e *CustomError) Error() string {
	return fmt.Sprintf("%d: %s [type: %s]", e.Code, e.Message, e.Type)
}
