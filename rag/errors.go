package rag

import (
	"errors"
	"fmt"
)

// ValidationError 输入校验错误：在任何处理发生前拒绝请求，
// API 层映射为 4xx。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is an input validation error.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func invalidInput(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
