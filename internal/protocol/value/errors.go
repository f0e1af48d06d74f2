package value

import "errors"

var (
	ErrKindMismatch = errors.New("value: kind mismatch")
	ErrOutOfRange   = errors.New("value: index out of range")
	ErrInvalidJSON  = errors.New("value: invalid json")
	ErrTooDeep      = errors.New("value: nesting too deep")
)
