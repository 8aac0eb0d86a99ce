package canonical

import "fmt"

// InvalidValueError indicates an input shape the canonicalizer does not accept.
type InvalidValueError struct {
	Value any
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid address value of type %T", e.Value)
}

// InvalidNumericError indicates a latitude or longitude that could not be
// coerced to a float.
type InvalidNumericError struct {
	Field string
	Value string
}

func (e *InvalidNumericError) Error() string {
	return fmt.Sprintf("invalid value for %s: %q", e.Field, e.Value)
}

// InvalidCodeError indicates a *_code exceeding its field's maximum length
// that is not a harmless duplicate of the corresponding long name.
type InvalidCodeError struct {
	Field string
	Code  string
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid %s (too long): %s", e.Field, e.Code)
}
