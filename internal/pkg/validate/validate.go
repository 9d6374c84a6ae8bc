package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New(validator.WithRequiredStructEnabled())

// Error lists one message per failed field.
type Error struct {
	Details []string
}

func (e *Error) Error() string { return strings.Join(e.Details, "; ") }

// Struct validates the given struct using its validate tags.
// Failed tags come back as *Error; anything else is returned as is.
func Struct(s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	details := make([]string, 0, len(ve))
	for _, fe := range ve {
		details = append(details, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
	}
	return &Error{Details: details}
}

// Details extracts field messages from err, or a single generic message.
func Details(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}
