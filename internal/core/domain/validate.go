package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidationError carries the human-readable description of a rejected worker.
// The dispatcher serializes its message verbatim into the failure response.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ValidateWorker checks every construction-time invariant of a Worker as sent
// by a client. ID, CreationDate and OwnerID are deliberately not checked: they
// are server-assigned and ignored on input.
func ValidateWorker(w *Worker) error {
	if w == nil {
		return newValidationError("worker must not be nil")
	}
	if math.IsNaN(float64(w.Coordinates.X)) || math.IsInf(float64(w.Coordinates.X), 0) {
		return newValidationError("coordinate x must be a finite number")
	}
	if math.IsNaN(w.Coordinates.Y) || math.IsInf(w.Coordinates.Y, 0) {
		return newValidationError("coordinate y must be a finite number")
	}
	if err := validate.Struct(w); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fieldError(fe))
			}
			return newValidationError("%s", strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// fieldError converts a single ValidationError into a human-readable message.
func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
