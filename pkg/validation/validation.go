package validation

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Error is returned for caller input that fails validation. It is always a
// client error and is never retried.
type Error struct {
	Message string
	Fields  map[string]string
}

// NewError creates an Error without field detail.
func NewError(msg string) *Error {
	return &Error{Message: msg, Fields: map[string]string{}}
}

// NewErrorf creates an Error with a formatted message.
func NewErrorf(format string, args ...any) *Error {
	return NewError(fmt.Sprintf(format, args...))
}

// FieldError creates an Error for a single field.
func FieldError(field, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Message: msg, Fields: map[string]string{field: msg}}
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 || e.Message != "" {
		return e.Message
	}
	return e.fieldSummary()
}

// AddField records a failing field and returns the error for chaining.
func (e *Error) AddField(field, msg string) *Error {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = msg
	return e
}

// HasFields reports whether any field failed.
func (e *Error) HasFields() bool {
	return len(e.Fields) > 0
}

func (e *Error) fieldSummary() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *Error) ToHTTPError() *httperror.HTTPError {
	herr := httperror.NewHTTPError(http.StatusBadRequest, e.Error())
	for field, msg := range e.Fields {
		herr = herr.AddMetaValue(field, msg)
	}
	return herr
}

// IsError reports whether err is, or wraps, a validation Error.
func IsError(err error) bool {
	var verr *Error
	return errors.As(err, &verr)
}

// Validate runs the struct's `validate` tags and converts failures into an Error
// keyed by the field's json name.
func Validate[T any](value T) (T, error) {
	if err := validate.Struct(value); err != nil {
		return value, fromValidator(err)
	}
	return value, nil
}

func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &Error{Message: "invalid request", Fields: map[string]string{}}
	for _, fe := range verrs {
		out.Fields[jsonName(fe)] = describe(fe)
	}
	return out
}

func jsonName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		name = fe.StructField()
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed '%s' validation, got '%v'", fe.Tag(), fe.Value())
	}
}
