package models

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError carries field-scoped validation messages keyed by the JSON
// field name of the offending input.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// IsValidationError reports whether err is (or wraps) a *ValidationError and returns it.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct validates s against its `validate` tags. Failures are
// returned as a *ValidationError whose messages come from the field's
// `msg_<tag>` or `msg` struct tag.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	root := reflect.TypeOf(s)
	for root.Kind() == reflect.Ptr {
		root = root.Elem()
	}

	fields := make(map[string][]string)
	for _, fe := range verrs {
		key := fieldKey(fe.Namespace())
		msg := messageFor(root, fe)
		if !contains(fields[key], msg) {
			fields[key] = append(fields[key], msg)
		}
	}
	return &ValidationError{Fields: fields}
}

// fieldKey drops the root type name from a validator namespace, so
// "ContactRequest.email" becomes "email" and
// "suggestionOutput.cocktails[1].name" becomes "cocktails[1].name".
func fieldKey(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func messageFor(root reflect.Type, fe validator.FieldError) string {
	if f, ok := root.FieldByName(fe.StructField()); ok {
		if m := f.Tag.Get("msg_" + fe.Tag()); m != "" {
			return m
		}
		if m := f.Tag.Get("msg"); m != "" {
			return m
		}
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters.", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters.", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid.", fe.Field())
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
