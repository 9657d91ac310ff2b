// Package validation turns struct-tag validation failures into field messages
// suitable for API responses.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: v}
}

// Struct validates s and returns a field->message map, or nil when s is valid.
// A non-validation error (e.g. s is not a struct) is a programming error and panics.
func (v *Validator) Struct(s any) map[string]string {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		panic(fmt.Sprintf("validation: %v", err))
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, ok := fields[fe.Field()]; ok {
			continue
		}
		fields[fe.Field()] = message(fe)
	}
	return fields
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s is required", field)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address", field)
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("The %s must be at most %s characters", field, fe.Param())
	case "url":
		return fmt.Sprintf("The %s must be a valid URL", field)
	case "excludes":
		return fmt.Sprintf("The %s must not contain %q", field, fe.Param())
	case "e164":
		return fmt.Sprintf("The %s must be a phone number in international format", field)
	default:
		return fmt.Sprintf("The %s is invalid", field)
	}
}
