package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sanukhandev/lms-be-core/internal/apperr"
)

// Validator adapts go-playground/validator to echo. Field errors are keyed by
// their JSON names.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates the echo validator
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate implements echo.Validator
func (v *Validator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Internal(err)
	}

	fields := make(map[string][]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := fieldKey(fe)
		fields[key] = append(fields[key], message(fe))
	}
	return apperr.Validation("", fields)
}

// fieldKey drops the root struct name: "loginRequest.email" becomes "email",
// nested settings keep their path
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	field := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s must be at least %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("The %s must be at least %s.", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s may not be greater than %s characters.", field, fe.Param())
		}
		return fmt.Sprintf("The %s may not be greater than %s.", field, fe.Param())
	case "gte":
		return fmt.Sprintf("The %s must be greater than or equal to %s.", field, fe.Param())
	case "lte":
		return fmt.Sprintf("The %s must be less than or equal to %s.", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	case "eqfield":
		return fmt.Sprintf("The %s confirmation does not match.", strings.TrimSuffix(field, " confirmation"))
	case "url":
		return fmt.Sprintf("The %s must be a valid URL.", field)
	case "hexcolor":
		return fmt.Sprintf("The %s must be a valid hex color.", field)
	case "timezone":
		return fmt.Sprintf("The %s must be a valid zone.", field)
	case "len":
		return fmt.Sprintf("The %s must be %s characters.", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("The %s is not a valid date.", field)
	}
	return fmt.Sprintf("The %s field is invalid.", field)
}
