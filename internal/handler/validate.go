package handler

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var handlePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// RequestValidator plugs go-playground/validator into echo.Context.Validate.
// Field names in messages are the JSON names of the request DTOs.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator registers the "handle" rule (letters, digits and
// underscores) next to the built-in ones.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return handlePattern.MatchString(fl.Field().String())
	})
	return &RequestValidator{v: v}
}

// Validate returns the first rule violation as a client-readable error.
func (rv *RequestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "min":
		return fmt.Errorf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", field, fe.Param())
	case "email":
		return fmt.Errorf("%s must be a valid email", field)
	case "url":
		return fmt.Errorf("%s must be a valid URL", field)
	case "handle":
		return fmt.Errorf("%s may contain only letters, digits and underscores", field)
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}
