// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

package httpapi

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/wardenauth/warden/internal/auth"
)

// requestValidator adapts go-playground/validator to echo.Validator. Field
// names in errors are the JSON (or query) names the client sent.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name, _, _ := strings.Cut(field.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
	return &requestValidator{validate: v}
}

// Validate implements echo.Validator.
func (rv *requestValidator) Validate(i any) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return oops.Code(auth.CodeValidation).Errorf("invalid request")
	}
	first := fieldErrs[0]
	return oops.Code(auth.CodeValidation).
		With("field", first.Field()).
		With("rule", first.Tag()).
		Errorf("%s", fieldMessage(first))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email address"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "max":
		return fe.Field() + " is too long"
	case "min", "gte":
		return fe.Field() + " is too small"
	case "lte":
		return fe.Field() + " is too large"
	}
	return fe.Field() + " is invalid"
}

// bind decodes the request into dst and validates it. Decoding failures are
// validation errors, not echo HTTP errors.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return oops.Code(auth.CodeValidation).Errorf("malformed request body")
	}
	return c.Validate(dst)
}
