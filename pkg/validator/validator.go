package validator

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/token"
)

var validate = New()

// reasons maps a failed tag to the text shown after the field name.
var reasons = map[string]string{
	"required": "is required",
	"email":    "is not a valid email address",
	"url":      "is not a valid URL",
	"token":    "is not a valid token",
	"min":      "is too short",
	"max":      "is too long",
	"gt":       "is too small",
	"gte":      "is too small",
	"lt":       "is too large",
	"lte":      "is too large",
	"future":   "must be in the future",
	"positive": "must be positive",
}

// FieldError is the first failed rule of a validated struct. Field is the
// json name of the offending field.
type FieldError struct {
	Field string
	Tag   string
}

func (e *FieldError) Error() string {
	reason, ok := reasons[e.Tag]
	if !ok {
		reason = "is invalid"
	}
	return e.Field + " " + reason
}

func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	_ = v.RegisterValidation("token", validateToken)
	_ = v.RegisterValidation("future", validateFutureDate)
	_ = v.RegisterValidation("positive", validatePositiveInt)
	return v
}

func jsonName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

func validateToken(fl validator.FieldLevel) bool {
	return token.WellFormed(fl.Field().String())
}

func validateFutureDate(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	return ok && t.After(time.Now())
}

func validatePositiveInt(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(int)
	return ok && val > 0
}

// Validate checks structure against its validate tags and returns a
// *FieldError for the first rule that fails.
func Validate(ctx context.Context, structure any) error {
	err := validate.StructCtx(ctx, structure)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	return &FieldError{Field: fields[0].Field(), Tag: fields[0].Tag()}
}

// Email reports whether s is a single address safe to put in a mail header.
func Email(s string) bool {
	if strings.ContainsAny(s, "\r\n") {
		return false
	}
	return validate.Var(s, "required,email") == nil
}
