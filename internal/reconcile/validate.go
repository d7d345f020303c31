package reconcile

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/msa-portal/portal-backend/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	return v
}

// Normalizer is implemented by mutation inputs that trim and canonicalize
// their own fields before validation.
type Normalizer interface {
	Normalize()
}

// Validate normalizes input when it knows how and then checks its struct tags.
func Validate(input any) error {
	if input == nil {
		return nil
	}
	if n, ok := input.(Normalizer); ok {
		n.Normalize()
	}
	if err := validate.Struct(input); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// RequireID rejects blank identifiers before any network call.
func RequireID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", field).
			WithDetails(map[string]string{field: "is required"})
	}
	return nil
}

func formatValidationErrors(err error) *pkgerrors.Error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := map[string]string{}
	for _, fieldErr := range errs {
		details[fieldErr.Field()] = validationMessage(fieldErr)
	}
	fields := make([]string, 0, len(details))
	for field := range details {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+" "+details[field])
	}
	return pkgerrors.New(pkgerrors.CodeValidation, strings.Join(parts, "; ")).WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of %s", fe.Param())
	case "gtfield":
		return fmt.Sprintf("must be after %s", fe.Param())
	}
	return "is invalid"
}

// Trim returns s without surrounding whitespace.
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TrimPtr trims the string behind p, turning blank values into nil.
func TrimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
