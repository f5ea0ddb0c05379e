// Package validation wraps go-playground/validator with the field naming and
// messages shared by the API and the admin client forms.
package validation

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return &Validator{validate: v}
}

// FieldErrors maps a field path (json names, e.g. "products[0].quantity") to a
// human readable message.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, f[k])
	}
	return strings.Join(parts, "; ")
}

// Struct validates s and returns FieldErrors when any rule fails.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate")
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		path := fieldPath(fe.Namespace())
		if _, exists := out[path]; exists {
			continue
		}
		out[path] = message(fe)
	}
	return out
}

func fieldPath(namespace string) string {
	// Drop the root struct name.
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func message(fe validator.FieldError) string {
	label := Label(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			count := fe.Param()
			if count == "1" {
				count = "one"
			}
			return fmt.Sprintf("At least %s %s must be selected", count, strings.ToLower(singular(label)))
		}
		if fe.Param() == "0" {
			return label + " cannot be negative"
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "gt":
		if fe.Param() == "0" {
			return label + " must be a positive number"
		}
		return fmt.Sprintf("%s must be greater than %s", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("Invalid %s", strings.ToLower(label))
	}
	return fmt.Sprintf("%s is invalid", label)
}

// Label turns a json field name into the label shown next to form fields.
func Label(field string) string {
	if field == "" {
		return field
	}
	if idx := strings.Index(field, "["); idx >= 0 {
		field = field[:idx]
	}
	return strings.ToUpper(field[:1]) + field[1:]
}

func singular(label string) string {
	return strings.TrimSuffix(label, "s")
}
