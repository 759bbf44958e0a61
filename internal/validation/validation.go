package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	_ "time/tzdata" // timezone tag needs the zone database on hosts without one

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/utils"
)

// Errors maps a JSON field name to a human-readable violation.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Field builds a single-field Errors value.
func Field(field, message string) Errors {
	return Errors{field: message}
}

var maxAmount = decimal.New(1, 15)

// Validator checks request structs against their `validate` tags.
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})

	mustRegister(v, "username", func(fl validator.FieldLevel) bool {
		return utils.ValidateUsername(fl.Field().String()) == ""
	})
	mustRegister(v, "strongpassword", func(fl validator.FieldLevel) bool {
		return utils.ValidatePasswordStrength(fl.Field().String()) == ""
	})
	mustRegister(v, "category", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseCategory(fl.Field().String())
		return ok
	})
	mustRegister(v, "money", func(fl validator.FieldLevel) bool {
		return ValidAmount(fl.Field().String())
	})

	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// ValidAmount reports whether s is a positive amount of at least 0.01 with
// no more than two fractional digits and fifteen integer digits.
func ValidAmount(s string) bool {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	if d.LessThan(decimal.New(1, -2)) || !d.LessThan(maxAmount) {
		return false
	}
	return d.Equal(d.Round(2))
}

// Struct validates s and returns Errors, or nil when s is valid.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := Errors{}
	for _, fe := range fieldErrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "strongpassword":
		return utils.ValidatePasswordStrength(fmt.Sprint(fe.Value()))
	case "username":
		return utils.ValidateUsername(fmt.Sprint(fe.Value()))
	case "eq":
		if fe.Param() == "true" {
			return "must be accepted"
		}
		return "must equal " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "category":
		return "must be one of " + categoryList()
	case "money":
		return "must be between 0.01 and 999999999999999.99 with at most 2 decimal places"
	case "e164":
		return "must be a phone number in E.164 format"
	case "url":
		return "must be a valid URL"
	case "bcp47_language_tag":
		return "must be a BCP 47 language tag"
	case "timezone":
		return "must be an IANA time zone"
	default:
		return "is invalid"
	}
}

func categoryList() string {
	names := make([]string, 0, len(models.Categories))
	for _, c := range models.Categories {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
