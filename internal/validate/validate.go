// Package validate wraps a shared go-playground validator instance with the
// custom rules used by the API: person names (letters and spaces, 2–50
// chars) and strong passwords (at least 8 chars containing lower, upper,
// digit and symbol).
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var nameRe = regexp.MustCompile(`^[\p{L}][\p{L} ]*$`)

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("personname", personName); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("strongpassword", strongPassword); err != nil {
		panic(err)
	}
}

// Get returns the shared validator instance.
func Get() *validator.Validate {
	return validate
}

// Struct validates a tagged struct with the shared instance.
func Struct(s interface{}) error {
	return validate.Struct(s)
}

// personName accepts 2–50 characters of letters and spaces.
func personName(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	n := len([]rune(s))
	if n < 2 || n > 50 {
		return false
	}
	return nameRe.MatchString(s)
}

// strongPassword requires at least 8 characters with at least one lower
// case letter, one upper case letter, one digit and one symbol.
func strongPassword(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 8 {
		return false
	}
	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return lower && upper && digit && symbol
}

// FieldError is one entry of the VALIDATION_ERROR details list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Describe converts a validator error into field-level detail entries with
// stable, human-readable messages.  Non-validation errors produce a single
// generic entry.
func Describe(err error) []FieldError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "", Message: "invalid request body"}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   strings.ToLower(fe.Field()),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "personname":
		return "must be 2-50 letters and spaces"
	case "strongpassword":
		return "must be at least 8 characters with lower case, upper case, digit and symbol"
	case "eqfield":
		return "must match " + strings.ToLower(fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}
