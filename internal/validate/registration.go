// Package validate checks registration input before it is sent to the
// backend, producing per-field messages suitable for showing next to the
// offending input.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Registration is the sign-up form.
type Registration struct {
	Username        string `json:"username" validate:"nonblank,min=3,max=20,username"`
	Password        string `json:"password" validate:"required,password"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// PasswordRule is one requirement a password must meet.
type PasswordRule struct {
	Pattern *regexp.Regexp
	Message string
}

// PasswordRules lists the password requirements in display order.
var PasswordRules = []PasswordRule{
	{Pattern: regexp.MustCompile(`.{8,}`), Message: "At least 8 characters"},
	{Pattern: regexp.MustCompile(`[A-Z]`), Message: "One uppercase letter"},
	{Pattern: regexp.MustCompile(`[a-z]`), Message: "One lowercase letter"},
	{Pattern: regexp.MustCompile(`\d`), Message: "One number"},
	{Pattern: regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`), Message: "One special character"},
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// messages maps field and failed tag to the text shown to the user.
var messages = map[string]map[string]string{
	"username": {
		"nonblank": "Username is required",
		"min":      "Username must be at least 3 characters",
		"max":      "Username must be less than 20 characters",
		"username": "Username can only contain letters, numbers, and underscores",
	},
	"password": {
		"required": "Password is required",
		"password": "Password doesn't meet requirements",
	},
	"confirmPassword": {
		"required": "Please confirm your password",
		"eqfield":  "Passwords don't match",
	},
}

// FieldErrors maps a form field to the message describing its problem.
type FieldErrors map[string]string

// Error lists every field and its message, sorted by field name so the text
// is stable.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+fe[field])
	}
	return "invalid registration: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	mustRegister(v, "nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	mustRegister(v, "username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "password", func(fl validator.FieldLevel) bool {
		return len(UnmetPasswordRules(fl.Field().String())) == 0
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// UnmetPasswordRules returns the messages of every rule password fails.
func UnmetPasswordRules(password string) []string {
	var unmet []string
	for _, rule := range PasswordRules {
		if !rule.Pattern.MatchString(password) {
			unmet = append(unmet, rule.Message)
		}
	}
	return unmet
}

// Check validates form and returns FieldErrors when anything is wrong.
func Check(form Registration) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if _, seen := out[field]; seen {
			continue
		}
		if msg, ok := messages[field][fe.Tag()]; ok {
			out[field] = msg
			continue
		}
		out[field] = fe.Error()
	}
	return out
}
