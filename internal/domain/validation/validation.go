// Package validation wraps go-playground/validator with the rules and
// message shaping shared by the match form and the login form.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is the sentinel every Errors value unwraps to.
var ErrValidation = errors.New("validation failed")

var digitsRe = regexp.MustCompile(`^\d+$`)

// New returns a validator that reports fields by their json name and knows
// the "digits" rule.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("digits", validateDigits)
	return v
}

func validateDigits(fl validator.FieldLevel) bool {
	return digitsRe.MatchString(fl.Field().String())
}

// Errors maps a field name to its user-facing message.
type Errors map[string]string

// Error joins all messages in field order.
func (e Errors) Error() string {
	fields := e.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e Errors) Unwrap() error { return ErrValidation }

// Fields returns the failing field names sorted.
func (e Errors) Fields() []string {
	out := make([]string, 0, len(e))
	for f := range e {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Add records msg for field unless the field already has a message.
func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// Messages returns the message for a failing field and rule.
type Messages func(field, tag string) string

// Collect converts a validator error into Errors, keeping the first failure
// per field. Non-validation errors are returned unchanged.
func Collect(err error, msg Messages) (Errors, error) {
	if err == nil {
		return nil, nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return nil, err
	}
	out := make(Errors, len(ves))
	for _, fe := range ves {
		out.Add(fe.Field(), msg(fe.Field(), fe.Tag()))
	}
	return out, nil
}
