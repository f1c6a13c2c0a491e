// Package validation wraps go-playground/validator with the rules shared by request schemas.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MeetURLPrefix is the only meeting-link prefix the bot provider accepts.
const MeetURLPrefix = "https://meet.google.com/"

// New returns a validator that reports fields by their json name and knows the "meeturl" tag.
func New() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("meeturl", func(fl validator.FieldLevel) bool {
		return IsMeetURL(fl.Field().String())
	})
	return v
}

// IsMeetURL reports whether s is an absolute URL under the Google Meet domain.
func IsMeetURL(s string) bool {
	if !strings.HasPrefix(s, MeetURLPrefix) {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Host == "meet.google.com"
}

// Message renders a validator error as a single caller-facing sentence.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fieldMessage(fe))
	}
	return strings.Join(parts, ", ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "meeturl":
		return fmt.Sprintf("%s must be a Google Meet URL (%s...)", field, MeetURLPrefix)
	case "required_trigger":
		return fmt.Sprintf("%s is required when interactive mode is enabled", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
