package router

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// newValidator builds a validator.Validate with the session_id/client_id
// shape check registered, per spec.md §3/§6.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("session_id", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	return v
}
