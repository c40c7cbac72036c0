package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jacentio/bloggy/blog"
)

var (
	urlSafePattern   = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	basicTextPattern = regexp.MustCompile(`^[a-zA-Z0-9_ \-]+$`)
)

// newValidator returns a validator that reports fields by their JSON name and knows the
// "urlsafe" (slugs and tag names) and "basictext" (titles and labels) rules.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("urlsafe", func(fl validator.FieldLevel) bool {
		return urlSafePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("basictext", func(fl validator.FieldLevel) bool {
		return basicTextPattern.MatchString(fl.Field().String())
	})
	return v
}

// urlID returns the slug or tag name in URL parameter param, checked against the rules
// request bodies follow.
func (s *Server) urlID(r *http.Request, param string) (string, error) {
	id := chi.URLParam(r, param)
	if err := s.validate.Var(id, "required,max=255,urlsafe"); err != nil {
		return "", fmt.Errorf("%w: %s %q", blog.ErrInvalid, param, id)
	}
	return id, nil
}

// fieldErrors turns a validation failure into a field -> message map, or nil if err is not one.
func fieldErrors(err error) map[string]string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return nil
	}
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field()] = friendlyMessage(e)
	}
	return out
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "max":
		if e.Kind() == reflect.Slice {
			return fmt.Sprintf("must not have more than %s entries", e.Param())
		}
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "min":
		return "must be at least " + e.Param()
	case "urlsafe":
		return "only letters, digits, underscores and dashes are allowed"
	case "basictext":
		return "only letters, digits, underscores, spaces and dashes are allowed"
	default:
		return "is invalid"
	}
}
