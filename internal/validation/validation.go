// Package validation builds the request validator shared by the account and chat handlers.
package validation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

const (
	TagCampusEmail  = "campus_email"
	TagImageDataURI = "image_datauri"
)

// New returns a validator with the campus_email and image_datauri rules registered.
// Field names in errors are taken from json tags.
func New(campusDomain string) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	pattern := CampusEmailPattern(campusDomain)
	// registration only fails on empty tags or nil funcs
	_ = v.RegisterValidation(TagCampusEmail, func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation(TagImageDataURI, func(fl validator.FieldLevel) bool {
		return IsImageDataURI(fl.Field().String())
	})
	return v
}

func CampusEmailPattern(domain string) *regexp.Regexp {
	domain = strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
	return regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[^.@]+\.` + regexp.QuoteMeta(domain) + `$`)
}

// NormalizeEmail trims and lowercases an address before lookups and validation.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsImageDataURI reports whether s is a data URI whose payload sniffs as an image.
func IsImageDataURI(s string) bool {
	payload, ok := decodeDataURI(s)
	if !ok || len(payload) == 0 {
		return false
	}
	return strings.HasPrefix(mimetype.Detect(payload).String(), "image/")
}

func decodeDataURI(s string) ([]byte, bool) {
	rest, found := strings.CutPrefix(s, "data:")
	if !found {
		return nil, false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return nil, false
	}
	if strings.HasSuffix(meta, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return nil, false
		}
		return decoded, true
	}
	decoded, err := url.PathUnescape(data)
	if err != nil {
		return nil, false
	}
	return []byte(decoded), true
}

// Describe turns the first validation failure into a user facing sentence.
// Non validation errors are returned as is.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "max":
		return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
	case "min":
		return fmt.Sprintf("%q length must be at least %s characters long", field, fe.Param())
	case TagCampusEmail:
		return "Please provide a campus email address."
	case "datauri", TagImageDataURI:
		return fmt.Sprintf("%q must be a valid image data URI", field)
	default:
		return fmt.Sprintf("%q is invalid", field)
	}
}
