package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldErrors map[string]string

// FromBindError turns a gin bind/validation error into field -> message.
// dst is the bound struct pointer; its json or form tags name the fields.
func FromBindError(err error, dst any) FieldErrors {
	out := FieldErrors{}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			key := fieldKey(dst, fe.StructNamespace())
			out[key] = messageForTag(fe.Tag(), fe.Param())
		}
		return out
	}

	// malformed body, type mismatch and the like
	out["_"] = "The request body is invalid."
	return out
}

// fieldKey maps a struct namespace ("initiateRequest.Payer.Email") to the
// wire name ("payer.email").
func fieldKey(dst any, namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	t := reflect.TypeOf(dst)
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		for t != nil && t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t == nil || t.Kind() != reflect.Struct {
			names = append(names, strings.ToLower(p))
			t = nil
			continue
		}
		f, ok := t.FieldByName(p)
		if !ok {
			names = append(names, strings.ToLower(p))
			t = nil
			continue
		}
		names = append(names, tagName(f, p))
		t = f.Type
	}
	return strings.Join(names, ".")
}

func tagName(f reflect.StructField, fallback string) string {
	for _, key := range []string{"json", "form"} {
		tag := f.Tag.Get(key)
		if i := strings.Index(tag, ","); i >= 0 {
			tag = tag[:i]
		}
		if tag != "" && tag != "-" {
			return tag
		}
	}
	return strings.ToLower(fallback)
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "url":
		return "Enter a valid URL."
	case "len":
		return "Must be exactly " + param + " characters."
	case "alpha":
		return "Only letters are allowed."
	case "min":
		return "Must be at least " + param + " characters."
	case "max":
		return "Must be at most " + param + " characters."
	default:
		return "Invalid value."
	}
}
