package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/medreportgen-server/internal/domain"
)

var registerTagNameOnce sync.Once

// useJSONFieldNames makes validator report json field names instead of Go
// struct field names.
func useJSONFieldNames() {
	registerTagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindingErrors converts a request decoding or validation failure into the
// per-field detail list returned with 422.
func bindingErrors(err error) domain.ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make(domain.ValidationErrors, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msg := "field required"
			if fe.Tag() != "required" {
				msg = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
			}
			out = append(out, domain.NewValidationError(fe.Field(), msg, nil))
		}
		return out
	}

	var resolveErrs domain.ValidationErrors
	if errors.As(err, &resolveErrs) {
		return resolveErrs
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return domain.ValidationErrors{
			domain.NewValidationError(field, "value is not a valid "+jsonTypeName(typeErr.Type), typeErr.Value),
		}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return domain.ValidationErrors{
			domain.NewValidationError("body", fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset), nil),
		}
	}

	if errors.Is(err, io.EOF) {
		return domain.ValidationErrors{domain.NewValidationError("body", "field required", nil)}
	}

	return domain.ValidationErrors{domain.NewValidationError("body", err.Error(), nil)}
}

func jsonTypeName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Struct, reflect.Map:
		return "object"
	default:
		return t.String()
	}
}
