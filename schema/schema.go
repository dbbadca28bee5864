// Package schema defines the validation contract consumed by the endpoint
// pipeline and a struct-tag implementation of it. The pipeline never
// inspects issue internals beyond forwarding them to the client, so any
// implementation of Schema can be plugged in per endpoint.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Issue describes one validation failure against a declared schema.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

// Schema decodes and validates one input (body, query, params, or output).
//
// A non-empty issue list means the value failed validation and the caller
// decides how to report it. A non-nil error means the schema itself could
// not run (a server-side defect, never the caller's fault).
type Schema interface {
	Decode(raw any) (any, []Issue, error)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report issues against json field names, not Go identifiers.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type structSchema[T any] struct{}

// Struct returns a Schema that decodes raw input into T and validates it
// with `validate` struct tags. Raw input may be a JSON body ([]byte), a
// string map (query/path parameters), or an already-structured value
// (handler output).
func Struct[T any]() Schema {
	return structSchema[T]{}
}

func (structSchema[T]) Decode(raw any) (any, []Issue, error) {
	var target T

	switch input := raw.(type) {
	case nil:
		// Zero value falls through to validation so required fields on a
		// missing body still surface as issues.
	case []byte:
		if len(input) > 0 {
			if err := json.Unmarshal(input, &target); err != nil {
				return nil, []Issue{{Field: "body", Message: "invalid JSON", Rule: "json"}}, nil
			}
		}
	case json.RawMessage:
		if len(input) > 0 {
			if err := json.Unmarshal(input, &target); err != nil {
				return nil, []Issue{{Field: "body", Message: "invalid JSON", Rule: "json"}}, nil
			}
		}
	case T:
		target = input
	case *T:
		if input != nil {
			target = *input
		}
	default:
		// Query and path parameters arrive as string maps; anything else
		// structured goes through the same JSON round trip.
		buf, err := json.Marshal(input)
		if err != nil {
			return nil, nil, fmt.Errorf("schema: cannot decode %T: %w", raw, err)
		}
		if err := json.Unmarshal(buf, &target); err != nil {
			return nil, []Issue{{Field: "input", Message: "malformed input", Rule: "json"}}, nil
		}
	}

	if issues, err := check(target); err != nil || len(issues) > 0 {
		return nil, issues, err
	}
	return target, nil, nil
}

func check(value any) ([]Issue, error) {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		// Non-struct schemas (maps, slices) are decode-only.
		return nil, nil
	}

	err := validate.Struct(rv.Interface())
	if err == nil {
		return nil, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, fmt.Errorf("schema: validator error: %w", err)
	}

	issues := make([]Issue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues = append(issues, Issue{
			Field:   fe.Field(),
			Message: messageFor(fe),
			Rule:    fe.Tag(),
		})
	}
	return issues, nil
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
