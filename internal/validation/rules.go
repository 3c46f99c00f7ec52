// Package validation provides custom validation rules for the application.
package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/userevents/internal/errors"
)

var (
	// emailRegex is a basic email validation pattern
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	snakeCaseRegex = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)*$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// Email validates email format using regex
var Email = validation.NewStringRuleWithError(
	func(s string) bool {
		return emailRegex.MatchString(s)
	},
	validation.NewError("validation_email_format", "must be a valid email address"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// SnakeCase validates lower_snake_case identifiers such as event types.
var SnakeCase = validation.NewStringRuleWithError(
	func(s string) bool {
		return snakeCaseRegex.MatchString(s)
	},
	validation.NewError("validation_snake_case", "must be lower_snake_case"),
)

// JSONObject validates that a json.RawMessage, []byte or string holds a JSON object.
var JSONObject = validation.By(func(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return validation.NewError("validation_json_type", "must be JSON data")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return validation.NewError("validation_json_object", "must be a JSON object")
	}
	return nil
})

// MaxBytes validates that the byte size of a json.RawMessage, []byte or string does
// not exceed limit.
func MaxBytes(limit int) validation.Rule {
	return validation.By(func(value interface{}) error {
		var size int
		switch v := value.(type) {
		case json.RawMessage:
			size = len(v)
		case []byte:
			size = len(v)
		case string:
			size = len(v)
		}
		if size > limit {
			return validation.NewError("validation_max_bytes", "is too large")
		}
		return nil
	})
}
