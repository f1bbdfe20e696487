package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult is the outcome of checking a document against a schema.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// UploadResponseSchema describes the extraction service's upload reply.
var UploadResponseSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"pdf_id", "data"},
	"properties": map[string]interface{}{
		"message": map[string]interface{}{"type": "string"},
		"pdf_id":  map[string]interface{}{"type": []interface{}{"integer", "string"}},
		"rows":    map[string]interface{}{"type": "integer", "minimum": 0},
		"data": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "object"},
		},
	},
}

// RankResponseSchema describes the ranking service's reply.
var RankResponseSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"ranked_rows"},
	"properties": map[string]interface{}{
		"extracted_job_text": map[string]interface{}{"type": []interface{}{"string", "null"}},
		"ranked_rows": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"anyOf": []interface{}{
					map[string]interface{}{"required": []interface{}{"cvId"}},
					map[string]interface{}{"required": []interface{}{"cv_id"}},
					map[string]interface{}{"required": []interface{}{"id"}},
				},
				"properties": map[string]interface{}{
					"rank":        map[string]interface{}{"type": "number"},
					"score":       map[string]interface{}{"type": "number"},
					"final_score": map[string]interface{}{"type": "number"},
				},
			},
		},
	},
}

// Validate checks document (any JSON-compatible Go value) against schema.
func Validate(schema map[string]interface{}, document interface{}) (*ValidationResult, error) {
	if len(schema) == 0 {
		return &ValidationResult{Valid: true}, nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	return out, nil
}

// GetErrorMessages returns "field: message" strings for every error.
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return messages
}

// Summary joins all messages into one line.
func (vr *ValidationResult) Summary() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, e := range vr.Errors {
		if e.Field == field {
			return true
		}
	}
	return false
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func ValidateEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

var otpPattern = regexp.MustCompile(`^\d{4,8}$`)

// ValidateOTP accepts 4 to 8 digit one-time codes.
func ValidateOTP(otp string) bool {
	return otpPattern.MatchString(strings.TrimSpace(otp))
}
