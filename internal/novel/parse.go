package novel

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ParseError reports a structured LLM response that could not be decoded or
// failed schema validation. It feeds the structural-validation retry path:
// callers retry a bounded number of times and then escalate. An empty or
// malformed response is never silently replaced with a zero value.
type ParseError struct {
	Reason string
	Raw    string
	Cause  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("structured response invalid: %s: %v", e.Reason, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

var structValidator = validator.New()

// ParseStructured decodes a raw LLM response into v. Markdown fences and
// surrounding prose are stripped first; after decoding, v is checked against
// its validate tags. Every component that expects structured output goes
// through this one path.
func ParseStructured(raw string, v any) error {
	cleaned := CleanJSONResponse(raw)
	if cleaned == "" {
		return &ParseError{Reason: "no JSON object found", Raw: truncate(raw, 200)}
	}

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &ParseError{Reason: "malformed JSON", Raw: truncate(cleaned, 200), Cause: err}
	}

	if err := structValidator.Struct(v); err != nil {
		return &ParseError{Reason: "schema validation failed", Raw: truncate(cleaned, 200), Cause: err}
	}

	return nil
}

// CleanJSONResponse removes markdown code fences and trims the response to
// its outermost JSON object.
func CleanJSONResponse(response string) string {
	response = strings.ReplaceAll(response, "```json", "")
	response = strings.ReplaceAll(response, "```", "")

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return ""
	}

	return strings.TrimSpace(response[start : end+1])
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
