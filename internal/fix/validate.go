package fix

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError lists every constraint a raw model response violated.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid fix record: " + e.Violations[0]
	}
	return fmt.Sprintf("invalid fix record (%d problems): %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

// Describe renders the violations as a bullet list for the repair prompt.
func (e *ValidationError) Describe() string {
	var b strings.Builder
	for _, v := range e.Violations {
		b.WriteString("- ")
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// wireRecord mirrors FixRecord with pointer fields so that a missing field
// can be told apart from a zero value.
type wireRecord struct {
	IssueNumber   *string  `json:"issueNumber" validate:"required,min=1"`
	TypeOfIssue   *string  `json:"typeOfIssue" validate:"required,oneof=Bug CodeSmell Vulnerability"`
	FromLine      *int     `json:"fromLine" validate:"required,gte=1"`
	ToLine        *int     `json:"toLine" validate:"required,gte=1"`
	OriginalCode  *string  `json:"originalCode" validate:"required"`
	FixedCode     *string  `json:"fixedCode" validate:"required"`
	Justification *string  `json:"justification" validate:"required,min=1"`
	Confidence    *float64 `json:"confidence" validate:"required,gte=0,lte=1"`
}

var recordValidate = newRecordValidator()

func newRecordValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// codeFenceRe matches a markdown code fence wrapping the whole response.
var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?[ \\t]*\\n?(.*?)\\s*```$")

// extractJSON returns the JSON object in raw. A response that already
// decodes as an object is used as is, so fences inside code fields survive.
// Otherwise an enclosing fence and any prose around the outermost braces
// are stripped.
func extractJSON(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "{") && json.Valid([]byte(cleaned)) {
		return cleaned
	}
	if matches := codeFenceRe.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = strings.TrimSpace(matches[1])
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}
	return cleaned
}

// Validate parses raw model output into a FixRecord. On failure it returns a
// *ValidationError describing every violated constraint.
func Validate(raw string) (*FixRecord, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ValidationError{Violations: []string{"response is empty; expected a JSON object"}}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(extractJSON(raw)), &fields); err != nil {
		return nil, &ValidationError{Violations: []string{fmt.Sprintf("response is not a JSON object: %v", err)}}
	}

	var (
		wire       wireRecord
		violations []string
		badType    = make(map[string]bool)
	)
	targets := []struct {
		name string
		dst  any
		kind string
	}{
		{"issueNumber", &wire.IssueNumber, "a string"},
		{"typeOfIssue", &wire.TypeOfIssue, "a string"},
		{"fromLine", &wire.FromLine, "an integer"},
		{"toLine", &wire.ToLine, "an integer"},
		{"originalCode", &wire.OriginalCode, "a string"},
		{"fixedCode", &wire.FixedCode, "a string"},
		{"justification", &wire.Justification, "a string"},
		{"confidence", &wire.Confidence, "a number"},
	}
	for _, t := range targets {
		msg, ok := fields[t.name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(msg, t.dst); err != nil {
			badType[t.name] = true
			violations = append(violations, fmt.Sprintf("field %s must be %s, got %s", t.name, t.kind, truncate(string(msg), 40)))
		}
	}

	if err := recordValidate.Struct(wire); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, &ValidationError{Violations: append(violations, err.Error())}
		}
		for _, fe := range fieldErrs {
			if badType[fe.Field()] {
				continue
			}
			violations = append(violations, describeFieldError(fe))
		}
	}

	if wire.FromLine != nil && wire.ToLine != nil && !badType["fromLine"] && !badType["toLine"] && *wire.FromLine > *wire.ToLine {
		violations = append(violations, fmt.Sprintf("fromLine (%d) must not exceed toLine (%d)", *wire.FromLine, *wire.ToLine))
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	return &FixRecord{
		IssueNumber:   *wire.IssueNumber,
		TypeOfIssue:   Category(*wire.TypeOfIssue),
		FromLine:      *wire.FromLine,
		ToLine:        *wire.ToLine,
		OriginalCode:  *wire.OriginalCode,
		FixedCode:     *wire.FixedCode,
		Justification: *wire.Justification,
		Confidence:    *wire.Confidence,
	}, nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %s is required", fe.Field())
	case "min":
		return fmt.Sprintf("field %s must not be empty", fe.Field())
	case "oneof":
		return fmt.Sprintf("field %s must be one of %s, got %q", fe.Field(), strings.ReplaceAll(fe.Param(), " ", "|"), fmt.Sprint(fe.Value()))
	case "gte":
		return fmt.Sprintf("field %s must be >= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("field %s must be <= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("field %s failed %s check", fe.Field(), fe.Tag())
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
