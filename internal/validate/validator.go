// Package validate turns untrusted reasoning output into a typed intent
// proposal or a tagged failure. Pure text-in, value-out: no network, no
// clustering dependency, and it never panics on malformed input.
package validate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"intentminer/internal/logging"
)

// Reason is a machine-readable validation failure class.
type Reason string

const (
	ReasonParseError   Reason = "parse_error"
	ReasonMissingField Reason = "missing_field"
	ReasonTypeError    Reason = "type_error"
)

// Proposal is a validated intent candidate. Immutable once created.
type Proposal struct {
	Label       string   `json:"label"`
	Slug        string   `json:"id"`
	Level       string   `json:"level"`
	Description string   `json:"short_description"`
	WhenToUse   string   `json:"when_to_use"`
	Examples    []string `json:"examples"`
	Confidence  float64  `json:"confidence"`
	Notes       string   `json:"notes"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Result is the tagged outcome of validation.
type Result struct {
	OK       bool
	Proposal *Proposal
	Reason   Reason
	Detail   string
}

func failure(reason Reason, detail string) Result {
	logging.Validate("rejected: %s (%s)", reason, detail)
	return Result{OK: false, Reason: reason, Detail: detail}
}

// Categorical confidence labels map to fixed numeric anchors when the model
// answers with a word instead of a number.
var confidenceAnchors = map[string]float64{
	"very high": 0.95,
	"high":      0.9,
	"medium":    0.6,
	"moderate":  0.6,
	"low":       0.3,
	"very low":  0.1,
}

// Validate parses raw reasoning output into a Proposal. Steps, each a
// fallback for the prior: strict JSON parse; largest top-level JSON span
// extraction with repair (code fences, single quotes, trailing commas);
// then field presence/type checks and confidence coercion.
func Validate(raw string) Result {
	obj, ok := parseStrict(raw)
	if !ok {
		extracted := extractJSON(raw)
		if extracted == "" {
			return failure(ReasonParseError, "no JSON object found in response")
		}
		obj, ok = parseStrict(extracted)
		if !ok {
			repaired := repairJSON(extracted)
			obj, ok = parseStrict(repaired)
			if !ok {
				return failure(ReasonParseError, "JSON object could not be parsed even after repair")
			}
		}
	}

	p := &Proposal{}

	labelV, present := firstPresent(obj, "label", "name")
	if !present {
		return failure(ReasonMissingField, "label/name missing")
	}
	label, ok := labelV.(string)
	if !ok {
		return failure(ReasonTypeError, fmt.Sprintf("label has type %T, want string", labelV))
	}
	if strings.TrimSpace(label) == "" {
		return failure(ReasonMissingField, "label/name empty")
	}
	p.Label = strings.TrimSpace(label)

	descV, present := firstPresent(obj, "short_description", "description")
	if !present {
		return failure(ReasonMissingField, "short_description/description missing")
	}
	desc, ok := descV.(string)
	if !ok {
		return failure(ReasonTypeError, fmt.Sprintf("short_description has type %T, want string", descV))
	}
	if strings.TrimSpace(desc) == "" {
		return failure(ReasonMissingField, "short_description/description empty")
	}
	p.Description = strings.TrimSpace(desc)

	confRaw, present := firstPresent(obj, "confidence")
	if !present {
		return failure(ReasonMissingField, "confidence missing")
	}
	conf, warn, ok := coerceConfidence(confRaw)
	if !ok {
		return failure(ReasonTypeError, fmt.Sprintf("confidence has unusable type %T", confRaw))
	}
	p.Confidence = conf
	if warn != "" {
		p.Warnings = append(p.Warnings, warn)
	}

	// Optional fields: defaulted where acceptable, warned where coerced.
	if slug, ok := stringField(obj, "id", "slug"); ok && strings.TrimSpace(slug) != "" {
		p.Slug = Slugify(slug)
	} else {
		p.Slug = Slugify(p.Label)
		p.Warnings = append(p.Warnings, "id defaulted from label")
	}

	if level, ok := stringField(obj, "level"); ok {
		level = strings.ToLower(strings.TrimSpace(level))
		if level == "primary" || level == "secondary" {
			p.Level = level
		} else {
			p.Level = "secondary"
			p.Warnings = append(p.Warnings, fmt.Sprintf("unknown level %q defaulted to secondary", level))
		}
	} else {
		p.Level = "secondary"
	}

	if v, present := firstPresent(obj, "when_to_use"); present {
		if s, ok := v.(string); ok {
			p.WhenToUse = strings.TrimSpace(s)
		}
	}
	if v, present := firstPresent(obj, "notes"); present {
		if s, ok := v.(string); ok {
			p.Notes = strings.TrimSpace(s)
		}
	}
	if v, present := firstPresent(obj, "examples"); present {
		switch list := v.(type) {
		case []interface{}:
			for _, item := range list {
				if s, ok := item.(string); ok {
					p.Examples = append(p.Examples, s)
				}
			}
		case string:
			p.Examples = append(p.Examples, list)
			p.Warnings = append(p.Warnings, "examples given as a single string")
		}
	}

	logging.ValidateDebug("accepted %q confidence=%.2f warnings=%d", p.Slug, p.Confidence, len(p.Warnings))
	return Result{OK: true, Proposal: p}
}

func parseStrict(text string) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	// Reject trailing non-whitespace so prose-wrapped JSON falls through to
	// extraction instead of silently passing.
	var trailing interface{}
	if err := dec.Decode(&trailing); err == nil {
		return nil, false
	}
	return obj, true
}

// extractJSON finds the largest top-level JSON object in the text by brace
// matching (string-literal aware), handling markdown and prose wrappers.
func extractJSON(text string) string {
	best := ""
	for start := 0; start < len(text); {
		open := strings.IndexByte(text[start:], '{')
		if open == -1 {
			break
		}
		open += start

		depth := 0
		inString := false
		escaped := false
		end := -1
		for i := open; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = i
				}
			}
			if end != -1 {
				break
			}
		}

		if end == -1 {
			// Unbalanced from this brace onward; nothing further can close.
			break
		}
		if end-open+1 > len(best) {
			best = text[open : end+1]
		}
		start = end + 1
	}
	return best
}

var (
	trailingCommaObj = regexp.MustCompile(`,\s*}`)
	trailingCommaArr = regexp.MustCompile(`,\s*]`)
)

// repairJSON applies the cheap fixes that cover most model slop: code
// fences, single-quoted strings, trailing commas.
func repairJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	if !strings.Contains(text, `"`) {
		text = strings.ReplaceAll(text, "'", `"`)
	}
	text = trailingCommaObj.ReplaceAllString(text, "}")
	text = trailingCommaArr.ReplaceAllString(text, "]")
	return text
}

func firstPresent(obj map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj map[string]interface{}, keys ...string) (string, bool) {
	v, present := firstPresent(obj, keys...)
	if !present {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// coerceConfidence accepts a JSON number, a numeric string, or a categorical
// label mapped to fixed anchors, and clamps the result into [0,1].
func coerceConfidence(v interface{}) (float64, string, bool) {
	var value float64
	switch c := v.(type) {
	case float64:
		value = c
	case string:
		trimmed := strings.TrimSpace(c)
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			value = f
		} else if anchor, ok := confidenceAnchors[strings.ToLower(trimmed)]; ok {
			value = anchor
		} else {
			return 0, "", false
		}
	case bool, nil:
		return 0, "", false
	default:
		return 0, "", false
	}

	if value < 0 {
		return 0, fmt.Sprintf("confidence %v clamped to 0", value), true
	}
	if value > 1 {
		return 1, fmt.Sprintf("confidence %v clamped to 1", value), true
	}
	return value, "", true
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify normalizes a name to snake_case suitable as an intent id.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugCleaner.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
