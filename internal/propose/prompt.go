package propose

import (
	"fmt"
	"strings"
)

// promptTemplate demands a single pure-JSON object in the intent schema.
// The %s slot receives the bulleted sample messages.
const promptTemplate = `You are given a list of customer messages belonging to the same cluster.
Your task is to propose a new intent strictly as JSON in this schema:

{
  "label": "<concise_snake_case_label>",
  "id": "<snake_case_id>",
  "level": "<primary|secondary>",
  "short_description": "<one sentence clear definition>",
  "when_to_use": "<rule for when the classifier should pick this intent>",
  "examples": ["ex1", "ex2", "ex3"],
  "confidence": <0.0_to_1.0>,
  "notes": "<optional>"
}

Rules:
- MUST return pure JSON. No markdown.
- Use snake_case.
- level = secondary unless clearly new primary intent.
- confidence < 0.6 means ambiguity.

Cluster messages:
%s`

// BuildPrompt renders the labeling prompt for a set of sample messages.
// Byte-for-byte deterministic for the same samples.
func BuildPrompt(samples []string) string {
	var b strings.Builder
	for i, s := range samples {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(s)
	}
	return fmt.Sprintf(promptTemplate, b.String())
}
