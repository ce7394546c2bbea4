package agent

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mesacredito/fidc-cli/internal/resilience"
	"github.com/mesacredito/fidc-cli/internal/schema"
)

// cleanJSON strips markdown fences and any prose around the outermost object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// decodeReply turns model text into a typed report. Every failure is an
// output error so the attempt is retried.
func decodeReply(d *schema.Descriptor, text string) (schema.Report, json.RawMessage, error) {
	raw := cleanJSON(text)
	if raw == "" || !json.Valid([]byte(raw)) {
		return nil, nil, resilience.NewOutputError(eris.Errorf("agent: reply is not a JSON object for %s", d.Name))
	}
	rep, err := d.Decode([]byte(raw))
	if err != nil {
		return nil, nil, resilience.NewOutputError(err)
	}
	return rep, json.RawMessage(raw), nil
}

const outputInstructions = `Respond with a single JSON object and nothing else. It must validate against this JSON Schema:
%s

Use null for values that are not present in the document. Keep numbers exactly as printed (for example "R$ 1.234,56" or "45,67%").`

// buildPrompt appends the output contract and the document text to the prompt.
func buildPrompt(userPrompt, definition, document string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(userPrompt))
	sb.WriteString("\n\n")
	sb.WriteString(strings.Replace(outputInstructions, "%s", definition, 1))
	sb.WriteString("\n\n<document>\n")
	sb.WriteString(document)
	sb.WriteString("\n</document>")
	return sb.String()
}
