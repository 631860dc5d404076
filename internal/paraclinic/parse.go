package paraclinic

import (
	"encoding/json"
	"strings"
)

// fallbackSummary is used when the endpoint answered 2xx but no readable
// summary could be extracted from the body.
const fallbackSummary = "Documento recibido y procesado. El servicio de análisis no devolvió un resumen legible."

// parseSummary extracts a human-readable summary from whatever shape the
// analysis endpoint answers with. Endpoints in the wild return a bare JSON
// string, {"text": ...}, an LLM-style {"content": {"parts": [...]}}, a
// {"summary": ...} document, arrays of any of those, or plain text.
func parseSummary(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fallbackSummary
	}

	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		// Not JSON at all; treat the body as plain text.
		return trimmed
	}

	if s := summaryFromValue(v); s != "" {
		return s
	}
	return fallbackSummary
}

func summaryFromValue(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)

	case map[string]any:
		if s, ok := val["text"].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		if content, ok := val["content"].(map[string]any); ok {
			if parts, ok := content["parts"].([]any); ok {
				if s := joinParts(parts); s != "" {
					return s
				}
			}
		}
		if s, ok := val["summary"].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		return ""

	case []any:
		for _, item := range val {
			if s := summaryFromValue(item); s != "" {
				return s
			}
		}
		return ""

	default:
		return ""
	}
}

// joinParts concatenates LLM response parts, which are either bare strings
// or {"text": ...} objects.
func joinParts(parts []any) string {
	var texts []string
	for _, p := range parts {
		switch part := p.(type) {
		case string:
			if s := strings.TrimSpace(part); s != "" {
				texts = append(texts, s)
			}
		case map[string]any:
			if s, ok := part["text"].(string); ok && strings.TrimSpace(s) != "" {
				texts = append(texts, strings.TrimSpace(s))
			}
		}
	}
	return strings.Join(texts, "\n")
}
