package llm

import (
	"encoding/json"
	"strings"
)

// StripFences removes a surrounding markdown code fence if the model added one.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decodeJSONText(provider string, req Request, text string) (json.RawMessage, error) {
	cleaned := StripFences(text)
	if cleaned == "" {
		return nil, invalidResponse(provider, "empty response for "+opName(req), nil)
	}
	if !json.Valid([]byte(cleaned)) {
		return nil, invalidResponse(provider, "response for "+opName(req)+" is not valid JSON", nil)
	}
	return json.RawMessage(cleaned), nil
}

func opName(req Request) string {
	if req.Op != "" {
		return req.Op
	}
	return "content"
}
