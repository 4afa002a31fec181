package pipeline

import (
	"fmt"
	"strings"
)

// CleanModelJSON extracts the JSON object from a freeform model response.
// The model is told to return bare JSON but will sometimes wrap it in
// Markdown code fences or surround it with prose; cleaning strips the known
// fence markers and then keeps the substring from the first '{' to the last
// '}'. A response with no '{' is a hard parse failure.
func CleanModelJSON(raw string) (string, error) {
	s := strings.ReplaceAll(raw, "```json", "")
	s = strings.ReplaceAll(s, "```", "")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in model response")
	}

	return strings.TrimSpace(s[start : end+1]), nil
}
