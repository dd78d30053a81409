package suggest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errNoJSON = errors.New("no JSON document in response")

// decodeJSON unmarshals a model reply, tolerating markdown code fences and
// prose around the document.
func decodeJSON(text string, v any) error {
	text = stripFences(text)
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return errNoJSON
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model JSON: %w", err)
	}
	return nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// score accepts a JSON number or numeric string. Absent scores stay unset.
type score struct {
	value float64
	set   bool
}

func (s *score) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSuffix(strings.TrimSpace(unquoted), "%")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("score %s is not numeric", data)
	}
	s.value, s.set = v, true
	return nil
}

func (s score) clamped(def float64) int {
	if !s.set {
		return ClampScore(def)
	}
	return ClampScore(s.value)
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
