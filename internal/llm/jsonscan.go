package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// FirstObject returns the first balanced {...} span in s that is valid JSON.
// Braces inside string literals are ignored while balancing.
func FirstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

// matchBrace finds the brace closing the one at start.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
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
				return i, true
			}
		}
	}
	return 0, false
}

// rescueObject balances braces from the first '{' without tracking strings,
// which recovers objects whose strings contain unescaped quotes.
func rescueObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ExtractObject recovers a JSON object from free model text. It strips
// reasoning blocks, then tries a balanced scan, a string-blind rescue and
// finally a syntactic repair of everything from the first '{'.
func ExtractObject(text string) (json.RawMessage, bool) {
	s := thinkBlock.ReplaceAllString(text, "")

	if obj, ok := FirstObject(s); ok {
		return json.RawMessage(obj), true
	}
	if obj, ok := rescueObject(s); ok && json.Valid([]byte(obj)) {
		return json.RawMessage(obj), true
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}
	repaired, err := jsonrepair.JSONRepair(s[start:])
	if err != nil {
		return nil, false
	}
	repaired = strings.TrimSpace(repaired)
	if !strings.HasPrefix(repaired, "{") || !json.Valid([]byte(repaired)) {
		return nil, false
	}
	return json.RawMessage(repaired), true
}

// DecodeObject recovers an object from text and unmarshals it into v.
func DecodeObject(text string, v any) bool {
	raw, ok := ExtractObject(text)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}
