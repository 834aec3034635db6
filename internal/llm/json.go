package llm

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
)

// ErrNoJSONObject is returned when a response holds no decodable JSON object.
var ErrNoJSONObject = errors.New("llm: no JSON object in response")

// ExtractJSONObject decodes the first balanced {...} span in text that is a
// valid JSON object into v, which must be a non-nil pointer. Surrounding
// prose and code fences are ignored. Braces inside JSON strings do not count
// towards the balance. v is only written from the span that decodes cleanly.
func ExtractJSONObject(text string, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("llm: ExtractJSONObject needs a non-nil pointer")
	}

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > 0 {
			fresh := reflect.New(rv.Elem().Type())
			if err := json.Unmarshal([]byte(text[start:end+1]), fresh.Interface()); err == nil {
				rv.Elem().Set(fresh.Elem())
				return nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return ErrNoJSONObject
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false
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
				return i
			}
		}
	}
	return -1
}
