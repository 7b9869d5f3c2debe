package jsonx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when text carries no JSON object or array.
var ErrNoJSON = errors.New("no json value found")

// ExtractJSON returns the outermost JSON object (or array) embedded in text,
// stripping markdown code fences and surrounding prose. An array is chosen
// only when it encloses the first object, so a citation such as "[1]" in the
// prose does not hide the payload.
func ExtractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(stripFences(text))
	if trimmed == "" {
		return "", ErrNoJSON
	}

	objStart := strings.IndexByte(trimmed, '{')
	arrStart := strings.IndexByte(trimmed, '[')
	switch {
	case objStart < 0 && arrStart < 0:
		return "", ErrNoJSON
	case objStart < 0:
		return span(trimmed, arrStart, ']'), nil
	case arrStart < 0 || arrStart > objStart:
		return span(trimmed, objStart, '}'), nil
	}

	// The array opens first: keep it when it wraps the object, e.g. a list of
	// objects, unless only the object parses.
	array := span(trimmed, arrStart, ']')
	object := span(trimmed, objStart, '}')
	if arrStart+len(array) > objStart && (Valid([]byte(array)) || !Valid([]byte(object))) {
		return array, nil
	}
	return object, nil
}

// span returns text from start to the last closer. Truncated output yields
// the tail for the repairer.
func span(text string, start int, closer byte) string {
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return text[start:]
	}
	return text[start : end+1]
}

// UnmarshalLenient decodes model output into out. Strict decoding is tried
// first; malformed JSON is passed through jsonrepair before giving up.
func UnmarshalLenient(text string, out any) error {
	candidate, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	strictErr := Unmarshal([]byte(candidate), out)
	if strictErr == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return fmt.Errorf("decode json: %w (repair failed: %v)", strictErr, err)
	}
	if err := Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("decode repaired json: %w", err)
	}
	return nil
}

func stripFences(text string) string {
	idx := strings.Index(text, "```")
	if idx < 0 {
		return text
	}
	rest := text[idx+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Drop the info string, e.g. ```json
		if !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
