package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON pulls a JSON document out of model output. Providers with
// native structured output return clean JSON, but local models often
// wrap the payload in a fenced code block or surrounding prose. Tried
// in order: the raw string, a ```json fenced block, the outermost
// brace-delimited span.
func ExtractJSON(raw string) (json.RawMessage, error) {
	s := strings.TrimSpace(raw)
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}

	if block, ok := fencedBlock(s); ok && json.Valid([]byte(block)) {
		return json.RawMessage(block), nil
	}

	if span, ok := braceSpan(s); ok && json.Valid([]byte(span)) {
		return json.RawMessage(span), nil
	}

	return nil, &ErrInvalidResponse{
		Content: json.RawMessage(raw),
		Err:     fmt.Errorf("no JSON document found in output"),
	}
}

// fencedBlock extracts the body of the first ``` fenced code block.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	// Skip a language tag like "json" on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// braceSpan returns the span from the first { or [ to the matching
// last } or ].
func braceSpan(s string) (string, bool) {
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(s, pair[0])
		end := strings.LastIndexByte(s, pair[1])
		if start >= 0 && end > start {
			return strings.TrimSpace(s[start : end+1]), true
		}
	}
	return "", false
}

// DecodeInto extracts JSON from raw model output and unmarshals it.
func DecodeInto(raw json.RawMessage, out any) error {
	doc, err := ExtractJSON(string(raw))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return &ErrInvalidResponse{Content: doc, Err: err}
	}
	return nil
}
