// Package parsing defines the document parser boundary. Real PDF/DOCX
// parsing lives in an external collaborator; the coach only depends on
// the Parse function type.
package parsing

import (
	"fmt"
	"strings"

	"github.com/prepcoach/backend/internal/types"
)

// Parsed is the output contract of a document parser.
type Parsed struct {
	Sections []types.DocumentSection
	Chunks   []string
}

// Parse converts raw document bytes into sections and chunks.
type Parse func(data []byte) (Parsed, error)

// PlainText is the built-in fallback parser for plain text input. It
// treats blank-line separated blocks as sections; a block whose first
// line is short and ends with a colon names the section.
func PlainText(data []byte) (Parsed, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return Parsed{}, fmt.Errorf("empty document")
	}

	var out Parsed
	offset := 0
	for _, block := range strings.Split(text, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		name := "body"
		body := block
		if nl := strings.IndexByte(block, '\n'); nl > 0 {
			first := strings.TrimSpace(block[:nl])
			if len(first) <= 40 && strings.HasSuffix(first, ":") {
				name = strings.ToLower(strings.TrimSuffix(first, ":"))
				body = strings.TrimSpace(block[nl+1:])
			}
		}
		out.Sections = append(out.Sections, types.DocumentSection{
			Name:   name,
			Text:   body,
			Offset: offset,
		})
		out.Chunks = append(out.Chunks, body)
		offset += len(block) + 2
	}
	return out, nil
}
