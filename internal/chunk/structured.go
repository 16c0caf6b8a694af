package chunk

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/RideMatch1/neuraxon-viz/internal/text"
)

const (
	popupContentChars = 1000
	popupCodeChars    = 500
)

var popupPattern = regexp.MustCompile("(?s)'([^']+)':\\s*\\{[^}]*title:\\s*'([^']+)',[^}]*content:\\s*`([^`]+)`")

func (c *Chunker) chunkStructured(f file, spec variantSpec) []Chunk {
	if text.Len(f.content) <= c.opts.MaxChars {
		return []Chunk{{
			File: f.rel,
			Type: spec.typ,
			Name: f.stem,
			Code: f.content,
			Text: fmt.Sprintf("%s %s:\n\n%s", spec.label, f.basename, f.content),
		}}
	}

	pieces := text.Split(f.content, text.ParagraphSep, c.opts.MaxChars)
	chunks := make([]Chunk, 0, len(pieces))
	for n, piece := range pieces {
		chunks = append(chunks, Chunk{
			File: f.rel,
			Type: spec.typ,
			Name: fmt.Sprintf("%s_part%d", f.stem, n),
			Code: piece,
			Text: fmt.Sprintf("%s %s (part %d):\n\n%s", spec.label, f.basename, n+1, piece),
		})
	}
	return chunks
}

func (c *Chunker) chunkJSON(f file, spec variantSpec) []Chunk {
	if text.Len(f.content) <= c.opts.MaxChars {
		return c.chunkStructured(f, spec)
	}

	pairs, err := topLevelPairs(f.content)
	if err != nil || pairs == nil {
		head := text.Truncate(f.content, c.opts.MaxChars)
		return []Chunk{{
			File: f.rel,
			Type: spec.typ,
			Name: f.stem,
			Code: head,
			Text: fmt.Sprintf("%s %s:\n\n%s", spec.label, f.basename, head),
		}}
	}

	if len(pairs) > c.opts.MaxJSONKeys {
		pairs = pairs[:c.opts.MaxJSONKeys]
	}
	chunks := make([]Chunk, 0, len(pairs))
	for _, p := range pairs {
		code := text.Truncate(indentPair(p), c.opts.MaxChars)
		chunks = append(chunks, Chunk{
			File: f.rel,
			Type: spec.typ,
			Name: fmt.Sprintf("%s_%s", f.stem, p.key),
			Code: code,
			Text: fmt.Sprintf("%s %s, key '%s':\n\n%s", spec.label, f.basename, p.key, code),
		})
	}
	return chunks
}

type jsonPair struct {
	key   string
	value json.RawMessage
}

// topLevelPairs returns the members of a top-level JSON object in file
// order. A repeated key keeps its first position and its last value. A
// valid document that is not an object returns nil pairs and no error.
func topLevelPairs(content string) ([]jsonPair, error) {
	if !json.Valid([]byte(content)) {
		return nil, errors.New("invalid json")
	}
	if !strings.HasPrefix(strings.TrimLeft(content, " \t\r\n"), "{") {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(content))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var pairs []jsonPair
	index := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		if i, seen := index[key]; seen {
			pairs[i].value = value
			continue
		}
		index[key] = len(pairs)
		pairs = append(pairs, jsonPair{key: key, value: value})
	}
	return pairs, nil
}

func indentPair(p jsonPair) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]json.RawMessage{p.key: p.value}); err != nil {
		return fmt.Sprintf("{%q: %s}", p.key, p.value)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (c *Chunker) chunkPopups(f file) []Chunk {
	var chunks []Chunk
	seen := map[string]bool{}
	for _, m := range popupPattern.FindAllStringSubmatch(f.content, -1) {
		id, title, content := m[1], m[2], m[3]
		if seen[id] {
			continue
		}
		seen[id] = true

		content = text.Ellipsize(content, popupContentChars)
		chunks = append(chunks, Chunk{
			File:      f.rel,
			Type:      TypeJavaScript,
			Name:      "popup_" + id,
			Code:      text.Truncate(content, popupCodeChars),
			Docstring: title,
			Text:      fmt.Sprintf("Popup: %s\nTitle: %s\n\n%s", id, title, content),
		})
	}
	return chunks
}
