// Package chunk turns repository files into the text units that get embedded.
package chunk

import (
	"fmt"
)

type Type string

const (
	TypeFunction      Type = "function"
	TypeClass         Type = "class"
	TypeFile          Type = "file"
	TypeDocumentation Type = "documentation"
	TypeHTMLTemplate  Type = "html_template"
	TypeJavaScript    Type = "javascript"
	TypeCSS           Type = "css"
	TypeJSONData      Type = "json_data"
)

// Chunk is one embeddable unit of a file.
type Chunk struct {
	File      string `json:"file"`
	Type      Type   `json:"type"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Docstring string `json:"docstring"`
	Text      string `json:"text"`
}

// ID identifies a chunk within one index build. Two chunks with the same id
// collapse into one, the later one winning.
func (c Chunk) ID() string {
	return fmt.Sprintf("%s:%s:%s", c.File, c.Type, c.Name)
}

func (c Chunk) Metadata() Metadata {
	return Metadata{File: c.File, Type: string(c.Type), Name: c.Name}
}

// Metadata is what the index keeps next to every vector.
type Metadata struct {
	File string `json:"file"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// ParseError reports a file that could not be read or parsed. Callers
// treat it as "no chunks" for that file.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("chunk %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
