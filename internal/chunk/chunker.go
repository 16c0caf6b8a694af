package chunk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	codeChars    = 1000
	previewChars = 500
)

type variant int

const (
	variantPython variant = iota
	variantGo
	variantMarkdown
	variantPlainText
	variantHTML
	variantScript
	variantStyle
	variantJSON
)

type variantSpec struct {
	kind  variant
	typ   Type
	label string
}

var variants = map[string]variantSpec{
	".py":   {variantPython, TypeFile, ""},
	".go":   {variantGo, TypeFile, ""},
	".md":   {variantMarkdown, TypeDocumentation, "Documentation file"},
	".txt":  {variantPlainText, TypeDocumentation, "Documentation file"},
	".html": {variantHTML, TypeHTMLTemplate, "HTML template"},
	".js":   {variantScript, TypeJavaScript, "JavaScript file"},
	".css":  {variantStyle, TypeCSS, "CSS file"},
	".json": {variantJSON, TypeJSONData, "JSON data file"},
}

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// Supported reports whether files with this extension produce chunks.
func Supported(path string) bool {
	_, ok := variants[strings.ToLower(filepath.Ext(path))]
	return ok
}

type Options struct {
	// MaxChars is the size above which structured files are split.
	MaxChars int
	// MinChars skips structured files shorter than this. Empty files are
	// always skipped.
	MinChars    int
	MaxJSONKeys int
	PopupScript string
}

func DefaultOptions() Options {
	return Options{
		MaxChars:    1500,
		MaxJSONKeys: 20,
		PopupScript: "popups.js",
	}
}

type Chunker struct {
	root string
	opts Options
}

func NewChunker(root string, opts Options) *Chunker {
	def := DefaultOptions()
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxChars
	}
	if opts.MaxJSONKeys <= 0 {
		opts.MaxJSONKeys = def.MaxJSONKeys
	}
	if opts.PopupScript == "" {
		opts.PopupScript = def.PopupScript
	}
	return &Chunker{root: root, opts: opts}
}

// Chunk reads path (absolute or relative to the chunker root) and returns
// its chunks. Unsupported extensions yield no chunks and no error.
func (c *Chunker) Chunk(ctx context.Context, path string) ([]Chunk, error) {
	spec, ok := variants[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(c.root, path)
	}
	rel := c.relative(full)

	raw, err := os.ReadFile(full) // #nosec G304 -- paths come from the repository scanner
	if err != nil {
		return nil, &ParseError{File: rel, Err: err}
	}
	if !utf8.Valid(raw) {
		return nil, &ParseError{File: rel, Err: errInvalidUTF8}
	}

	f := file{
		rel:      rel,
		basename: filepath.Base(full),
		stem:     strings.TrimSuffix(filepath.Base(full), filepath.Ext(full)),
		content:  string(raw),
	}

	switch spec.kind {
	case variantPython:
		return c.chunkPython(ctx, f)
	case variantGo:
		return c.chunkGo(f)
	}

	if f.content == "" || utf8.RuneCountInString(f.content) < c.opts.MinChars {
		return nil, nil
	}

	switch spec.kind {
	case variantJSON:
		return c.chunkJSON(f, spec), nil
	case variantScript:
		if f.basename == c.opts.PopupScript {
			if chunks := c.chunkPopups(f); len(chunks) > 0 {
				return chunks, nil
			}
		}
	}
	return c.chunkStructured(f, spec), nil
}

func (c *Chunker) relative(full string) string {
	rel, err := filepath.Rel(c.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = full
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimPrefix(rel, "web/")
}

type file struct {
	rel      string
	basename string
	stem     string
	content  string
}
