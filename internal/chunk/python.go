package chunk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/RideMatch1/neuraxon-viz/internal/text"
)

var errSyntax = errors.New("syntax error")

func (c *Chunker) chunkPython(ctx context.Context, f file) ([]Chunk, error) {
	src := []byte(f.content)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &ParseError{File: f.rel, Err: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{File: f.rel, Err: errSyntax}
	}

	var chunks []Chunk
	// Breadth-first, so outer definitions come before nested ones.
	queue := []*sitter.Node{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		var kind Type
		switch node.Type() {
		case "function_definition":
			kind = TypeFunction
		case "class_definition":
			kind = TypeClass
		}
		if kind != "" {
			if nameNode := node.ChildByFieldName("name"); nameNode != nil {
				chunks = append(chunks, definitionChunk(f, kind, nameNode.Content(src), node.Content(src), pythonDocstring(node, src)))
			}
		}

		for i := 0; i < int(node.NamedChildCount()); i++ {
			queue = append(queue, node.NamedChild(i))
		}
	}

	if len(chunks) == 0 {
		chunks = append(chunks, fileChunk(f))
	}
	return chunks, nil
}

func definitionChunk(f file, kind Type, name, code, doc string) Chunk {
	label := "Function"
	if kind == TypeClass {
		label = "Class"
	}
	return Chunk{
		File:      f.rel,
		Type:      kind,
		Name:      name,
		Code:      text.Truncate(code, codeChars),
		Docstring: doc,
		Text:      fmt.Sprintf("%s %s in %s:\n%s\n\nCode:\n%s", label, name, f.basename, doc, text.Truncate(code, previewChars)),
	}
}

func fileChunk(f file) Chunk {
	return Chunk{
		File: f.rel,
		Type: TypeFile,
		Name: f.basename,
		Code: text.Truncate(f.content, codeChars),
		Text: fmt.Sprintf("File %s:\n%s", f.basename, text.Truncate(f.content, previewChars)),
	}
}

// pythonDocstring returns the cleaned docstring of a function or class
// definition, or "" when its body does not start with a plain string.
func pythonDocstring(def *sitter.Node, src []byte) string {
	body := def.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt.Type() == "comment" {
			continue
		}
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() == 0 {
			return ""
		}
		lit := stmt.NamedChild(0)
		if lit.Type() != "string" {
			return ""
		}
		return cleandoc(stringLiteral(lit.Content(src)))
	}
	return ""
}

// stringLiteral strips the prefix and quotes of a Python string literal.
// Byte and f-strings are not docstrings.
func stringLiteral(lit string) string {
	prefixEnd := strings.IndexAny(lit, `"'`)
	if prefixEnd < 0 {
		return ""
	}
	if strings.ContainsAny(strings.ToLower(lit[:prefixEnd]), "bf") {
		return ""
	}
	lit = lit[prefixEnd:]
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(lit) >= 2*len(q) && strings.HasPrefix(lit, q) && strings.HasSuffix(lit, q) {
			return lit[len(q) : len(lit)-len(q)]
		}
	}
	return ""
}

// cleandoc normalizes docstring indentation: tabs expand to 8 columns, the
// first line loses its leading whitespace, later lines lose their common
// indent, and blank edge lines are dropped.
func cleandoc(doc string) string {
	lines := strings.Split(expandTabs(doc, 8), "\n")

	margin := -1
	for _, line := range lines[1:] {
		stripped := strings.TrimLeft(line, " ")
		if stripped == "" {
			continue
		}
		indent := len(line) - len(stripped)
		if margin < 0 || indent < margin {
			margin = indent
		}
	}

	lines[0] = strings.TrimLeft(lines[0], " ")
	if margin > 0 {
		for i := 1; i < len(lines); i++ {
			if len(lines[i]) >= margin {
				lines[i] = lines[i][margin:]
			} else {
				lines[i] = strings.TrimLeft(lines[i], " ")
			}
		}
	}

	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return strings.Join(lines, "\n")
}

func expandTabs(s string, size int) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, r := range s {
		switch r {
		case '\t':
			n := size - col%size
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case '\n':
			b.WriteRune(r)
			col = 0
		default:
			b.WriteRune(r)
			col++
		}
	}
	return b.String()
}
