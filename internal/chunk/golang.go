package chunk

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// chunkGo emits functions, methods, and struct or interface types. Methods
// are named Receiver.Method.
func (c *Chunker) chunkGo(f file) ([]Chunk, error) {
	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, f.basename, f.content, parser.ParseComments)
	if err != nil {
		return nil, &ParseError{File: f.rel, Err: err}
	}

	source := func(n ast.Node) string {
		start := fset.Position(n.Pos()).Offset
		end := fset.Position(n.End()).Offset
		return f.content[start:end]
	}

	var chunks []Chunk
	for _, decl := range parsed.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name := d.Name.Name
			if recv := receiverName(d); recv != "" {
				name = recv + "." + name
			}
			chunks = append(chunks, definitionChunk(f, TypeFunction, name, source(d), strings.TrimSpace(d.Doc.Text())))

		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				switch ts.Type.(type) {
				case *ast.StructType, *ast.InterfaceType:
				default:
					continue
				}
				doc := ts.Doc
				var node ast.Node = ts
				if doc == nil && len(d.Specs) == 1 {
					doc = d.Doc
					node = d
				}
				chunks = append(chunks, definitionChunk(f, TypeClass, ts.Name.Name, source(node), strings.TrimSpace(doc.Text())))
			}
		}
	}

	if len(chunks) == 0 {
		chunks = append(chunks, fileChunk(f))
	}
	return chunks, nil
}

func receiverName(d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return ""
	}
	expr := d.Recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return id.Name
		}
	case *ast.IndexListExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}
