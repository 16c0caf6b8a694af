package chunk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestChunker_StructuredSmallFile(t *testing.T) {
	root := t.TempDir()
	content := "# Guide\n\nHow the matrix explorer works."
	path := writeFile(t, root, "web/docs/guide.md", content)

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Equal(t, "docs/guide.md", c.File)
	assert.Equal(t, TypeDocumentation, c.Type)
	assert.Equal(t, "guide", c.Name)
	assert.Equal(t, content, c.Code)
	assert.Equal(t, "Documentation file guide.md:\n\n"+content, c.Text)
	assert.Equal(t, "docs/guide.md:documentation:guide", c.ID())
}

func TestChunker_StructuredSplit(t *testing.T) {
	root := t.TempDir()
	var paras []string
	for i := 0; i < 10; i++ {
		paras = append(paras, strings.Repeat(string(rune('a'+i)), 400))
	}
	content := strings.Join(paras, "\n\n")
	writeFile(t, root, "notes.md", content)

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "notes.md")
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	var rebuilt []string
	for n, c := range chunks {
		assert.Equal(t, fmt.Sprintf("notes_part%d", n), c.Name)
		assert.LessOrEqual(t, len([]rune(c.Code)), 1500)
		assert.True(t, strings.HasPrefix(c.Text, fmt.Sprintf("Documentation file notes.md (part %d):\n\n", n+1)))
		rebuilt = append(rebuilt, c.Code)
	}
	assert.Equal(t, content, strings.Join(rebuilt, "\n\n"))
}

func TestChunker_Labels(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		rel   string
		typ   Type
		label string
	}{
		{"templates/index.html", TypeHTMLTemplate, "HTML template"},
		{"static/app.js", TypeJavaScript, "JavaScript file"},
		{"static/site.css", TypeCSS, "CSS file"},
		{"README.txt", TypeDocumentation, "Documentation file"},
		{"data/small.json", TypeJSONData, "JSON data file"},
	}

	c := NewChunker(root, DefaultOptions())
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			writeFile(t, root, tt.rel, `{"content": true}`)
			chunks, err := c.Chunk(context.Background(), tt.rel)
			require.NoError(t, err)
			require.Len(t, chunks, 1)
			assert.Equal(t, tt.typ, chunks[0].Type)
			assert.True(t, strings.HasPrefix(chunks[0].Text, tt.label+" "+filepath.Base(tt.rel)+":"))
		})
	}
}

func TestChunker_SkipsShortFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "empty.md", "")
	writeFile(t, root, "tiny.css", "a{}")

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "empty.md")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = NewChunker(root, Options{MinChars: 50}).Chunk(context.Background(), "tiny.css")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunker_UnsupportedExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "image.png", "binary")

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "image.png")
	assert.NoError(t, err)
	assert.Nil(t, chunks)
	assert.False(t, Supported("image.png"))
	assert.True(t, Supported("app.PY"))
}

func TestChunker_MissingFile(t *testing.T) {
	_, err := NewChunker(t.TempDir(), DefaultOptions()).Chunk(context.Background(), "gone.md")

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "gone.md", perr.File)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestChunker_JSONKeys(t *testing.T) {
	root := t.TempDir()
	var members []string
	for i := 0; i < 25; i++ {
		members = append(members, fmt.Sprintf(`"k%02d": "%s"`, i, strings.Repeat("v", 100)))
	}
	writeFile(t, root, "data.json", "{"+strings.Join(members, ", ")+"}")

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "data.json")
	require.NoError(t, err)
	require.Len(t, chunks, 20)

	first := chunks[0]
	assert.Equal(t, "data_k00", first.Name)
	wantCode := "{\n  \"k00\": \"" + strings.Repeat("v", 100) + "\"\n}"
	assert.Equal(t, wantCode, first.Code)
	assert.Equal(t, "JSON data file data.json, key 'k00':\n\n"+wantCode, first.Text)
	assert.Equal(t, "data_k19", chunks[19].Name)
}

func TestChunker_JSONFallback(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "broken.json", strings.Repeat("x", 2000))
	writeFile(t, root, "list.json", "["+strings.TrimSuffix(strings.Repeat(`"item",`, 300), ",")+"]")

	c := NewChunker(root, DefaultOptions())
	for _, name := range []string{"broken.json", "list.json"} {
		chunks, err := c.Chunk(context.Background(), name)
		require.NoError(t, err)
		require.Len(t, chunks, 1, name)
		assert.Equal(t, strings.TrimSuffix(name, ".json"), chunks[0].Name)
		assert.Len(t, []rune(chunks[0].Code), 1500)
	}
}

func TestChunker_Popups(t *testing.T) {
	root := t.TempDir()
	script := "const popups = {\n" +
		"  'alpha': { title: 'Alpha', content: `First popup` },\n" +
		"  'alpha': { title: 'Again', content: `Duplicate` },\n" +
		"  'beta': {\n    title: 'Beta',\n    content: `" + strings.Repeat("b", 1200) + "`\n  },\n" +
		"};\n"
	writeFile(t, root, "web/static/popups.js", script)

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "web/static/popups.js")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, "static/popups.js", chunks[0].File)
	assert.Equal(t, "popup_alpha", chunks[0].Name)
	assert.Equal(t, "Alpha", chunks[0].Docstring)
	assert.Equal(t, "Popup: alpha\nTitle: Alpha\n\nFirst popup", chunks[0].Text)

	assert.Equal(t, "popup_beta", chunks[1].Name)
	assert.Len(t, chunks[1].Code, 500)
	assert.True(t, strings.HasSuffix(chunks[1].Text, strings.Repeat("b", 1000)+"..."))
}

func TestChunker_PopupsWithoutMatchesFallBack(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "popups.js", "console.log('no popups here');")

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "popups.js")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "popups", chunks[0].Name)
	assert.Equal(t, TypeJavaScript, chunks[0].Type)
}

const pythonSource = `import os


class Greeter:
    """Says hello."""

    def greet(self):
        """Return a greeting.

        Indented detail.
        """
        return "hi"


@decorated
def top():
    # comment first
    'single quoted'
    pass
`

func TestChunker_Python(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "web/app.py", pythonSource)

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "web/app.py")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Greeter", chunks[0].Name)
	assert.Equal(t, TypeClass, chunks[0].Type)
	assert.Equal(t, "Says hello.", chunks[0].Docstring)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "Class Greeter in app.py:\nSays hello.\n\nCode:\nclass Greeter:"))
	assert.Equal(t, "app.py:class:Greeter", chunks[0].ID())

	assert.Equal(t, "top", chunks[1].Name)
	assert.Equal(t, TypeFunction, chunks[1].Type)
	assert.Equal(t, "single quoted", chunks[1].Docstring)
	assert.True(t, strings.HasPrefix(chunks[1].Code, "def top():"))

	assert.Equal(t, "greet", chunks[2].Name)
	assert.Equal(t, "Return a greeting.\n\nIndented detail.", chunks[2].Docstring)
}

func TestChunker_PythonWithoutDefinitions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "config.py", "DEBUG = True\n")

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "config.py")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, TypeFile, chunks[0].Type)
	assert.Equal(t, "config.py", chunks[0].Name)
	assert.Equal(t, "File config.py:\nDEBUG = True\n", chunks[0].Text)
}

func TestChunker_PythonSyntaxError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "broken.py", "def broken(:\n    pass\n")

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "broken.py")
	assert.Nil(t, chunks)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "broken.py", perr.File)
}

func TestChunker_Go(t *testing.T) {
	root := t.TempDir()
	src := `package demo

// Server handles requests.
type Server struct{}

// Start boots it.
func (s *Server) Start() error { return nil }

func helper() {}
`
	writeFile(t, root, "demo/server.go", src)

	chunks, err := NewChunker(root, DefaultOptions()).Chunk(context.Background(), "demo/server.go")
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "Server", chunks[0].Name)
	assert.Equal(t, TypeClass, chunks[0].Type)
	assert.Equal(t, "Server handles requests.", chunks[0].Docstring)
	assert.Equal(t, "type Server struct{}", chunks[0].Code)

	assert.Equal(t, "Server.Start", chunks[1].Name)
	assert.Equal(t, "Start boots it.", chunks[1].Docstring)
	assert.Equal(t, "helper", chunks[2].Name)
}

func TestCleandoc(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"One line.", "One line."},
		{"\n    Leading blank.\n    ", "Leading blank."},
		{"Summary.\n\n    Body\n      nested\n    ", "Summary.\n\nBody\n  nested"},
		{"Tabs.\n\tIndented", "Tabs.\nIndented"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleandoc(tt.in))
	}
}

func TestStringLiteral(t *testing.T) {
	assert.Equal(t, "doc", stringLiteral(`"""doc"""`))
	assert.Equal(t, "doc", stringLiteral(`r'doc'`))
	assert.Equal(t, "", stringLiteral(`b"bytes"`))
	assert.Equal(t, "", stringLiteral(`f"{x}"`))
}
