package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
)

const repo = "https://github.com/RideMatch1/qubic-anna-lab-public"

func makeRepo(t *testing.T, rels ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	return root
}

func TestSanitizer_Variants(t *testing.T) {
	s := &Sanitizer{contentRoot: "web"}

	assert.Equal(t, []string{
		"web/templates/index.html",
		"templates/index.html",
	}, s.variants("templates/index.html"))

	assert.Equal(t, []string{
		"web/web/templates/a.html",
		"web/templates/a.html",
		"templates/a.html",
	}, s.variants("web/templates/a.html"))

	assert.Equal(t, []string{"web/app.py", "app.py"}, s.variants("app.py"))
}

func TestSanitizer_Sanitize(t *testing.T) {
	root := makeRepo(t,
		"web/templates/index.html",
		"web/static/js/popups.js",
		"analysis/run.py",
		".hidden/secret.md",
		"node_modules/pkg/index.js",
	)
	s := NewSanitizer(root, repo, "main", "web")

	got := s.Sanitize([]chunk.Metadata{
		{File: "templates/index.html", Type: "html_template"},
		{File: "/static/js/popups.js/ ", Type: "javascript"},
		{File: "analysis/run.py"},
		{File: "templates/index.html", Type: "html_template"},
		{File: "missing.md", Type: "documentation"},
		{File: "unknown"},
		{File: ""},
		{File: ".hidden/secret.md"},
	})

	require.Len(t, got, 3)
	assert.Equal(t, Source{
		File: "templates/index.html",
		URL:  repo + "/blob/main/web/templates/index.html",
		Name: "index.html",
		Type: "html_template",
	}, got[0])
	assert.Equal(t, repo+"/blob/main/web/static/js/popups.js", got[1].URL)
	assert.Equal(t, repo+"/blob/main/analysis/run.py", got[2].URL)
	assert.Equal(t, "file", got[2].Type)
	assert.Equal(t, "run.py", got[2].Name)
}

func TestSanitizer_FilesystemFallback(t *testing.T) {
	root := makeRepo(t, "docs/guide.md")
	s := NewSanitizer(root, repo, "main", "web")

	// Created after the cache was built.
	p := filepath.Join(root, "docs", "late.md")
	require.NoError(t, os.WriteFile(p, []byte("late"), 0o644))

	url, ok := s.URL("docs/late.md")
	assert.True(t, ok)
	assert.Equal(t, repo+"/blob/main/docs/late.md", url)
}

func TestSanitizer_RejectsEscapes(t *testing.T) {
	outer := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outer, "outside.txt"), []byte("x"), 0o644))
	root := filepath.Join(outer, "repo")
	require.NoError(t, os.MkdirAll(root, 0o755))

	s := NewSanitizer(root, repo, "main", "web")
	_, ok := s.URL("../outside.txt")
	assert.False(t, ok)
}

func TestSanitizer_DirectoryIsNotASource(t *testing.T) {
	root := makeRepo(t, "docs/guide.md")
	s := NewSanitizer(root, repo, "main", "web")

	_, ok := s.URL("docs")
	assert.False(t, ok)
}

func TestSanitizer_MissingRoot(t *testing.T) {
	s := NewSanitizer(filepath.Join(t.TempDir(), "nope"), repo, "main", "web")
	assert.Empty(t, s.Sanitize([]chunk.Metadata{{File: "a.md"}}))
}

func TestExcludedPath(t *testing.T) {
	assert.True(t, excludedPath(".git/config"))
	assert.True(t, excludedPath("web/../x"))
	assert.True(t, excludedPath("node_modules/a/index.js"))
	assert.False(t, excludedPath("web/static/app.js"))
}
