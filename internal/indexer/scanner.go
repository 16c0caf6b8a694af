package indexer

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// Extensions lists the indexed file types in processing order.
var Extensions = []string{".py", ".md", ".txt", ".html", ".js", ".css", ".json"}

var (
	excludedDirs = []string{
		"faiss_db", "chroma_db", "__pycache__", ".git", "node_modules", "venv", "env", ".venv",
		"static/vendor", "static/images", "static/fonts", "repos", "outputs", "data/neuraxon_exports",
	}
	excludedFiles = map[string]bool{
		".gitignore":        true,
		"FETCH_HEAD":        true,
		"requirements.txt":  true,
		"package-lock.json": true,
		"package.json":      true,
	}
	excludedNameParts = []string{
		"_PLAN.md", "_ANALYSIS.md", "TROUBLESHOOTING.md", "TESTING.md", "SECURITY_WARNING.md", "VERCEL_DEPLOY.md",
	}
)

// Scanner lists the files of a repository that should be chunked.
type Scanner struct {
	Extensions []string
	// ExtraExcludes are additional directories (relative, slash separated)
	// to skip, such as the index directory itself.
	ExtraExcludes []string
}

func NewScanner(extraExcludes ...string) *Scanner {
	return &Scanner{Extensions: Extensions, ExtraExcludes: extraExcludes}
}

// Scan returns absolute file paths grouped by extension in Extensions
// order, sorted within each group.
func (s *Scanner) Scan(root string) ([]string, error) {
	groups := make(map[string][]string, len(s.Extensions))
	excludes := append(slices.Clone(excludedDirs), s.ExtraExcludes...)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && excludedDir(rel, excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !slices.Contains(s.Extensions, ext) || excludedFile(d.Name(), ext) {
			return nil
		}
		groups[ext] = append(groups[ext], path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var files []string
	for _, ext := range s.Extensions {
		group := groups[ext]
		slices.Sort(group)
		files = append(files, group...)
	}
	return files, nil
}

// excludedDir matches whole path segments, so "env" skips ./env and
// web/env but not ./environment.
func excludedDir(rel string, excludes []string) bool {
	padded := "/" + rel + "/"
	for _, ex := range excludes {
		ex = strings.Trim(filepath.ToSlash(ex), "/")
		if ex == "" {
			continue
		}
		if strings.Contains(padded, "/"+ex+"/") {
			return true
		}
	}
	return false
}

func excludedFile(name, ext string) bool {
	if excludedFiles[name] {
		return true
	}
	for _, part := range excludedNameParts {
		if strings.Contains(name, part) {
			return true
		}
	}
	return ext == ".txt" && !strings.Contains(name, "README")
}
