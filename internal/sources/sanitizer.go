// Package sources turns retrieved chunk metadata into links into the
// public repository, dropping anything that does not resolve to a file.
package sources

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
)

var skippedDirs = []string{"__pycache__", "node_modules", "chroma_db", "vector_db", "faiss_db"}

// Source is a citation shown to the user.
type Source struct {
	File string `json:"file"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type Sanitizer struct {
	root        string
	repoURL     string
	branch      string
	contentRoot string

	mu    sync.RWMutex
	cache map[string]bool
}

// NewSanitizer scans root once. contentRoot is the directory the site
// serves from ("web"); files under it are also known without the prefix.
func NewSanitizer(root, repoURL, branch, contentRoot string) *Sanitizer {
	s := &Sanitizer{
		root:        root,
		repoURL:     strings.TrimRight(repoURL, "/"),
		branch:      branch,
		contentRoot: strings.Trim(contentRoot, "/"),
		cache:       map[string]bool{},
	}
	if err := s.Refresh(); err != nil {
		slog.Warn("source cache unavailable, falling back to filesystem checks", "root", root, "error", err)
	}
	return s
}

// Refresh rebuilds the file cache.
func (s *Sanitizer) Refresh() error {
	cache := map[string]bool{}
	prefix := s.contentRoot + "/"

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.root {
				return err
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if p != s.root && (strings.HasPrefix(name, ".") || slices.Contains(skippedDirs, name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		cache[rel] = true
		if s.contentRoot != "" && strings.HasPrefix(rel, prefix) {
			cache[strings.TrimPrefix(rel, prefix)] = true
		}
		return nil
	})

	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
	return err
}

// Sanitize resolves each entry to a repository URL, keeping the first
// occurrence of every URL.
func (s *Sanitizer) Sanitize(metas []chunk.Metadata) []Source {
	out := make([]Source, 0, len(metas))
	seen := map[string]bool{}
	for _, m := range metas {
		url, ok := s.URL(m.File)
		if !ok || seen[url] {
			continue
		}
		seen[url] = true

		typ := m.Type
		if typ == "" {
			typ = "file"
		}
		out = append(out, Source{File: m.File, URL: url, Name: path.Base(normalize(m.File)), Type: typ})
	}
	return out
}

// URL returns the blob URL of the first existing variant of file.
func (s *Sanitizer) URL(file string) (string, bool) {
	if file == "" || file == "unknown" {
		return "", false
	}
	file = normalize(file)
	if file == "" {
		return "", false
	}

	for _, v := range s.variants(file) {
		if s.exists(v) {
			return s.repoURL + "/blob/" + s.branch + "/" + v, true
		}
	}
	return "", false
}

func normalize(file string) string {
	return strings.Trim(strings.TrimSpace(file), "/")
}

func (s *Sanitizer) variants(file string) []string {
	var candidates []string
	if s.contentRoot == "" {
		candidates = []string{file}
	} else {
		cr := s.contentRoot + "/"
		candidates = []string{
			cr + file,
			strings.ReplaceAll(file, "templates/", cr+"templates/"),
			file,
			strings.ReplaceAll(file, cr+"templates/", "templates/"),
		}
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Sanitizer) exists(variant string) bool {
	s.mu.RLock()
	hit := s.cache[variant]
	s.mu.RUnlock()
	if hit {
		return true
	}

	if !filepath.IsLocal(filepath.FromSlash(variant)) || excludedPath(variant) {
		return false
	}
	// os.Root refuses paths and symlinks that leave the repository.
	root, err := os.OpenRoot(s.root)
	if err != nil {
		return false
	}
	defer root.Close()

	info, err := root.Stat(filepath.FromSlash(variant))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("source stat failed", "path", variant, "error", err)
		}
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}

	s.mu.Lock()
	s.cache[variant] = true
	s.mu.Unlock()
	return true
}

// excludedPath applies the cache's skip rules to a path that was not
// cached: no dot segments and no skipped directories.
func excludedPath(variant string) bool {
	segments := strings.Split(variant, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, ".") {
			return true
		}
		if i < len(segments)-1 && slices.Contains(skippedDirs, seg) {
			return true
		}
	}
	return false
}
