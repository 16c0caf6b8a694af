package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	currentFile  = "CURRENT"
	vectorsFile  = "vectors.bin"
	metadataFile = "metadata.db"
	genPrefix    = "gen-"
	tmpSuffix    = ".tmp"
)

// Store owns an index directory. Each build lands in its own generation
// directory and becomes visible through the CURRENT pointer file, so a
// reader never observes a half-written index.
type Store struct {
	dir     string
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) Dir() string {
	return s.dir
}

// Write persists a new generation and makes it current. vectors and
// records must have the same length.
func (s *Store) Write(ctx context.Context, model string, vectors [][]float32, records []Record) (Manifest, error) {
	if len(vectors) != len(records) {
		return Manifest{}, fmt.Errorf("%w: %d vectors, %d records", ErrCountMismatch, len(vectors), len(records))
	}
	if len(vectors) == 0 {
		return Manifest{}, errors.New("index: refusing to write an empty snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Manifest{}, err
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return Manifest{}, fmt.Errorf("index: create dir: %w", err)
	}

	builtAt := s.now().UTC()
	manifest := Manifest{
		Generation: fmt.Sprintf("%s%d", genPrefix, builtAt.UnixNano()),
		Model:      model,
		Dimension:  len(vectors[0]),
		Count:      len(vectors),
		BuiltAt:    builtAt,
	}

	tmp := filepath.Join(s.dir, manifest.Generation+tmpSuffix)
	if err := os.MkdirAll(tmp, 0o750); err != nil {
		return Manifest{}, fmt.Errorf("index: create generation: %w", err)
	}
	if err := writeVectors(filepath.Join(tmp, vectorsFile), manifest.Dimension, vectors); err != nil {
		_ = os.RemoveAll(tmp)
		return Manifest{}, fmt.Errorf("index: write vectors: %w", err)
	}
	if err := writeMetadata(filepath.Join(tmp, metadataFile), manifest, records); err != nil {
		_ = os.RemoveAll(tmp)
		return Manifest{}, fmt.Errorf("index: write metadata: %w", err)
	}

	final := filepath.Join(s.dir, manifest.Generation)
	if err := os.Rename(tmp, final); err != nil {
		_ = os.RemoveAll(tmp)
		return Manifest{}, fmt.Errorf("index: publish generation: %w", err)
	}

	previous, _ := s.readCurrent()
	if err := s.writeCurrent(manifest.Generation); err != nil {
		return Manifest{}, err
	}

	s.current.Store(newSnapshot(manifest, flatten(vectors), records))
	s.prune(manifest.Generation, previous)

	return manifest, nil
}

// Snapshot returns the current index, reloading it when another process
// has published a newer generation.
func (s *Store) Snapshot() (*Snapshot, error) {
	gen, err := s.readCurrent()
	if err != nil {
		return nil, err
	}
	if snap := s.current.Load(); snap != nil && snap.manifest.Generation == gen {
		return snap, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap := s.current.Load(); snap != nil && snap.manifest.Generation == gen {
		return snap, nil
	}
	snap, err := s.load(gen)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	slog.Info("index snapshot loaded", "generation", gen, "count", snap.Len(), "model", snap.manifest.Model)
	return snap, nil
}

func (s *Store) load(gen string) (*Snapshot, error) {
	dir := filepath.Join(s.dir, gen)
	vecPath := filepath.Join(dir, vectorsFile)
	metaPath := filepath.Join(dir, metadataFile)
	for _, p := range []string{vecPath, metaPath} {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing", ErrNotIndexed, filepath.Base(p))
		}
	}

	dim, count, data, err := readVectors(vecPath)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	manifest, records, err := readMetadata(metaPath)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	if manifest.Dimension != dim {
		return nil, fmt.Errorf("%w: manifest %d, vectors %d", ErrDimension, manifest.Dimension, dim)
	}

	if count != len(records) {
		n := min(count, len(records))
		slog.Warn("index artifacts disagree, truncating", "generation", gen, "vectors", count, "records", len(records), "kept", n)
		data = data[:n*dim]
		records = records[:n]
	}
	manifest.Count = len(records)
	return newSnapshot(manifest, data, records), nil
}

func (s *Store) readCurrent() (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, currentFile)) // #nosec G304 -- fixed file name under the index directory
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotIndexed
	}
	if err != nil {
		return "", fmt.Errorf("index: read %s: %w", currentFile, err)
	}
	gen := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(gen, genPrefix) || strings.ContainsAny(gen, `/\`) {
		return "", fmt.Errorf("%w: bad %s pointer %q", ErrNotIndexed, currentFile, gen)
	}
	return gen, nil
}

func (s *Store) writeCurrent(gen string) error {
	tmp := filepath.Join(s.dir, currentFile+tmpSuffix)
	if err := os.WriteFile(tmp, []byte(gen+"\n"), 0o600); err != nil {
		return fmt.Errorf("index: write pointer: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, currentFile)); err != nil {
		return fmt.Errorf("index: swap pointer: %w", err)
	}
	return nil
}

// prune removes every generation except keep and previous, including
// leftovers from failed builds.
func (s *Store) prune(keep, previous string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || !strings.HasPrefix(name, genPrefix) || name == keep || name == previous {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			slog.Warn("failed to remove old index generation", "generation", name, "error", err)
		}
	}
}

func flatten(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	flat := make([]float32, 0, len(vectors)*len(vectors[0]))
	for _, v := range vectors {
		flat = append(flat, v...)
	}
	return flat
}
