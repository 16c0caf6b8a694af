package index

import (
	"fmt"
	"slices"
)

// Snapshot is an immutable, fully loaded index generation.
type Snapshot struct {
	manifest Manifest
	vectors  []float32
	records  []Record
}

func newSnapshot(m Manifest, vectors []float32, records []Record) *Snapshot {
	return &Snapshot{manifest: m, vectors: vectors, records: records}
}

func (s *Snapshot) Manifest() Manifest {
	return s.manifest
}

func (s *Snapshot) Len() int {
	return len(s.records)
}

func (s *Snapshot) Record(offset int) Record {
	return s.records[offset]
}

func (s *Snapshot) Vector(offset int) []float32 {
	dim := s.manifest.Dimension
	return s.vectors[offset*dim : (offset+1)*dim]
}

// Search scans every vector and returns the k closest by squared
// Euclidean distance, nearest first. Ties keep index order.
func (s *Snapshot) Search(query []float32, k int) ([]Hit, error) {
	dim := s.manifest.Dimension
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query %d, index %d", ErrDimension, len(query), dim)
	}
	if k <= 0 || len(s.records) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(s.records))
	for i := range s.records {
		row := s.vectors[i*dim : (i+1)*dim]
		var d float32
		for j, x := range row {
			diff := x - query[j]
			d += diff * diff
		}
		hits[i] = Hit{Offset: i, Record: s.records[i], Distance: d}
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}
