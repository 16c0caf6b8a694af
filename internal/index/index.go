// Package index persists embedding snapshots and serves exact nearest
// neighbour search over them.
package index

import (
	"errors"
	"time"

	"github.com/RideMatch1/neuraxon-viz/internal/chunk"
)

var (
	ErrNotIndexed    = errors.New("index not built")
	ErrModelMismatch = errors.New("embedding model does not match index")
	ErrDimension     = errors.New("vector dimension mismatch")
	ErrCountMismatch = errors.New("vector and record counts differ")
)

// Record is the metadata kept for the vector at the same offset.
type Record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata chunk.Metadata `json:"metadata"`
}

type Manifest struct {
	Generation string    `json:"generation"`
	Model      string    `json:"model"`
	Dimension  int       `json:"dimension"`
	Count      int       `json:"count"`
	BuiltAt    time.Time `json:"built_at"`
}

type Hit struct {
	Offset   int
	Record   Record
	Distance float32
}
