package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	vectorMagic   = "NXVI"
	vectorVersion = uint32(1)
	headerSize    = 16
)

var errBadHeader = errors.New("invalid vector file header")

// writeVectors stores vectors as a 16-byte header (magic, version, dim,
// count) followed by little-endian float32 rows.
func writeVectors(path string, dim int, vectors [][]float32) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304 -- path is built from the index directory
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	var header [headerSize]byte
	copy(header[0:4], vectorMagic)
	binary.LittleEndian.PutUint32(header[4:8], vectorVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(dim))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(vectors)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	buf := make([]byte, 4*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: row %d has %d, want %d", ErrDimension, i, len(v), dim)
		}
		for j, x := range v {
			binary.LittleEndian.PutUint32(buf[j*4:], math.Float32bits(x))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// readVectors loads the whole file into one flat slice.
func readVectors(path string) (dim, count int, data []float32, err error) {
	f, err := os.Open(path) // #nosec G304 -- path is built from the index directory
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, 0, nil, fmt.Errorf("%w: %v", errBadHeader, err)
	}
	if string(header[0:4]) != vectorMagic {
		return 0, 0, nil, errBadHeader
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != vectorVersion {
		return 0, 0, nil, fmt.Errorf("%w: version %d", errBadHeader, v)
	}
	dim = int(binary.LittleEndian.Uint32(header[8:12]))
	count = int(binary.LittleEndian.Uint32(header[12:16]))

	raw := make([]byte, 4*dim*count)
	if _, err := io.ReadFull(r, raw); err != nil {
		return 0, 0, nil, fmt.Errorf("read vectors: %w", err)
	}
	data = make([]float32, dim*count)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return dim, count, data, nil
}
