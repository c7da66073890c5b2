package search

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/helixml/docsearch/domain/document"
	"github.com/helixml/docsearch/domain/search"
)

// Binary layout: magic, version(uint32), dim(uint32), count(uint32),
// then count*dim little-endian float32 values.
const (
	flatMagic   = "DSFX"
	flatVersion = uint32(1)
	headerSize  = 16
)

// Flat is an exact nearest-neighbour index stored as one contiguous float32
// slice. A Flat value is never mutated; Append returns a new value.
type Flat struct {
	dim   int
	count int
	data  []float32
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dim int) Flat {
	return Flat{dim: dim}
}

// BuildFlat creates an index holding vectors in the given order.
func BuildFlat(dim int, vectors [][]float64) (Flat, error) {
	data := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return Flat{}, fmt.Errorf("%w: vector %d has dimension %d, expected %d", document.ErrValidation, i, len(v), dim)
		}
		data = appendVector(data, v)
	}
	return Flat{dim: dim, count: len(vectors), data: data}, nil
}

// Dimension returns the vector length.
func (f Flat) Dimension() int { return f.dim }

// Len returns the number of indexed vectors.
func (f Flat) Len() int { return f.count }

// Vector returns a copy of the vector at position i.
func (f Flat) Vector(i int) []float64 {
	row := f.data[i*f.dim : (i+1)*f.dim]
	out := make([]float64, f.dim)
	for j, x := range row {
		out[j] = float64(x)
	}
	return out
}

// Append returns a new index with vector added at the next position.
func (f Flat) Append(vector []float64) (Flat, error) {
	if len(vector) != f.dim {
		return Flat{}, fmt.Errorf("%w: vector has dimension %d, expected %d", document.ErrValidation, len(vector), f.dim)
	}
	data := make([]float32, len(f.data), len(f.data)+f.dim)
	copy(data, f.data)
	data = appendVector(data, vector)
	return Flat{dim: f.dim, count: f.count + 1, data: data}, nil
}

// Search returns up to k positions closest to query by squared Euclidean distance.
func (f Flat) Search(query []float64, k int) ([]search.Match, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, expected %d", document.ErrValidation, len(query), f.dim)
	}
	if f.count == 0 {
		return []search.Match{}, nil
	}

	q := appendVector(make([]float32, 0, f.dim), query)
	distances := make([]float64, f.count)
	for i := 0; i < f.count; i++ {
		distances[i] = SquaredL2(f.data[i*f.dim:(i+1)*f.dim], q)
	}
	return TopKNearest(distances, k), nil
}

// Verify checks that the index holds exactly vectors, in order, after
// rounding them to float32.
func (f Flat) Verify(vectors [][]float64) error {
	if len(vectors) != f.count {
		return fmt.Errorf("%w: index holds %d vectors, store holds %d documents", document.ErrStorageCorrupt, f.count, len(vectors))
	}
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: document at position %d has dimension %d, expected %d", document.ErrStorageCorrupt, i, len(v), f.dim)
		}
		row := f.data[i*f.dim : (i+1)*f.dim]
		for j, x := range v {
			if float32(x) != row[j] {
				return fmt.Errorf("%w: index vector at position %d differs from stored embedding", document.ErrStorageCorrupt, i)
			}
		}
	}
	return nil
}

// MarshalBinary encodes the index.
func (f Flat) MarshalBinary() ([]byte, error) {
	out := make([]byte, headerSize+4*len(f.data))
	copy(out[0:4], flatMagic)
	binary.LittleEndian.PutUint32(out[4:8], flatVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(f.dim))
	binary.LittleEndian.PutUint32(out[12:16], uint32(f.count))
	off := headerSize
	for _, x := range f.data {
		binary.LittleEndian.PutUint32(out[off:off+4], math.Float32bits(x))
		off += 4
	}
	return out, nil
}

// UnmarshalBinary decodes an index. Any malformed input is reported as
// document.ErrStorageCorrupt.
func (f *Flat) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("%w: index file truncated", document.ErrStorageCorrupt)
	}
	if string(data[0:4]) != flatMagic {
		return fmt.Errorf("%w: index file has unknown format", document.ErrStorageCorrupt)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != flatVersion {
		return fmt.Errorf("%w: index file version %d not supported", document.ErrStorageCorrupt, v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	count := int(binary.LittleEndian.Uint32(data[12:16]))

	want := uint64(headerSize) + 4*uint64(dim)*uint64(count)
	if uint64(len(data)) != want {
		return fmt.Errorf("%w: index file has %d bytes, expected %d", document.ErrStorageCorrupt, len(data), want)
	}

	values := make([]float32, dim*count)
	off := headerSize
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
	}

	f.dim = dim
	f.count = count
	f.data = values
	return nil
}

func appendVector(data []float32, v []float64) []float32 {
	for _, x := range v {
		data = append(data, float32(x))
	}
	return data
}
