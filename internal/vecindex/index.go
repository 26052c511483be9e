// Package vecindex implements a flat vector similarity index with an on-disk
// codec. Search is exact brute-force over squared L2 distance, which keeps
// results deterministic and needs no tuning for corpora in the tens of
// thousands of documents.
package vecindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

const (
	// fileMagic identifies reviewkit index files.
	fileMagic = "RVIX"
	// fileVersion is bumped on any incompatible layout change.
	fileVersion = 1
)

// Index is an in-memory flat vector index. It is not safe for concurrent
// mutation; the one-active-job-per-owner invariant serializes writers.
type Index struct {
	dim  int
	data []float32 // row-major, count*dim
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	return &Index{dim: dim}, nil
}

// Dimension returns the vector dimension.
func (ix *Index) Dimension() int {
	return ix.dim
}

// Count returns the number of stored vectors.
func (ix *Index) Count() int {
	if ix.dim == 0 {
		return 0
	}
	return len(ix.data) / ix.dim
}

// Add appends vectors to the index. All vectors must match the index
// dimension; on mismatch nothing is added.
func (ix *Index) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), ix.dim)
		}
	}
	for _, v := range vectors {
		ix.data = append(ix.data, v...)
	}
	return nil
}

// Search returns the indices and squared L2 distances of the k nearest
// stored vectors, closest first. When fewer than k vectors are stored the
// remaining slots are filled with index -1, which callers must skip.
func (ix *Index) Search(query []float32, k int) ([]int, []float32, error) {
	if len(query) != ix.dim {
		return nil, nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil, fmt.Errorf("invalid k %d", k)
	}

	count := ix.Count()
	type candidate struct {
		idx  int
		dist float32
	}
	candidates := make([]candidate, count)
	for i := 0; i < count; i++ {
		row := ix.data[i*ix.dim : (i+1)*ix.dim]
		candidates[i] = candidate{idx: i, dist: squaredL2(query, row)}
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].dist != candidates[b].dist {
			return candidates[a].dist < candidates[b].dist
		}
		return candidates[a].idx < candidates[b].idx
	})

	indices := make([]int, k)
	distances := make([]float32, k)
	for i := 0; i < k; i++ {
		if i < count {
			indices[i] = candidates[i].idx
			distances[i] = candidates[i].dist
		} else {
			indices[i] = -1
			distances[i] = float32(math.Inf(1))
		}
	}
	return indices, distances, nil
}

// SearchBatch runs Search for each query, preserving query order.
func (ix *Index) SearchBatch(queries [][]float32, k int) ([][]int, error) {
	results := make([][]int, len(queries))
	for i, q := range queries {
		indices, _, err := ix.Search(q, k)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
		results[i] = indices
	}
	return results, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(sum)
}

// WriteFile serializes the index to path. The write is not atomic; callers
// that need crash safety write into a scratch location and copy over.
func (ix *Index) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(fileMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}

	var header [12]byte
	binary.LittleEndian.PutUint32(header[0:4], fileVersion)
	binary.LittleEndian.PutUint32(header[4:8], uint32(ix.dim))
	binary.LittleEndian.PutUint32(header[8:12], uint32(ix.Count()))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	var buf [4]byte
	for _, v := range ix.data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		if _, err := w.Write(buf[:]); err != nil {
			return fmt.Errorf("write vector data: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	return f.Sync()
}

// ReadFile loads an index from path.
func ReadFile(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != fileMagic {
		return nil, fmt.Errorf("not an index file (magic %q)", magic)
	}

	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	version := binary.LittleEndian.Uint32(header[0:4])
	if version != fileVersion {
		return nil, fmt.Errorf("unsupported index file version %d", version)
	}
	dim := int(binary.LittleEndian.Uint32(header[4:8]))
	count := int(binary.LittleEndian.Uint32(header[8:12]))
	if dim <= 0 {
		return nil, fmt.Errorf("corrupt index file: dimension %d", dim)
	}

	ix := &Index{dim: dim, data: make([]float32, 0, dim*count)}
	buf := make([]byte, 4*dim)
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(buf[j*4 : (j+1)*4])
			ix.data = append(ix.data, math.Float32frombits(bits))
		}
	}
	return ix, nil
}
