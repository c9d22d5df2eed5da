// Package ranker orders catalog items by Euclidean distance to a listing vector.
package ranker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Ranking is the full catalog ordered by ascending distance to one query.
// IDs[i] is the catalog id at rank position i.
type Ranking struct {
	Distances []float64
	IDs       []int64
}

// Index holds the catalog vectors in catalog order.
type Index struct {
	ids     []int64
	vectors *mat.Dense
	norms   []float64
	dim     int
}

func NewIndex(ids []int64, vectors [][]float32) (*Index, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("catalog has %d ids but %d vectors", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}

	dim := len(vectors[0])
	data := make([]float64, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		for _, x := range v {
			data = append(data, float64(x))
		}
	}

	ix := &Index{
		ids:     append([]int64(nil), ids...),
		vectors: mat.NewDense(len(ids), dim, data),
		norms:   make([]float64, len(ids)),
		dim:     dim,
	}
	for i := range ids {
		row := ix.vectors.RawRowView(i)
		ix.norms[i] = mat.Dot(mat.NewVecDense(dim, row), mat.NewVecDense(dim, row))
	}
	return ix, nil
}

func (ix *Index) Len() int {
	return len(ix.ids)
}

func (ix *Index) Dimension() int {
	return ix.dim
}

func (ix *Index) IDs() []int64 {
	return ix.ids
}

// Rank computes distances from query to every catalog vector directly.
func (ix *Index) Rank(query []float32) (Ranking, error) {
	if len(query) != ix.dim {
		return Ranking{}, fmt.Errorf("query has dimension %d, want %d", len(query), ix.dim)
	}

	distances := make([]float64, len(ix.ids))
	for i := range ix.ids {
		row := ix.vectors.RawRowView(i)
		var sum float64
		for j, x := range query {
			d := float64(x) - row[j]
			sum += d * d
		}
		distances[i] = math.Sqrt(sum)
	}
	return ix.sorted(distances), nil
}

// RankAll ranks every query against the catalog. The distance matrix is computed in one
// product as |q|^2 + |c|^2 - 2 q.c and rows are sorted in parallel; output order matches queries.
func (ix *Index) RankAll(ctx context.Context, queries [][]float32, workers int) ([]Ranking, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	data := make([]float64, 0, len(queries)*ix.dim)
	qnorms := make([]float64, len(queries))
	for i, q := range queries {
		if len(q) != ix.dim {
			return nil, fmt.Errorf("query %d has dimension %d, want %d", i, len(q), ix.dim)
		}
		for _, x := range q {
			data = append(data, float64(x))
			qnorms[i] += float64(x) * float64(x)
		}
	}
	q := mat.NewDense(len(queries), ix.dim, data)

	var gram mat.Dense
	gram.Mul(q, ix.vectors.T())

	if workers < 1 {
		workers = 1
	}
	out := make([]Ranking, len(queries))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				row := gram.RawRowView(i)
				distances := make([]float64, len(ix.ids))
				for j, g := range row {
					// rounding can push identical vectors slightly below zero
					distances[j] = math.Sqrt(math.Max(qnorms[i]+ix.norms[j]-2*g, 0))
				}
				out[i] = ix.sorted(distances)
			}
		}()
	}

	var err error
	for i := range queries {
		if err = ctx.Err(); err != nil {
			break
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return out, nil
}

// sorted orders catalog positions by distance; equal distances keep catalog order.
func (ix *Index) sorted(distances []float64) Ranking {
	order := make([]int, len(distances))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return distances[order[a]] < distances[order[b]]
	})

	r := Ranking{
		Distances: make([]float64, len(order)),
		IDs:       make([]int64, len(order)),
	}
	for pos, i := range order {
		r.Distances[pos] = distances[i]
		r.IDs[pos] = ix.ids[i]
	}
	return r
}

// Position returns the rank position of id, or -1 when id is not in the ranking.
func (r Ranking) Position(id int64) int {
	for i, candidate := range r.IDs {
		if candidate == id {
			return i
		}
	}
	return -1
}
