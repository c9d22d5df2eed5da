// Package embedding maps normalized text to fixed-length vectors.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/Gobusters/ectologger"
)

const (
	BackendONNX    = "onnx"
	BackendHashing = "hashing"
)

// Embedder turns texts into vectors. Output order matches input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	// ModelID identifies the encoder so cached vectors from another encoder are never reused.
	ModelID() string
	Close() error
}

type Config struct {
	Backend       string
	ModelPath     string
	TokenizerPath string
	LibraryPath   string
	MaxLength     int
	BatchSize     int
	Dimension     int
	CacheEnabled  bool
}

// New builds the configured backend, wrapped in a CachedEmbedder when caching is on.
func New(cfg Config, logger ectologger.Logger) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Backend {
	case BackendONNX, "":
		e, err = NewONNXEmbedder(cfg, logger)
	case BackendHashing:
		e = NewHashingEmbedder(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheEnabled {
		e = NewCachedEmbedder(e)
	}
	return e, nil
}

// L2Normalize scales v to unit length in place. Zero vectors are left untouched.
func L2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

func batches(n, size int) [][2]int {
	if size < 1 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
