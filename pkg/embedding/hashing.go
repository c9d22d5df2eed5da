package embedding

import (
	"context"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const defaultHashingDimension = 256

// HashingEmbedder projects character n-grams of each token into a fixed number of buckets.
// It needs no model files and is fully deterministic.
type HashingEmbedder struct {
	dim  int
	minN int
	maxN int
}

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = defaultHashingDimension
	}
	return &HashingEmbedder{dim: dim, minN: 2, maxN: 4}
}

func (h *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embedOne(text)
	}
	return out, nil
}

func (h *HashingEmbedder) embedOne(text string) []float32 {
	v := make([]float32, h.dim)
	for _, gram := range h.grams(text) {
		sum := xxhash.Sum64String(gram)
		bucket := sum % uint64(h.dim)
		// top bit picks the sign so collisions tend to cancel out
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}
	L2Normalize(v)
	return v
}

// grams returns the character n-grams of " text " so word boundaries take part in the hash.
func (h *HashingEmbedder) grams(text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(" " + text + " ")
	var out []string
	for n := h.minN; n <= h.maxN; n++ {
		for i := 0; i+n <= len(runes); i++ {
			out = append(out, string(runes[i:i+n]))
		}
	}
	return out
}

func (h *HashingEmbedder) Dimension() int {
	return h.dim
}

func (h *HashingEmbedder) ModelID() string {
	return fmt.Sprintf("hashing-%d-%d-%d", h.dim, h.minN, h.maxN)
}

func (h *HashingEmbedder) Close() error {
	return nil
}
