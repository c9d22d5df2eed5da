// Package artifact persists the trained reranker together with the catalog embedding matrix.
package artifact

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reranker/gbdt"
)

// FormatVersion changes whenever the encoded layout changes; older artifacts are treated as missing.
const FormatVersion = 1

// ErrCacheMiss is returned by Store.Load when there is no usable artifact.
var ErrCacheMiss = errors.New("artifact cache miss")

// Artifact is everything inference needs that training produced.
type Artifact struct {
	Version            int         `json:"version"`
	EncoderID          string      `json:"encoder_id"`
	CatalogFingerprint string      `json:"catalog_fingerprint"`
	CatalogIDs         []int64     `json:"catalog_ids"`
	CatalogVectors     [][]float32 `json:"catalog_vectors"`
	K                  int         `json:"k"`

	// Model is nil when rank positions are scored by an external LightGBM model.
	Model        *gbdt.Model `json:"model,omitempty"`
	TrainingRows int         `json:"training_rows"`
	TrainedAt    time.Time   `json:"trained_at"`
}

// Metadata is the artifact without its matrices, for logs and API responses.
type Metadata struct {
	EncoderID          string    `json:"encoder_id"`
	CatalogFingerprint string    `json:"catalog_fingerprint"`
	CatalogSize        int       `json:"catalog_size"`
	K                  int       `json:"k"`
	NumClass           int       `json:"num_class,omitempty"`
	BestIteration      int       `json:"best_iteration,omitempty"`
	TrainingRows       int       `json:"training_rows"`
	TrainedAt          time.Time `json:"trained_at"`
}

func (a *Artifact) Metadata() Metadata {
	m := Metadata{
		EncoderID:          a.EncoderID,
		CatalogFingerprint: a.CatalogFingerprint,
		CatalogSize:        len(a.CatalogIDs),
		K:                  a.K,
		TrainingRows:       a.TrainingRows,
		TrainedAt:          a.TrainedAt,
	}
	if a.Model != nil {
		m.NumClass = a.Model.NumClass
		m.BestIteration = a.Model.BestIteration
	}
	return m
}

// Matches reports whether the artifact was built for this encoder and catalog.
func (a *Artifact) Matches(encoderID, fingerprint string) bool {
	return a.Version == FormatVersion && a.EncoderID == encoderID && a.CatalogFingerprint == fingerprint
}

// Fingerprint identifies the eligible catalog: ids and names in order.
func Fingerprint(items []models.CatalogItem) string {
	h := xxhash.New()
	var buf [8]byte
	for _, item := range items {
		binary.LittleEndian.PutUint64(buf[:], uint64(item.ID))
		_, _ = h.Write(buf[:])
		_, _ = h.WriteString(item.Name)
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Encode serializes a as zstd-compressed JSON.
func Encode(a *Artifact) ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal artifact")
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd writer")
	}
	if _, err := enc.Write(raw); err != nil {
		_ = enc.Close()
		return nil, errors.Wrap(err, "failed to compress artifact")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to compress artifact")
	}
	return buf.Bytes(), nil
}

func Decode(data []byte) (*Artifact, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd reader")
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decompress artifact")
	}

	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal artifact")
	}
	if a.Version != FormatVersion {
		return nil, errors.Errorf("artifact version %d, want %d", a.Version, FormatVersion)
	}
	if len(a.CatalogIDs) != len(a.CatalogVectors) {
		return nil, errors.Errorf("artifact has %d catalog ids and %d vectors", len(a.CatalogIDs), len(a.CatalogVectors))
	}
	return &a, nil
}

// Store loads and saves the current artifact.
type Store interface {
	// Load returns ErrCacheMiss, possibly wrapped, when nothing usable is stored.
	Load(ctx context.Context) (*Artifact, error)
	Save(ctx context.Context, a *Artifact) error
}
