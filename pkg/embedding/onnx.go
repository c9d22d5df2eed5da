package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	defaultMaxLength = 512
	defaultBatchSize = 32
	defaultHidden    = 768
)

var (
	inputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames = []string{"last_hidden_state"}
)

// the onnxruntime environment is process wide
var (
	ortOnce sync.Once
	ortErr  error
)

func initRuntime(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXEmbedder runs a sentence encoder exported to ONNX and pools the CLS token.
type ONNXEmbedder struct {
	tk        *tokenizer.Tokenizer
	session   *ort.DynamicAdvancedSession
	modelID   string
	maxLength int
	batchSize int
	dim       int
	logger    ectologger.Logger

	// onnxruntime sessions are not safe for concurrent Run calls on shared tensors
	mu sync.Mutex
}

func NewONNXEmbedder(cfg Config, logger ectologger.Logger) (*ONNXEmbedder, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, fernerrors.ModelUnavailable(nil, "encoder model and tokenizer paths are required")
	}

	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, fernerrors.ModelUnavailable(err, "failed to initialize onnxruntime")
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fernerrors.ModelUnavailable(err, "failed to load tokenizer %s", cfg.TokenizerPath)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fernerrors.ModelUnavailable(err, "failed to load encoder %s", cfg.ModelPath)
	}

	e := &ONNXEmbedder{
		tk:        tk,
		session:   session,
		modelID:   "onnx-" + filepath.Base(cfg.ModelPath),
		maxLength: cfg.MaxLength,
		batchSize: cfg.BatchSize,
		dim:       cfg.Dimension,
		logger:    logger,
	}
	if e.maxLength <= 0 {
		e.maxLength = defaultMaxLength
	}
	if e.batchSize <= 0 {
		e.batchSize = defaultBatchSize
	}
	if e.dim <= 0 {
		e.dim = defaultHidden
	}

	logger.WithFields(map[string]any{
		"model":      cfg.ModelPath,
		"max_length": e.maxLength,
		"batch_size": e.batchSize,
		"dimension":  e.dim,
	}).Info("Loaded sentence encoder")

	return e, nil
}

func (e *ONNXEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracing.StartSpan(ctx, "embedding.ONNXEmbedder.Embed")
	defer span.End()

	out := make([][]float32, 0, len(texts))
	for _, b := range batches(len(texts), e.batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors, err := e.embedBatch(texts[b[0]:b[1]])
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).Errorf("Failed to embed batch [%d:%d]", b[0], b[1])
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// encodedBatch is always batchSize x maxLength so a text's vector does not depend on its batch.
type encodedBatch struct {
	ids, mask, types []int64
	rows, seqLen     int
}

type tokenized struct {
	ids, types []int
}

func (e *ONNXEmbedder) encode(texts []string) (*encodedBatch, error) {
	rows := make([]tokenized, len(texts))
	for i, text := range texts {
		enc, err := e.tk.EncodeSingle(text, true)
		if err != nil {
			return nil, fmt.Errorf("failed to tokenize %q: %w", text, err)
		}
		rows[i] = tokenized{ids: enc.Ids, types: enc.TypeIds}
	}
	return e.pack(rows), nil
}

func (e *ONNXEmbedder) pack(rows []tokenized) *encodedBatch {
	seqLen := e.maxLength
	rowCount := max(e.batchSize, len(rows))
	b := &encodedBatch{
		ids:    make([]int64, rowCount*seqLen),
		mask:   make([]int64, rowCount*seqLen),
		types:  make([]int64, rowCount*seqLen),
		rows:   rowCount,
		seqLen: seqLen,
	}
	for i, r := range rows {
		n := min(len(r.ids), seqLen)
		offset := i * seqLen
		for j := 0; j < n; j++ {
			idx := j
			// keep the trailing separator when truncating
			if n < len(r.ids) && j == n-1 {
				idx = len(r.ids) - 1
			}
			b.ids[offset+j] = int64(r.ids[idx])
			b.mask[offset+j] = 1
			if idx < len(r.types) {
				b.types[offset+j] = int64(r.types[idx])
			}
		}
	}
	return b
}

func (e *ONNXEmbedder) embedBatch(texts []string) ([][]float32, error) {
	b, err := e.encode(texts)
	if err != nil {
		return nil, err
	}

	shape := ort.NewShape(int64(b.rows), int64(b.seqLen))
	var inputs []ort.Value
	for _, data := range [][]int64{b.ids, b.mask, b.types} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			destroyAll(inputs)
			return nil, fmt.Errorf("failed to create input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}
	defer destroyAll(inputs)

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(b.rows), int64(b.seqLen), int64(e.dim)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	e.mu.Lock()
	err = e.session.Run(inputs, []ort.Value{output})
	e.mu.Unlock()
	if err != nil {
		return nil, fernerrors.ModelUnavailable(err, "encoder inference failed")
	}

	hidden := output.GetData()
	stride := b.seqLen * e.dim
	vectors := make([][]float32, len(texts))
	for i := range texts {
		// CLS pooling: first token of each sequence
		v := make([]float32, e.dim)
		copy(v, hidden[i*stride:i*stride+e.dim])
		L2Normalize(v)
		vectors[i] = v
	}
	return vectors, nil
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		_ = v.Destroy()
	}
}

func (e *ONNXEmbedder) Dimension() int {
	return e.dim
}

func (e *ONNXEmbedder) ModelID() string {
	return e.modelID
}

func (e *ONNXEmbedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}
