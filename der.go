package der

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/jamesainslie/go-der/inference"
	"github.com/jamesainslie/go-der/iob"
	"github.com/jamesainslie/go-der/tokenizer"
)

const (
	// maxSeqLen is the maximum sequence length supported by the model,
	// including the <s> and </s> tokens added around every window.
	maxSeqLen = 512

	// chunkOverlap is the number of overlapping tokens between windows.
	// Labels in the overlap are decided from averaged logits.
	chunkOverlap = 64
)

// Recognizer finds entity spans in text with an ONNX token classifier.
// It is safe for concurrent use.
type Recognizer struct {
	tokenizer  *tokenizer.Tokenizer
	pool       *inference.Pool
	labels     []iob.Tag
	entityType string
	threshold  float32
	logger     *slog.Logger
}

// New creates a Recognizer with the specified model files.
func New(modelPath, tokenizerPath string, opts ...Option) (*Recognizer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	labels, err := parseLabels(cfg.labels)
	if err != nil {
		return nil, err
	}

	// Check model file exists
	if _, err := os.Stat(modelPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return nil, fmt.Errorf("checking model file: %w", err)
	}

	// Load tokenizer
	tok, err := tokenizer.New(tokenizerPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTokenizerFailed, tokenizerPath)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenizerFailed, err)
	}

	// Create session pool
	pool, err := inference.NewPool(modelPath, cfg.poolSize)
	if err != nil {
		_ = tok.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}

	cfg.logger.Info("recognizer loaded",
		"model", modelPath,
		"labels", len(labels),
		"pool", pool.Size(),
		"entity_type", cfg.entityType)

	return newRecognizer(tok, pool, labels, cfg), nil
}

func newRecognizer(tok *tokenizer.Tokenizer, pool *inference.Pool, labels []iob.Tag, cfg config) *Recognizer {
	return &Recognizer{
		tokenizer:  tok,
		pool:       pool,
		labels:     labels,
		entityType: cfg.entityType,
		threshold:  cfg.threshold,
		logger:     cfg.logger,
	}
}

// Recognize returns the entity spans found in text, ordered by start.
func (r *Recognizer) Recognize(ctx context.Context, text string) ([]iob.Span, error) {
	if text == "" {
		return nil, nil
	}

	// Tokenize
	tokens := r.tokenizer.Encode(text)
	if len(tokens) == 0 {
		return nil, nil
	}

	// Get logits for all tokens, handling chunking if needed
	logits, err := r.getLogits(ctx, tokens)
	if err != nil {
		return nil, err
	}

	spans, err := r.decode(tokens, logits)
	if err != nil {
		return nil, err
	}

	r.logger.DebugContext(ctx, "recognized", "tokens", len(tokens), "spans", len(spans))
	return spans, nil
}

// getLogits returns label logits for all tokens, chunking if necessary.
func (r *Recognizer) getLogits(ctx context.Context, tokens []tokenizer.TokenInfo) ([][]float32, error) {
	// Acquire session from pool
	session, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(session)

	window := maxSeqLen - 2

	// If sequence fits in one chunk, process directly
	if len(tokens) <= window {
		return r.inferChunk(ctx, session, tokens)
	}

	// Process in overlapping chunks
	logits := make([][]float32, len(tokens))
	counts := make([]int, len(tokens)) // Track how many times each position was processed

	stride := window - chunkOverlap
	for start := 0; start < len(tokens); start += stride {
		end := min(start+window, len(tokens))

		chunkLogits, err := r.inferChunk(ctx, session, tokens[start:end])
		if err != nil {
			return nil, err
		}

		// Accumulate logits (for averaging in overlap regions)
		for i, row := range chunkLogits {
			if logits[start+i] == nil {
				logits[start+i] = make([]float32, len(row))
			}
			for k, v := range row {
				logits[start+i][k] += v
			}
			counts[start+i]++
		}

		// Stop if we've reached the end
		if end >= len(tokens) {
			break
		}
	}

	// Average logits in overlapping regions
	for i, row := range logits {
		if counts[i] > 1 {
			for k := range row {
				row[k] /= float32(counts[i])
			}
		}
	}

	return logits, nil
}

// inferChunk runs inference on a single window of tokens wrapped in <s> and
// </s>, returning the rows of the window's own tokens.
func (r *Recognizer) inferChunk(ctx context.Context, session inference.Model, tokens []tokenizer.TokenInfo) ([][]float32, error) {
	n := len(tokens) + 2
	inputIDs := make([]int64, n)
	attentionMask := make([]int64, n)

	inputIDs[0] = int64(r.tokenizer.BOSID())
	for i, t := range tokens {
		inputIDs[i+1] = int64(t.ID)
	}
	inputIDs[n-1] = int64(r.tokenizer.EOSID())
	for i := range attentionMask {
		attentionMask[i] = 1
	}

	rows, err := session.Infer(ctx, inputIDs, attentionMask)
	if err != nil {
		return nil, err
	}
	if len(rows) != n {
		return nil, fmt.Errorf("model returned %d rows for %d tokens", len(rows), n)
	}
	return rows[1 : n-1], nil
}

// decode turns per-token logits into character spans. Begin opens a span,
// Inside extends an open span of the same type and otherwise opens one.
func (r *Recognizer) decode(tokens []tokenizer.TokenInfo, logits [][]float32) ([]iob.Span, error) {
	var (
		spans []iob.Span
		cur   iob.Span
		open  bool
		sum   float32
		count int
	)

	flush := func() {
		if !open {
			return
		}
		open = false
		cur.Score = sum / float32(count)
		if r.entityType != "" && cur.Type != r.entityType {
			return
		}
		if cur.Score < r.threshold {
			return
		}
		spans = append(spans, cur)
	}
	begin := func(tok tokenizer.TokenInfo, tag iob.Tag, p float32) {
		flush()
		cur = iob.Span{Start: tok.Start, End: tok.End, Type: tag.Type}
		sum, count, open = p, 1, true
	}

	for i, tok := range tokens {
		row := logits[i]
		if len(row) != len(r.labels) {
			return nil, fmt.Errorf("%w: %d logits for %d labels", ErrLabelMismatch, len(row), len(r.labels))
		}

		// A bare ▁ covers no characters and takes no part in spans.
		if tok.Start == tok.End {
			continue
		}

		k, p := argmax(softmax(row))
		tag := r.labels[k]

		switch tag.Kind {
		case iob.Begin:
			begin(tok, tag, p)
		case iob.Inside:
			if open && cur.Type == tag.Type {
				cur.End = tok.End
				sum += p
				count++
				continue
			}
			begin(tok, tag, p)
		default:
			flush()
		}
	}
	flush()

	return spans, nil
}

// Close releases all resources.
func (r *Recognizer) Close() error {
	var errs []error

	if r.pool != nil {
		if err := r.pool.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.tokenizer != nil {
		if err := r.tokenizer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// parseLabels maps model label names to tags. BIOES names fold into BIO:
// S- begins a span and E- continues one.
func parseLabels(names []string) ([]iob.Tag, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrInvalidLabels)
	}

	tags := make([]iob.Tag, len(names))
	for i, name := range names {
		prefix, typ, ok := strings.Cut(name, "-")
		switch {
		case name == "O":
			tags[i] = iob.O
		case ok && typ != "" && (prefix == "B" || prefix == "S"):
			tags[i] = iob.B(typ)
		case ok && typ != "" && (prefix == "I" || prefix == "E"):
			tags[i] = iob.I(typ)
		default:
			return nil, fmt.Errorf("%w: label %d %q", ErrInvalidLabels, i, name)
		}
	}
	return tags, nil
}

func softmax(logits []float32) []float32 {
	maxLogit := float32(math.Inf(-1))
	for _, v := range logits {
		maxLogit = max(maxLogit, v)
	}

	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxLogit))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

func argmax(probs []float32) (int, float32) {
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best, probs[best]
}
