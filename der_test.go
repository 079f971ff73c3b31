package der

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jamesainslie/go-der/inference"
	"github.com/jamesainslie/go-der/iob"
	"github.com/jamesainslie/go-der/tokenizer"
)

var testPieces = []tokenizer.Piece{
	{Piece: "<unk>", Type: tokenizer.PieceUnknown},
	{Piece: "<s>", Type: tokenizer.PieceControl},
	{Piece: "</s>", Type: tokenizer.PieceControl},
	{Piece: "▁Breast", Score: -1, Type: tokenizer.PieceNormal}, // id 4
	{Piece: "▁cancer", Score: -1, Type: tokenizer.PieceNormal}, // id 5
	{Piece: "▁is", Score: -1, Type: tokenizer.PieceNormal},     // id 6
	{Piece: "▁rare", Score: -1, Type: tokenizer.PieceNormal},   // id 7
	{Piece: "▁", Score: -3, Type: tokenizer.PieceNormal},       // id 8
	{Piece: ".", Score: -2, Type: tokenizer.PieceNormal},       // id 9
}

// labelModel emits a confident logit for the label assigned to each token id.
type labelModel struct {
	labels int
	byID   map[int64]int
	width  int // overrides the row width when non-zero
	calls  atomic.Int32
	t      *testing.T
}

func (m *labelModel) Infer(ctx context.Context, inputIDs, attentionMask []int64) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)
	if len(inputIDs) != len(attentionMask) {
		m.t.Errorf("ids/mask length mismatch: %d vs %d", len(inputIDs), len(attentionMask))
	}
	if inputIDs[0] != 0 || inputIDs[len(inputIDs)-1] != 2 {
		m.t.Errorf("window not wrapped in <s> </s>: %v", inputIDs)
	}

	width := m.labels
	if m.width != 0 {
		width = m.width
	}
	rows := make([][]float32, len(inputIDs))
	for i, id := range inputIDs {
		rows[i] = make([]float32, width)
		rows[i][m.byID[id]] = 5
	}
	return rows, nil
}

func (m *labelModel) Close() error { return nil }

func newTestRecognizer(t *testing.T, model *labelModel, opts ...Option) *Recognizer {
	t.Helper()

	tok, err := tokenizer.NewFromModel(&tokenizer.Model{
		Pieces:         testPieces,
		ModelType:      tokenizer.ModelUnigram,
		AddDummyPrefix: true,
	})
	if err != nil {
		t.Fatalf("NewFromModel failed: %v", err)
	}

	cfg := defaultConfig()
	cfg.logger = slog.New(slog.DiscardHandler)
	for _, opt := range opts {
		opt(&cfg)
	}
	labels, err := parseLabels(cfg.labels)
	if err != nil {
		t.Fatalf("parseLabels failed: %v", err)
	}

	model.t = t
	if model.labels == 0 {
		model.labels = len(labels)
	}
	pool, err := inference.NewPoolFunc(2, func() (inference.Model, error) { return model, nil })
	if err != nil {
		t.Fatalf("NewPoolFunc failed: %v", err)
	}

	r := newRecognizer(tok, pool, labels, cfg)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// confident is the probability of a label whose logit is 5 against two 0s.
var confident = float32(math.Exp(5) / (math.Exp(5) + 2))

func TestRecognize(t *testing.T) {
	r := newTestRecognizer(t, &labelModel{byID: map[int64]int{4: 1, 5: 2}})

	spans, err := r.Recognize(context.Background(), "Breast cancer is rare.")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %v", spans)
	}
	got := spans[0]
	if got.Start != 0 || got.End != 13 || got.Type != DiseaseType {
		t.Errorf("span = %+v, want [0,13) %s", got, DiseaseType)
	}
	if math.Abs(float64(got.Score-confident)) > 1e-5 {
		t.Errorf("score = %v, want %v", got.Score, confident)
	}
}

func TestRecognize_Empty(t *testing.T) {
	model := &labelModel{}
	r := newTestRecognizer(t, model)

	spans, err := r.Recognize(context.Background(), "")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if spans != nil {
		t.Errorf("expected nil spans, got %v", spans)
	}
	if model.calls.Load() != 0 {
		t.Error("model should not run on empty text")
	}
}

func TestRecognize_InsideWithoutBegin(t *testing.T) {
	// I- after O opens a span
	r := newTestRecognizer(t, &labelModel{byID: map[int64]int{5: 2, 7: 2}})

	spans, err := r.Recognize(context.Background(), "Breast cancer is rare.")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	want := []iob.Span{{Start: 7, End: 13}, {Start: 17, End: 21}}
	if len(spans) != len(want) {
		t.Fatalf("expected %d spans, got %v", len(want), spans)
	}
	for i, w := range want {
		if spans[i].Start != w.Start || spans[i].End != w.End {
			t.Errorf("span[%d] = %+v, want [%d,%d)", i, spans[i], w.Start, w.End)
		}
	}
}

func TestRecognize_ConsecutiveBegins(t *testing.T) {
	r := newTestRecognizer(t, &labelModel{byID: map[int64]int{4: 1, 5: 1}})

	spans, err := r.Recognize(context.Background(), "Breast cancer")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %v", spans)
	}
	if spans[0].End != 6 || spans[1].Start != 7 {
		t.Errorf("spans = %v, want [0,6) and [7,13)", spans)
	}
}

func TestRecognize_Threshold(t *testing.T) {
	r := newTestRecognizer(t, &labelModel{byID: map[int64]int{4: 1, 5: 2}}, WithThreshold(0.999))

	spans, err := r.Recognize(context.Background(), "Breast cancer is rare.")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(spans) != 0 {
		t.Errorf("expected spans below threshold to be dropped, got %v", spans)
	}
}

func TestRecognize_EntityTypeFilter(t *testing.T) {
	labels := []string{"O", "B-Disease", "I-Disease", "B-Chemical", "I-Chemical"}
	model := &labelModel{byID: map[int64]int{4: 1, 5: 2, 7: 3}}

	r := newTestRecognizer(t, model, WithLabels(labels))
	spans, err := r.Recognize(context.Background(), "Breast cancer is rare.")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(spans) != 1 || spans[0].Type != DiseaseType {
		t.Errorf("expected only the Disease span, got %v", spans)
	}

	all := newTestRecognizer(t, &labelModel{byID: model.byID}, WithLabels(labels), WithEntityType(""))
	spans, err = all.Recognize(context.Background(), "Breast cancer is rare.")
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(spans) != 2 || spans[1].Type != "Chemical" {
		t.Errorf("expected Disease and Chemical spans, got %v", spans)
	}
}

func TestRecognize_LabelMismatch(t *testing.T) {
	r := newTestRecognizer(t, &labelModel{width: 5})

	_, err := r.Recognize(context.Background(), "Breast cancer")
	if !errors.Is(err, ErrLabelMismatch) {
		t.Errorf("expected ErrLabelMismatch, got %v", err)
	}
}

func TestRecognize_LongText(t *testing.T) {
	model := &labelModel{byID: map[int64]int{4: 1, 5: 2}}
	r := newTestRecognizer(t, model)

	pad := strings.Repeat("is ", 600)
	text := pad + "Breast cancer " + pad
	spans, err := r.Recognize(context.Background(), text)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	if calls := model.calls.Load(); calls < 2 {
		t.Errorf("expected chunked inference, got %d calls", calls)
	}
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %v", spans)
	}
	if spans[0].Start != len(pad) || spans[0].End != len(pad)+13 {
		t.Errorf("span = %+v, want [%d,%d)", spans[0], len(pad), len(pad)+13)
	}
}

func TestRecognize_ContextCancelled(t *testing.T) {
	r := newTestRecognizer(t, &labelModel{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Recognize(ctx, "Breast cancer")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestParseLabels(t *testing.T) {
	tags, err := parseLabels([]string{"O", "B-Disease", "I-Disease", "S-Gene", "E-Gene"})
	if err != nil {
		t.Fatalf("parseLabels failed: %v", err)
	}
	want := []iob.Tag{iob.O, iob.B("Disease"), iob.I("Disease"), iob.B("Gene"), iob.I("Gene")}
	for i, w := range want {
		if tags[i] != w {
			t.Errorf("tag[%d] = %v, want %v", i, tags[i], w)
		}
	}

	for _, bad := range [][]string{nil, {"O", "X-Disease"}, {"B-"}, {"Disease"}} {
		if _, err := parseLabels(bad); !errors.Is(err, ErrInvalidLabels) {
			t.Errorf("parseLabels(%q): expected ErrInvalidLabels, got %v", bad, err)
		}
	}
}

func TestSoftmax(t *testing.T) {
	probs := softmax([]float32{0, 0, 0, 0})
	for i, p := range probs {
		if math.Abs(float64(p)-0.25) > 1e-6 {
			t.Errorf("probs[%d] = %v, want 0.25", i, p)
		}
	}

	// Large logits must not overflow
	probs = softmax([]float32{1000, 0})
	if math.IsNaN(float64(probs[0])) || probs[0] < 0.999 {
		t.Errorf("softmax overflowed: %v", probs)
	}

	k, p := argmax(softmax([]float32{-1, 3, 2}))
	if k != 1 || p < 0.5 {
		t.Errorf("argmax = (%d, %v), want label 1", k, p)
	}
}

func TestNew_ModelNotFound(t *testing.T) {
	_, err := New("nonexistent.onnx", "nonexistent.model")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("expected ErrModelNotFound, got %v", err)
	}
}

func TestNew_TokenizerNotFound(t *testing.T) {
	// Create a temporary fake model file
	modelPath := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(modelPath, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(modelPath, filepath.Join(t.TempDir(), "nonexistent.model"))
	if !errors.Is(err, ErrTokenizerFailed) {
		t.Errorf("expected ErrTokenizerFailed, got %v", err)
	}
}

func TestNew_InvalidLabels(t *testing.T) {
	_, err := New("nonexistent.onnx", "nonexistent.model", WithLabels([]string{"B"}))
	if !errors.Is(err, ErrInvalidLabels) {
		t.Errorf("expected ErrInvalidLabels, got %v", err)
	}
}

func TestRecognizer_Model(t *testing.T) {
	modelPath := os.Getenv("DER_MODEL_PATH")
	tokenizerPath := os.Getenv("DER_TOKENIZER_PATH")
	if modelPath == "" || tokenizerPath == "" {
		t.Skip("DER_MODEL_PATH and DER_TOKENIZER_PATH not set")
	}

	r, err := New(modelPath, tokenizerPath, WithPoolSize(1))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = r.Close() }()

	text := "Mutations in BRCA1 increase the risk of breast cancer."
	spans, err := r.Recognize(context.Background(), text)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	runes := []rune(text)
	for _, s := range spans {
		if s.Start < 0 || s.End > len(runes) || s.Start >= s.End {
			t.Errorf("span out of range: %+v", s)
		}
		if s.Type != DiseaseType {
			t.Errorf("unexpected type %q", s.Type)
		}
	}
}
