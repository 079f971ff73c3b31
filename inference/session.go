// Package inference provides ONNX Runtime integration for token classification
// models.
package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortEnvOnce sync.Once
	ortEnvErr  error
)

// initORT initializes ONNX Runtime environment once.
func initORT() error {
	ortEnvOnce.Do(func() {
		ortEnvErr = ort.InitializeEnvironment()
	})
	return ortEnvErr
}

// Session wraps an ONNX Runtime session for a token classification model.
type Session struct {
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
	closed  bool
}

// NewSession creates a new ONNX session from a model file.
func NewSession(modelPath string) (*Session, error) {
	// Check file exists
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	if err := initORT(); err != nil {
		return nil, fmt.Errorf("initializing ONNX runtime: %w", err)
	}

	// Create session options
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer func() { _ = options.Destroy() }() // Cleanup error doesn't affect success

	// Define input/output names (from model inspection)
	inputNames := []string{"input_ids", "attention_mask"}
	outputNames := []string{"logits"}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &Session{session: session}, nil
}

// Infer runs the model on tokenized input and returns one row of label
// logits per input token.
func (s *Session) Infer(ctx context.Context, inputIDs, attentionMask []int64) ([][]float32, error) {
	// Check context before expensive operation
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}

	batchSize := int64(1)
	seqLen := int64(len(inputIDs))

	// Create input tensors
	inputIDsTensor, err := ort.NewTensor(
		ort.NewShape(batchSize, seqLen),
		inputIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("creating input_ids tensor: %w", err)
	}
	defer func() { _ = inputIDsTensor.Destroy() }()

	attentionMaskTensor, err := ort.NewTensor(
		ort.NewShape(batchSize, seqLen),
		attentionMask,
	)
	if err != nil {
		return nil, fmt.Errorf("creating attention_mask tensor: %w", err)
	}
	defer func() { _ = attentionMaskTensor.Destroy() }()

	// Prepare inputs as Value slice
	inputs := []ort.Value{inputIDsTensor, attentionMaskTensor}

	// Prepare output slice - nil entries will be allocated by Run
	outputs := []ort.Value{nil}

	// Run inference
	err = s.session.Run(inputs, outputs)
	if err != nil {
		return nil, fmt.Errorf("running inference: %w", err)
	}

	// Extract logits from output
	if outputs[0] == nil {
		return nil, fmt.Errorf("no output produced")
	}
	defer func() { _ = outputs[0].Destroy() }()

	logitsTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}

	// Expect [batch, seq, labels]
	shape := logitsTensor.GetShape()
	if len(shape) != 3 || shape[0] != batchSize || shape[1] != seqLen {
		return nil, fmt.Errorf("unexpected logits shape %v", shape)
	}

	return splitRows(logitsTensor.GetData(), int(seqLen), int(shape[2]))
}

// splitRows copies a flat row-major [rows, cols] buffer into separate rows.
func splitRows(data []float32, rows, cols int) ([][]float32, error) {
	if cols <= 0 || len(data) < rows*cols {
		return nil, fmt.Errorf("logits buffer of %d values does not hold %dx%d", len(data), rows, cols)
	}

	out := make([][]float32, rows)
	for i := range out {
		row := make([]float32, cols)
		copy(row, data[i*cols:(i+1)*cols])
		out[i] = row
	}
	return out, nil
}

// Close releases ONNX resources.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}
