package der

import "errors"

// Sentinel errors for conditions callers may need to handle differently.
var (
	// ErrModelNotFound indicates the model file does not exist.
	ErrModelNotFound = errors.New("der: model file not found")

	// ErrInvalidModel indicates the model file exists but is malformed.
	ErrInvalidModel = errors.New("der: invalid model format")

	// ErrTokenizerFailed indicates tokenizer initialization failed.
	ErrTokenizerFailed = errors.New("der: tokenizer initialization failed")

	// ErrInvalidLabels indicates the label set is empty or malformed.
	ErrInvalidLabels = errors.New("der: invalid label set")

	// ErrLabelMismatch indicates the model's output width differs from the
	// number of configured labels.
	ErrLabelMismatch = errors.New("der: model output does not match labels")
)
