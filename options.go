package der

import (
	"log/slog"
	"runtime"
)

// DiseaseType is the entity type recognized by default.
const DiseaseType = "Disease"

// DefaultLabels is the label order of a BIO disease tagger.
var DefaultLabels = []string{"O", "B-" + DiseaseType, "I-" + DiseaseType}

// Option configures a Recognizer.
type Option func(*config)

type config struct {
	labels     []string
	entityType string
	threshold  float32
	poolSize   int
	logger     *slog.Logger
}

func defaultConfig() config {
	return config{
		labels:     DefaultLabels,
		entityType: DiseaseType,
		poolSize:   runtime.NumCPU(),
		logger:     slog.Default(),
	}
}

// WithLabels sets the model's label names in output order (default:
// DefaultLabels). BIO and BIOES names are accepted.
func WithLabels(labels []string) Option {
	return func(c *config) {
		c.labels = labels
	}
}

// WithEntityType keeps only spans of this type (default: DiseaseType).
// An empty type keeps every type the model predicts.
func WithEntityType(t string) Option {
	return func(c *config) {
		c.entityType = t
	}
}

// WithThreshold drops spans whose mean label probability is below t
// (default: 0, keep all).
func WithThreshold(t float32) Option {
	return func(c *config) {
		c.threshold = t
	}
}

// WithPoolSize sets the ONNX session pool size (default: runtime.NumCPU()).
func WithPoolSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}
