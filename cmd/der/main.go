// Command der recognizes disease mentions in a PubTator corpus, writes the
// predictions as JSON and prints entity-type evaluation metrics.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	der "github.com/jamesainslie/go-der"
	"github.com/jamesainslie/go-der/internal/bench"
	"github.com/jamesainslie/go-der/internal/config"
	"github.com/jamesainslie/go-der/internal/pipeline"
	"github.com/jamesainslie/go-der/iob"
	"github.com/jamesainslie/go-der/tokenizer"
)

// Set by -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// recognizer is what a run needs from the model.
type recognizer interface {
	pipeline.Recognizer
	Close() error
}

// openRecognizer loads the model. Tests replace it.
var openRecognizer = func(cfg config.Config, logger *slog.Logger) (recognizer, error) {
	opts := []der.Option{
		der.WithEntityType(cfg.EntityType),
		der.WithThreshold(cfg.Model.Threshold),
		der.WithPoolSize(cfg.Model.PoolSize),
		der.WithLogger(logger),
	}
	if len(cfg.Model.Labels) > 0 {
		opts = append(opts, der.WithLabels(cfg.Model.Labels))
	}
	r, err := der.New(cfg.Model.Path, cfg.Model.Tokenizer, opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// options holds the flag values shared by every command.
type options struct {
	inputPath  string
	output     string
	configPath string
	envFile    string
	model      string
	tokenizer  string
	workers    int
	threshold  float32
	convention string
	logLevel   string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "der --input_path CORPUS [--output FILE]",
		Short: "Recognize and evaluate disease mentions in a PubTator corpus",
		Long: `der reads a PubTator corpus, runs the disease recognizer over every
document, writes the predictions as JSON and prints entity-type precision,
recall and F1 against the corpus annotations.`,
		Args:          cobra.NoArgs,
		Version:       fmt.Sprintf("%s (%s, %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.setup(cmd, stderr)
			if err != nil {
				return err
			}
			return runEvaluate(cmd.Context(), cfg, opts.inputPath, stdout, logger)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	opts.bind(cmd, true)
	cmd.Flags().StringVar(&opts.output, "output", "", `predictions file (default "`+config.DefaultOutput+`")`)

	cmd.AddCommand(newSweepCmd(stdout, stderr))
	return cmd
}

// bind registers the flags shared by every command.
func (o *options) bind(cmd *cobra.Command, withThreshold bool) {
	f := cmd.Flags()
	f.StringVar(&o.inputPath, "input_path", "", "PubTator corpus to recognize and evaluate (required)")
	f.StringVar(&o.configPath, "config", "", "YAML configuration file")
	f.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	f.StringVar(&o.model, "model", "", "ONNX token classification model (env "+config.EnvModelPath+")")
	f.StringVar(&o.tokenizer, "tokenizer", "", "SentencePiece model (env "+config.EnvTokenizerPath+")")
	f.IntVar(&o.workers, "workers", 1, "documents recognized in parallel (env "+config.EnvWorkers+")")
	f.StringVar(&o.convention, "convention", bench.Strict.String(), "scoring convention: strict or partial")
	f.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	if withThreshold {
		f.Float32Var(&o.threshold, "threshold", 0, "minimum span confidence")
	}
	_ = cmd.MarkFlagRequired("input_path")
}

// setup builds the configuration (defaults, file, environment, then flags
// the user set) and the logger.
func (o *options) setup(cmd *cobra.Command, stderr io.Writer) (config.Config, *slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid --log-level %q: %w", o.logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if err := config.LoadDotEnv(o.envFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	f := cmd.Flags()
	if f.Changed("model") {
		cfg.Model.Path = o.model
	}
	if f.Changed("tokenizer") {
		cfg.Model.Tokenizer = o.tokenizer
	}
	if f.Changed("workers") {
		cfg.Workers = o.workers
	}
	if f.Changed("threshold") {
		cfg.Model.Threshold = o.threshold
	}
	if f.Changed("convention") {
		cfg.Convention = strings.ToLower(o.convention)
	}
	if f.Changed("output") {
		cfg.Output = o.output
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// recognize loads the corpus and the model and predicts every document.
func recognize(ctx context.Context, cfg config.Config, inputPath string, logger *slog.Logger) (gold, pred []iob.Document, err error) {
	gold, err = bench.CorpusParser{EntityType: cfg.EntityType}.Load(inputPath)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("corpus loaded", "path", inputPath, "documents", len(gold))

	// Reject unusable gold spans before spending time on the model.
	if _, err := bench.AlignDocuments(gold, tokenizer.Words); err != nil {
		return nil, nil, fmt.Errorf("gold annotations: %w", err)
	}

	rec, err := openRecognizer(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("loading model: %w", err)
	}
	defer func() { _ = rec.Close() }()

	runner := &pipeline.Runner{
		Recognizer: rec,
		Workers:    cfg.Workers,
		EntityType: cfg.EntityType,
		Logger:     logger,
	}
	pred, report, err := runner.Run(ctx, gold)
	if err != nil {
		return nil, nil, err
	}
	if n := len(report.Failed); n > 0 {
		logger.Warn("documents without predictions", "count", n)
	}
	return gold, pred, nil
}

func runEvaluate(ctx context.Context, cfg config.Config, inputPath string, stdout io.Writer, logger *slog.Logger) error {
	gold, pred, err := recognize(ctx, cfg, inputPath, logger)
	if err != nil {
		return err
	}

	if err := pipeline.SavePredictions(cfg.Output, pred); err != nil {
		return err
	}
	logger.Info("predictions written", "path", cfg.Output)

	results, err := bench.Score(gold, pred, tokenizer.Words, cfg.EntityType)
	if err != nil {
		return err
	}
	return bench.Report(stdout, results, cfg.ParsedConvention())
}
