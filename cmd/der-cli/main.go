// Command der-cli tags disease mentions in the text given as arguments.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	der "github.com/jamesainslie/go-der"
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
	if err := newCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// spanRecognizer is the part of *der.Recognizer the command uses.
type spanRecognizer interface {
	Recognize(ctx context.Context, text string) ([]iob.Span, error)
	Close() error
}

var openRecognizer = func(modelPath, tokenizerPath string, opts ...der.Option) (spanRecognizer, error) {
	r, err := der.New(modelPath, tokenizerPath, opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		modelPath     string
		tokenizerPath string
		mode          string
		threshold     float32
		entityType    string
		labels        []string
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:           "der-cli --model MODEL --tokenizer TOKENIZER [OPTIONS] TEXT",
		Short:         "Tag disease mentions in text",
		Args:          cobra.ArbitraryArgs,
		Version:       fmt.Sprintf("%s (%s, %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				return fmt.Errorf("no text provided")
			}
			if mode != "spans" && mode != "iob" {
				return fmt.Errorf("unknown mode: %s", mode)
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

			opts := []der.Option{
				der.WithThreshold(threshold),
				der.WithEntityType(entityType),
				der.WithPoolSize(1),
				der.WithLogger(logger),
			}
			if len(labels) > 0 {
				opts = append(opts, der.WithLabels(labels))
			}

			rec, err := openRecognizer(modelPath, tokenizerPath, opts...)
			if err != nil {
				return fmt.Errorf("creating recognizer: %w", err)
			}
			defer func() { _ = rec.Close() }() // Cleanup error ignored in CLI

			spans, err := rec.Recognize(cmd.Context(), text)
			if err != nil {
				return err
			}

			if mode == "iob" {
				return printTags(stdout, text, spans)
			}
			return printSpans(stdout, text, spans)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&modelPath, "model", "", "Path to ONNX model file")
	f.StringVar(&tokenizerPath, "tokenizer", "", "Path to SentencePiece model file")
	f.StringVar(&mode, "mode", "spans", "Mode: spans or iob")
	f.Float32Var(&threshold, "threshold", 0, "Minimum span confidence")
	f.StringVar(&entityType, "entity-type", der.DiseaseType, "Entity type to keep (empty keeps all)")
	f.StringSliceVar(&labels, "labels", nil, "Model labels in output order (default O,B-Disease,I-Disease)")
	f.BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("tokenizer")

	return cmd
}

func printSpans(w io.Writer, text string, spans []iob.Span) error {
	runes := []rune(text)
	var b strings.Builder
	fmt.Fprintf(&b, "Text: %q\n", text)
	fmt.Fprintf(&b, "Entities (%d):\n", len(spans))
	for i, s := range spans {
		fmt.Fprintf(&b, "  %d: [%d, %d) %s %q (%.4f)\n", i+1, s.Start, s.End, s.Type, string(runes[s.Start:s.End]), s.Score)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// printTags prints one word token per line with its IOB tag.
func printTags(w io.Writer, text string, spans []iob.Span) error {
	tokens := tokenizer.Words(text)
	tags := iob.Align(tokens, spans)

	var b strings.Builder
	for i, tok := range tokens {
		fmt.Fprintf(&b, "%s\t%s\n", tok.Text, tags[i])
	}
	_, err := io.WriteString(w, b.String())
	return err
}
