package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	der "github.com/jamesainslie/go-der"
	"github.com/jamesainslie/go-der/iob"
)

type fixedRecognizer struct {
	spans []iob.Span
}

func (f fixedRecognizer) Recognize(context.Context, string) ([]iob.Span, error) {
	return f.spans, nil
}

func (fixedRecognizer) Close() error { return nil }

func stub(t *testing.T, spans ...iob.Span) {
	t.Helper()
	orig := openRecognizer
	openRecognizer = func(string, string, ...der.Option) (spanRecognizer, error) {
		return fixedRecognizer{spans: spans}, nil
	}
	t.Cleanup(func() { openRecognizer = orig })
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--model", "m.onnx", "--tokenizer", "t.model"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func TestSpansMode(t *testing.T) {
	stub(t, iob.Span{Start: 0, End: 13, Type: "Disease", Score: 0.97})

	out, err := run(t, "Breast", "cancer", "is", "common.")
	require.NoError(t, err)

	assert.Contains(t, out, "Entities (1):")
	assert.Contains(t, out, `[0, 13) Disease "Breast cancer" (0.9700)`)
}

func TestIOBMode(t *testing.T) {
	stub(t, iob.Span{Start: 0, End: 13, Type: "Disease", Score: 0.97})

	out, err := run(t, "--mode", "iob", "Breast cancer is common.")
	require.NoError(t, err)

	assert.Equal(t, "Breast\tB-Disease\ncancer\tI-Disease\nis\tO\ncommon\tO\n.\tO\n", out)
}

func TestNoText(t *testing.T) {
	stub(t)

	_, err := run(t)
	assert.ErrorContains(t, err, "no text")
}

func TestUnknownMode(t *testing.T) {
	stub(t)

	_, err := run(t, "--mode", "complete", "text")
	assert.ErrorContains(t, err, "unknown mode")
}

func TestMissingModel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	cmd := newCmd(&stdout, &stderr)
	cmd.SetArgs([]string{"--tokenizer", "t.model", "text"})
	assert.Error(t, cmd.Execute())
}
