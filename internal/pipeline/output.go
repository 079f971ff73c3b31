package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/jamesainslie/go-der/iob"
)

// WritePredictions encodes docs as a JSON array of
// {"id", "text", "entities": [[start, end, type], ...]}.
func WritePredictions(w io.Writer, docs []iob.Document) error {
	out := make([]iob.Document, len(docs))
	for i, d := range docs {
		out[i] = d
		if out[i].Entities == nil {
			out[i].Entities = []iob.Span{}
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode predictions: %w", err)
	}
	return nil
}

// SavePredictions writes docs to path. The file is replaced atomically, so
// readers never see a partial array.
func SavePredictions(path string, docs []iob.Document) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, 0o644)

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	bw := bufio.NewWriter(tmp)
	if err := WritePredictions(bw, docs); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("write predictions: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync predictions: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close predictions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// LoadPredictions reads a file written by SavePredictions.
func LoadPredictions(path string) ([]iob.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read predictions: %w", err)
	}
	var docs []iob.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	return docs, nil
}
