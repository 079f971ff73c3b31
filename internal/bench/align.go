package bench

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/jamesainslie/go-der/iob"
)

// TokenizeFunc splits text into tokens with character offsets.
type TokenizeFunc func(text string) []iob.Token

// AlignDocuments tags every document's tokens against its entities. The
// documents are not modified.
func AlignDocuments(docs []iob.Document, tokenize TokenizeFunc) ([]iob.Sequence, error) {
	seqs := make([]iob.Sequence, len(docs))
	for i, doc := range docs {
		spans := slices.Clone(doc.Entities)
		iob.SortSpans(spans)

		if err := iob.ValidateSpans(doc.ID, spans, utf8.RuneCountInString(doc.Text)); err != nil {
			return nil, err
		}

		seqs[i] = iob.Align(tokenize(doc.Text), spans)
	}
	return seqs, nil
}

// Score aligns gold and predicted documents and evaluates them. Documents
// must pair up by position and id.
func Score(gold, pred []iob.Document, tokenize TokenizeFunc, types ...string) (Results, error) {
	if err := pairDocuments(gold, pred); err != nil {
		return Results{}, err
	}

	goldSeqs, err := AlignDocuments(gold, tokenize)
	if err != nil {
		return Results{}, fmt.Errorf("align gold: %w", err)
	}
	predSeqs, err := AlignDocuments(pred, tokenize)
	if err != nil {
		return Results{}, fmt.Errorf("align predictions: %w", err)
	}

	return Evaluate(goldSeqs, predSeqs, types...)
}

func pairDocuments(gold, pred []iob.Document) error {
	if len(gold) != len(pred) {
		return fmt.Errorf("%w: %d gold documents, %d predicted", ErrLengthMismatch, len(gold), len(pred))
	}
	for i := range gold {
		if gold[i].ID != pred[i].ID {
			return fmt.Errorf("%w: document %d is %q in gold, %q in predictions", ErrLengthMismatch, i, gold[i].ID, pred[i].ID)
		}
	}
	return nil
}
