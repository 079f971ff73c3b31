// Package iob holds the annotation data model and converts character-offset
// entity spans into per-token IOB tag sequences.
//
// All offsets are character (code point) offsets into the document text,
// end exclusive.
package iob

import (
	"errors"
	"fmt"
	"slices"

	"github.com/goccy/go-json"
)

// Span is an entity occurrence over [Start, End) in a document's text.
type Span struct {
	Start int
	End   int
	Type  string
	// Score is the recognizer's confidence. Gold spans carry 1.
	Score float32
}

// MarshalJSON encodes a span as [start, end, type].
func (s Span) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{s.Start, s.End, s.Type})
}

// UnmarshalJSON decodes the [start, end, type] form.
func (s *Span) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding span: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("decoding span: want 3 elements, got %d", len(raw))
	}
	var out Span
	if err := json.Unmarshal(raw[0], &out.Start); err != nil {
		return fmt.Errorf("decoding span start: %w", err)
	}
	if err := json.Unmarshal(raw[1], &out.End); err != nil {
		return fmt.Errorf("decoding span end: %w", err)
	}
	if err := json.Unmarshal(raw[2], &out.Type); err != nil {
		return fmt.Errorf("decoding span type: %w", err)
	}
	out.Score = 1
	*s = out
	return nil
}

// Token is a tokenizer output unit with character offsets.
type Token struct {
	Start int
	End   int
	Text  string
}

// Document is one record: its text and the entity spans annotated on it.
type Document struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Entities []Span `json:"entities"`
}

// SortSpans sorts spans by start offset, keeping the input order of ties.
func SortSpans(spans []Span) {
	slices.SortStableFunc(spans, func(a, b Span) int {
		return a.Start - b.Start
	})
}

// ErrAlignmentInput is matched by every *AlignmentInputError.
var ErrAlignmentInput = errors.New("iob: invalid alignment input")

// AlignmentInputError reports a span that breaks the aligner's contract.
type AlignmentInputError struct {
	DocID string
	Index int
	Msg   string
}

func (e *AlignmentInputError) Error() string {
	return fmt.Sprintf("iob: document %q: span %d: %s", e.DocID, e.Index, e.Msg)
}

// Is reports whether target is ErrAlignmentInput.
func (e *AlignmentInputError) Is(target error) bool {
	return target == ErrAlignmentInput
}

// ValidateSpans checks that spans are in bounds, sorted by start and
// mutually non-overlapping. Adjacent spans are allowed.
func ValidateSpans(docID string, spans []Span, textLen int) error {
	prevEnd := 0
	for i, s := range spans {
		switch {
		case s.Start < 0:
			return &AlignmentInputError{DocID: docID, Index: i, Msg: fmt.Sprintf("negative start %d", s.Start)}
		case s.Start > s.End:
			return &AlignmentInputError{DocID: docID, Index: i, Msg: fmt.Sprintf("start %d after end %d", s.Start, s.End)}
		case s.End > textLen:
			return &AlignmentInputError{DocID: docID, Index: i, Msg: fmt.Sprintf("end %d beyond text length %d", s.End, textLen)}
		}
		if i > 0 {
			prev := spans[i-1]
			if s.Start < prev.Start {
				return &AlignmentInputError{DocID: docID, Index: i, Msg: "spans not sorted by start"}
			}
			if s.Start < prevEnd {
				return &AlignmentInputError{DocID: docID, Index: i, Msg: fmt.Sprintf("overlaps previous span [%d,%d)", prev.Start, prev.End)}
			}
		}
		prevEnd = s.End
	}
	return nil
}
