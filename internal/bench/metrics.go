package bench

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jamesainslie/go-der/iob"
)

// ErrLengthMismatch is returned when gold and predicted inputs do not pair up.
var ErrLengthMismatch = errors.New("bench: gold and predicted lengths differ")

// Convention selects how partial matches count towards precision and recall.
type Convention int

const (
	// Strict credits only correct matches.
	Strict Convention = iota
	// PartialCredit adds half a point for every partial match.
	PartialCredit
)

func (c Convention) String() string {
	switch c {
	case Strict:
		return "strict"
	case PartialCredit:
		return "partial"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// ParseConvention parses "strict" or "partial".
func ParseConvention(s string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return Strict, nil
	case "partial":
		return PartialCredit, nil
	default:
		return 0, fmt.Errorf("unknown convention %q", s)
	}
}

// Counts holds entity-type match counters.
type Counts struct {
	Correct   int
	Incorrect int
	Partial   int
	Missed    int
	Spurious  int
}

// Possible is the number of gold entities.
func (c Counts) Possible() int {
	return c.Correct + c.Incorrect + c.Partial + c.Missed
}

// Actual is the number of predicted entities.
func (c Counts) Actual() int {
	return c.Correct + c.Incorrect + c.Partial + c.Spurious
}

func (c *Counts) add(o Counts) {
	c.Correct += o.Correct
	c.Incorrect += o.Incorrect
	c.Partial += o.Partial
	c.Missed += o.Missed
	c.Spurious += o.Spurious
}

// Scores holds counts with derived metrics.
type Scores struct {
	Counts
	Precision float64
	Recall    float64
	F1        float64
}

// Score derives precision, recall and F1. Zero denominators give 0.
func (c Counts) Score(conv Convention) Scores {
	s := Scores{Counts: c}

	credit := float64(c.Correct)
	if conv == PartialCredit {
		credit += 0.5 * float64(c.Partial)
	}

	if actual := c.Actual(); actual > 0 {
		s.Precision = credit / float64(actual)
	}
	if possible := c.Possible(); possible > 0 {
		s.Recall = credit / float64(possible)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

// Results holds counts summed over all documents.
type Results struct {
	Overall Counts
	ByType  map[string]Counts
}

// Types returns the entity types in ByType, sorted.
func (r Results) Types() []string {
	types := make([]string, 0, len(r.ByType))
	for t := range r.ByType {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Evaluator accumulates entity-type matches one document at a time.
// The zero value considers every type.
type Evaluator struct {
	types   map[string]bool
	overall Counts
	byType  map[string]Counts
}

// NewEvaluator returns an evaluator restricted to types, or to every type
// when none are given.
func NewEvaluator(types ...string) *Evaluator {
	e := &Evaluator{byType: make(map[string]Counts)}
	if len(types) > 0 {
		e.types = make(map[string]bool, len(types))
		for _, t := range types {
			e.types[t] = true
			e.byType[t] = Counts{}
		}
	}
	return e
}

// Add compares one document's predicted tags against its gold tags.
func (e *Evaluator) Add(gold, pred iob.Sequence) error {
	if len(gold) != len(pred) {
		return fmt.Errorf("%w: %d gold tags, %d predicted", ErrLengthMismatch, len(gold), len(pred))
	}
	if e.byType == nil {
		e.byType = make(map[string]Counts)
	}

	goldSpans := e.filter(iob.Entities(gold))
	predSpans := e.filter(iob.Entities(pred))
	matched := make([]bool, len(goldSpans))

	for _, p := range predSpans {
		if i := slices.IndexFunc(goldSpans, func(g iob.TokenSpan) bool {
			return g.Start == p.Start && g.End == p.End
		}); i >= 0 {
			g := goldSpans[i]
			matched[i] = true
			if g.Type == p.Type {
				e.count(g.Type, Counts{Correct: 1})
			} else {
				e.count(g.Type, Counts{Incorrect: 1})
			}
			continue
		}

		// Partial credit goes to the first overlapping gold span only.
		if i := slices.IndexFunc(goldSpans, func(g iob.TokenSpan) bool {
			return overlaps(g, p)
		}); i >= 0 {
			matched[i] = true
			e.count(goldSpans[i].Type, Counts{Partial: 1})
			continue
		}

		e.count(p.Type, Counts{Spurious: 1})
	}

	for i, g := range goldSpans {
		if !matched[i] {
			e.count(g.Type, Counts{Missed: 1})
		}
	}
	return nil
}

// Results returns the counts accumulated so far.
func (e *Evaluator) Results() Results {
	r := Results{Overall: e.overall, ByType: make(map[string]Counts, len(e.byType))}
	for t, c := range e.byType {
		r.ByType[t] = c
	}
	return r
}

func (e *Evaluator) filter(spans []iob.TokenSpan) []iob.TokenSpan {
	if e.types == nil {
		return spans
	}
	return slices.DeleteFunc(spans, func(s iob.TokenSpan) bool {
		return !e.types[s.Type]
	})
}

func (e *Evaluator) count(typ string, c Counts) {
	e.overall.add(c)
	t := e.byType[typ]
	t.add(c)
	e.byType[typ] = t
}

func overlaps(a, b iob.TokenSpan) bool {
	return a.Start < b.End && b.Start < a.End
}

// Evaluate scores documents pairwise by index.
func Evaluate(gold, pred []iob.Sequence, types ...string) (Results, error) {
	if len(gold) != len(pred) {
		return Results{}, fmt.Errorf("%w: %d gold documents, %d predicted", ErrLengthMismatch, len(gold), len(pred))
	}

	e := NewEvaluator(types...)
	for i := range gold {
		if err := e.Add(gold[i], pred[i]); err != nil {
			return Results{}, fmt.Errorf("document %d: %w", i, err)
		}
	}
	return e.Results(), nil
}

// Report writes the overall summary followed by one line per entity type.
func Report(w io.Writer, r Results, conv Convention) error {
	var b strings.Builder

	overall := r.Overall.Score(conv)
	fmt.Fprintf(&b, "Results of evaluation (entity type, %s)\n", conv)
	writeScores(&b, "overall", overall)

	if len(r.ByType) > 0 {
		fmt.Fprintln(&b, "\nBy type:")
		for _, t := range r.Types() {
			writeScores(&b, t, r.ByType[t].Score(conv))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeScores(b *strings.Builder, label string, s Scores) {
	fmt.Fprintf(b, "  %-12s precision=%.4f recall=%.4f f1=%.4f\n", label, s.Precision, s.Recall, s.F1)
	fmt.Fprintf(b, "  %-12s correct=%d incorrect=%d partial=%d missed=%d spurious=%d possible=%d actual=%d\n",
		"", s.Correct, s.Incorrect, s.Partial, s.Missed, s.Spurious, s.Possible(), s.Actual())
}
