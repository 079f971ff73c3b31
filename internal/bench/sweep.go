package bench

import (
	"sort"

	"github.com/jamesainslie/go-der/iob"
)

// SweepResult holds scores for one threshold value.
type SweepResult struct {
	Threshold float32
	Scores    Scores
	Results   Results
}

// SweepThresholds generates threshold values from min to max with given step.
func SweepThresholds(min, max, step float32) []float32 {
	if step <= 0 {
		return nil
	}
	var thresholds []float32
	for t := min; t < max; t += step {
		thresholds = append(thresholds, t)
	}
	return thresholds
}

// Sweep evaluates predictions at each confidence threshold, dropping spans
// scored below it, and returns results sorted by overall F1 descending.
func Sweep(gold, pred []iob.Document, tokenize TokenizeFunc, thresholds []float32, conv Convention, types ...string) ([]SweepResult, error) {
	if err := pairDocuments(gold, pred); err != nil {
		return nil, err
	}

	// Gold tags do not depend on the threshold.
	goldSeqs, err := AlignDocuments(gold, tokenize)
	if err != nil {
		return nil, err
	}

	var results []SweepResult
	for _, threshold := range thresholds {
		predSeqs, err := AlignDocuments(FilterByScore(pred, threshold), tokenize)
		if err != nil {
			return nil, err
		}

		r, err := Evaluate(goldSeqs, predSeqs, types...)
		if err != nil {
			return nil, err
		}

		results = append(results, SweepResult{
			Threshold: threshold,
			Scores:    r.Overall.Score(conv),
			Results:   r,
		})
	}

	// Sort by F1 descending, lower threshold first on ties
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Scores.F1 > results[j].Scores.F1
	})

	return results, nil
}

// FilterByScore returns copies of docs keeping only spans scored at least
// threshold.
func FilterByScore(docs []iob.Document, threshold float32) []iob.Document {
	out := make([]iob.Document, len(docs))
	for i, doc := range docs {
		out[i] = iob.Document{ID: doc.ID, Text: doc.Text}
		for _, s := range doc.Entities {
			if s.Score >= threshold {
				out[i].Entities = append(out[i].Entities, s)
			}
		}
	}
	return out
}
