package iob

// Align tags each token against spans, which must be sorted by start and
// non-overlapping (see ValidateSpans).
//
// A single forward pass moves a token cursor and an entity cursor. An entity
// is left behind once a token starts strictly after its end, or closed early
// when a token's end lands on it: at or past the end for the begin token,
// exactly on the end for an inside token. A token that overshoots the end
// without matching it is still tagged Inside and the entity stays open.
func Align(tokens []Token, spans []Span) Sequence {
	tags := make(Sequence, len(tokens))
	e := 0

	for i, tok := range tokens {
		for e < len(spans) && tok.Start > spans[e].End {
			e++
		}
		if e == len(spans) {
			tags[i] = O
			continue
		}

		ent := spans[e]
		switch {
		case tok.Start < ent.Start:
			tags[i] = O
		case tok.Start == ent.Start:
			tags[i] = B(ent.Type)
			if tok.End >= ent.End {
				e++
			}
		default:
			tags[i] = I(ent.Type)
			if tok.End == ent.End {
				e++
			}
		}
	}

	return tags
}

// TokenSpan is an entity over token indices [Start, End).
type TokenSpan struct {
	Start int
	End   int
	Type  string
}

// Entities reconstructs entity spans from a tag sequence. Begin opens a span
// and Inside extends an open span of the same type. An Inside with no
// matching open span starts a new one.
func Entities(seq Sequence) []TokenSpan {
	var (
		out  []TokenSpan
		open = -1
	)
	closeOpen := func(end int) {
		if open >= 0 {
			out[open].End = end
			open = -1
		}
	}

	for i, t := range seq {
		switch t.Kind {
		case Begin:
			closeOpen(i)
			out = append(out, TokenSpan{Start: i, Type: t.Type})
			open = len(out) - 1
		case Inside:
			if open >= 0 && out[open].Type == t.Type {
				continue
			}
			closeOpen(i)
			out = append(out, TokenSpan{Start: i, Type: t.Type})
			open = len(out) - 1
		default:
			closeOpen(i)
		}
	}
	closeOpen(len(seq))

	return out
}

// CharSpans maps the entities of seq back to character spans over tokens.
func CharSpans(tokens []Token, seq Sequence) []Span {
	ents := Entities(seq)
	if len(ents) == 0 {
		return nil
	}
	spans := make([]Span, len(ents))
	for i, ent := range ents {
		spans[i] = Span{
			Start: tokens[ent.Start].Start,
			End:   tokens[ent.End-1].End,
			Type:  ent.Type,
			Score: 1,
		}
	}
	return spans
}
