package iob

import (
	"fmt"
	"strings"
)

// Kind is the position of a token relative to an entity.
type Kind uint8

const (
	Outside Kind = iota
	Begin
	Inside
)

// Tag labels a single token. Type is empty for Outside.
type Tag struct {
	Kind Kind
	Type string
}

// O is the Outside tag.
var O = Tag{}

// B returns the Begin tag for typ.
func B(typ string) Tag { return Tag{Kind: Begin, Type: typ} }

// I returns the Inside tag for typ.
func I(typ string) Tag { return Tag{Kind: Inside, Type: typ} }

// String renders the tag as O, B-<type> or I-<type>.
func (t Tag) String() string {
	switch t.Kind {
	case Begin:
		return "B-" + t.Type
	case Inside:
		return "I-" + t.Type
	default:
		return "O"
	}
}

// ParseTag is the inverse of Tag.String.
func ParseTag(s string) (Tag, error) {
	if s == "O" {
		return O, nil
	}
	prefix, typ, ok := strings.Cut(s, "-")
	if !ok || typ == "" {
		return Tag{}, fmt.Errorf("iob: malformed tag %q", s)
	}
	switch prefix {
	case "B":
		return B(typ), nil
	case "I":
		return I(typ), nil
	}
	return Tag{}, fmt.Errorf("iob: malformed tag %q", s)
}

// Sequence is one tag per token.
type Sequence []Tag

// Strings renders every tag.
func (s Sequence) Strings() []string {
	out := make([]string, len(s))
	for i, t := range s {
		out[i] = t.String()
	}
	return out
}

// ParseSequence parses IOB strings into a Sequence.
func ParseSequence(tags []string) (Sequence, error) {
	seq := make(Sequence, len(tags))
	for i, s := range tags {
		t, err := ParseTag(s)
		if err != nil {
			return nil, fmt.Errorf("tag %d: %w", i, err)
		}
		seq[i] = t
	}
	return seq, nil
}
