package tokenizer

import (
	"unicode"
)

const sentencePieceSpace = '▁' // U+2581 LOWER ONE EIGHTH BLOCK

// normalized is the tokenizer's view of a text together with the way back
// to the original.
type normalized struct {
	runes []rune
	// src[i] is the character offset in the original text of runes[i]. For
	// a ▁ marker it is the offset of the character the marker precedes.
	src []int
}

// normalize prepares text for tokenization following XLM-RoBERTa conventions.
// - Adds dummy prefix (space at start) when dummyPrefix is set
// - Replaces spaces with ▁
// - Normalizes whitespace (collapses runs, trims trailing)
func normalize(text string, dummyPrefix bool) normalized {
	var out normalized
	if text == "" {
		return out
	}

	needSpace := dummyPrefix
	pos := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			if len(out.runes) > 0 {
				needSpace = true
			}
		} else {
			if needSpace {
				out.runes = append(out.runes, sentencePieceSpace)
				out.src = append(out.src, pos)
				needSpace = false
			}
			out.runes = append(out.runes, r)
			out.src = append(out.src, pos)
		}
		pos++
	}

	return out
}

func (n normalized) String() string {
	return string(n.runes)
}

// span maps normalized runes [i, j) to original character offsets. Leading
// ▁ markers do not count towards the token's extent.
func (n normalized) span(i, j int) (start, end int) {
	k := i
	for k < j && n.runes[k] == sentencePieceSpace {
		k++
	}
	if k == j {
		return n.src[i], n.src[i]
	}
	return n.src[k], n.src[j-1] + 1
}
