package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"

	"github.com/jamesainslie/go-der/iob"
)

// Words splits text into UAX #29 words, dropping whitespace. Punctuation
// becomes a token of its own. Offsets are character offsets.
func Words(text string) []iob.Token {
	if text == "" {
		return nil
	}

	var (
		tokens   []iob.Token
		bytePos  int
		charPos  int
		segments = words.FromString(text)
	)
	for segments.Next() {
		// Segments are contiguous, so character offsets advance with them.
		start := charPos + utf8.RuneCountInString(text[bytePos:segments.Start()])
		end := start + utf8.RuneCountInString(segments.Value())
		bytePos, charPos = segments.End(), end

		value := segments.Value()
		if strings.TrimSpace(value) == "" {
			continue
		}
		tokens = append(tokens, iob.Token{Start: start, End: end, Text: value})
	}

	return tokens
}
