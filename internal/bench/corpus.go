// Package bench loads annotated corpora and scores entity predictions
// against them.
package bench

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jamesainslie/go-der/iob"
)

// DefaultEntityType is the type given to every corpus annotation unless a
// CorpusParser says otherwise.
const DefaultEntityType = "Disease"

// maxLineSize bounds a single corpus line. Abstracts run to a few KB.
const maxLineSize = 1 << 20

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("bench: malformed corpus")

// FormatError reports a corpus line that cannot be parsed.
type FormatError struct {
	Line int // 1-based
	ID   string
	Msg  string
}

func (e *FormatError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("bench: line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("bench: line %d: document %q: %s", e.Line, e.ID, e.Msg)
}

// Is reports whether target is ErrFormat.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// CorpusParser reads PubTator-style corpora:
//
//	<id>|t|<title>
//	<id>|a|<abstract>
//	<id>\t<start>\t<end>\t<mention>\t<type>\t<concept>
//
// with a blank line between records.
type CorpusParser struct {
	// EntityType is assigned to every annotation. The corpus's own type
	// column is ignored. Empty means DefaultEntityType.
	EntityType string
}

// LoadCorpus parses the corpus file at path with the default entity type.
func LoadCorpus(path string) ([]iob.Document, error) {
	return CorpusParser{}.Load(path)
}

// ParseCorpus parses a corpus with the default entity type.
func ParseCorpus(r io.Reader) ([]iob.Document, error) {
	return CorpusParser{}.Parse(r)
}

// Load parses the corpus file at path.
func (p CorpusParser) Load(path string) ([]iob.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	docs, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// record accumulates one document while its lines are read.
type record struct {
	id       string
	title    string
	abstract string
	hasTitle bool
	hasAbst  bool
	spans    []iob.Span
}

// Parse reads documents in first-appearance order. Title and abstract are
// joined with a single space after trimming; annotation offsets are kept
// as written.
func (p CorpusParser) Parse(r io.Reader) ([]iob.Document, error) {
	entityType := p.EntityType
	if entityType == "" {
		entityType = DefaultEntityType
	}

	var (
		docs   []iob.Document
		cur    *record
		seen   = make(map[string]bool)
		lineNo int
	)

	finish := func() error {
		if cur == nil {
			return nil
		}
		rec := cur
		cur = nil
		switch {
		case !rec.hasTitle:
			return &FormatError{Line: lineNo, ID: rec.id, Msg: "record has no title line"}
		case !rec.hasAbst:
			return &FormatError{Line: lineNo, ID: rec.id, Msg: "record has no abstract line"}
		}
		docs = append(docs, iob.Document{
			ID:       rec.id,
			Text:     strings.TrimSpace(rec.title) + " " + strings.TrimSpace(rec.abstract),
			Entities: rec.spans,
		})
		return nil
	}

	open := func(id string) error {
		if seen[id] {
			return &FormatError{Line: lineNo, ID: id, Msg: "id reappears in a later record"}
		}
		seen[id] = true
		cur = &record{id: id}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.TrimSpace(line) == "" {
			if err := finish(); err != nil {
				return nil, err
			}
			continue
		}

		if id, kind, text, ok := splitTextLine(line); ok {
			if cur == nil {
				if err := open(id); err != nil {
					return nil, err
				}
			} else if id != cur.id {
				return nil, &FormatError{Line: lineNo, ID: id, Msg: fmt.Sprintf("line inside record %q", cur.id)}
			}
			switch kind {
			case "t":
				cur.title, cur.hasTitle = text, true
			case "a":
				cur.abstract, cur.hasAbst = text, true
			}
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 6 {
			// Neither a text nor an annotation line.
			continue
		}

		id := fields[0]
		if cur == nil {
			return nil, &FormatError{Line: lineNo, ID: id, Msg: "annotation before title or abstract"}
		}
		if id != cur.id {
			return nil, &FormatError{Line: lineNo, ID: id, Msg: fmt.Sprintf("annotation inside record %q", cur.id)}
		}

		start, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, &FormatError{Line: lineNo, ID: id, Msg: fmt.Sprintf("invalid start offset %q", fields[1])}
		}
		end, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, &FormatError{Line: lineNo, ID: id, Msg: fmt.Sprintf("invalid end offset %q", fields[2])}
		}

		cur.spans = append(cur.spans, iob.Span{Start: start, End: end, Type: entityType, Score: 1})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}

	if err := finish(); err != nil {
		return nil, err
	}
	return docs, nil
}

// splitTextLine splits "<id>|<kind>|<text>". The text may itself contain '|'.
func splitTextLine(line string) (id, kind, text string, ok bool) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 || strings.Contains(parts[0], "\t") {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}
