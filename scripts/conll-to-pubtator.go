//go:build ignore

// Convert NCBI-disease style CoNLL files (one "token<TAB>tag" per line,
// blank line between sentences, -DOCSTART- between documents) into the
// PubTator corpus format read by der.
// Usage: go run ./scripts/conll-to-pubtator.go [-split test] [-in DIR] [-out DIR]
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/jamesainslie/go-der/iob"
)

// document is one converted record.
type document struct {
	id        string
	sentences [][]string // tokens
	tags      [][]string
}

func main() {
	var (
		inDir  = flag.String("in", "testdata/ncbi-disease", "directory with <split>.tsv files")
		outDir = flag.String("out", "testdata/ncbi-disease", "output directory")
		splits = flag.String("split", "train,dev,test", "comma-separated splits to convert")
	)
	flag.Parse()

	for _, split := range strings.Split(*splits, ",") {
		inFile := filepath.Join(*inDir, split+".tsv")
		outFile := filepath.Join(*outDir, split+".txt")

		fmt.Printf("Processing %s...\n", split)
		docs, err := readCoNLL(inFile, split)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", inFile, err)
			continue
		}

		mentions, err := writePubTator(outFile, docs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", outFile, err)
			continue
		}

		fmt.Printf("  -> %s (%d documents, %d mentions)\n", outFile, len(docs), mentions)
	}
}

func readCoNLL(path, split string) ([]*document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	var (
		docs   []*document
		cur    *document
		tokens []string
		tags   []string
	)

	endSentence := func() {
		if len(tokens) == 0 {
			return
		}
		if cur == nil {
			cur = &document{id: fmt.Sprintf("%s-%d", split, len(docs)+1)}
			docs = append(docs, cur)
		}
		cur.sentences = append(cur.sentences, tokens)
		cur.tags = append(cur.tags, tags)
		tokens, tags = nil, nil
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Document separator
		if strings.HasPrefix(line, "-DOCSTART-") {
			endSentence()
			cur = nil
			continue
		}

		// Blank line = end of sentence
		if line == "" {
			endSentence()
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed line %q", line)
		}
		tag := fields[len(fields)-1]
		if tag == "B" || tag == "I" {
			// Some releases drop the type
			tag += "-Disease"
		}
		tokens = append(tokens, fields[0])
		tags = append(tags, tag)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning file: %w", err)
	}

	// Don't forget last sentence if no trailing blank
	endSentence()

	return docs, nil
}

// writePubTator writes the first sentence as the title and the rest as the
// abstract. Tokens are joined with single spaces.
func writePubTator(path string, docs []*document) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	mentions := 0

	for _, doc := range docs {
		var (
			title, abstract []string
			toks            []iob.Token
			seq             iob.Sequence
			offset          int
		)
		for i, sent := range doc.sentences {
			if i == 1 {
				// " " between title and abstract
				offset++
			}
			parsed, err := iob.ParseSequence(doc.tags[i])
			if err != nil {
				return 0, fmt.Errorf("document %s: %w", doc.id, err)
			}
			for j, tok := range sent {
				if j > 0 || i > 1 {
					offset++
				}
				n := utf8.RuneCountInString(tok)
				toks = append(toks, iob.Token{Start: offset, End: offset + n, Text: tok})
				offset += n
			}
			seq = append(seq, parsed...)

			if i == 0 {
				title = append(title, sent...)
			} else {
				abstract = append(abstract, sent...)
			}
		}

		fmt.Fprintf(w, "%s|t|%s\n", doc.id, strings.Join(title, " "))
		fmt.Fprintf(w, "%s|a|%s\n", doc.id, strings.Join(abstract, " "))

		text := []rune(strings.Join(title, " ") + " " + strings.Join(abstract, " "))
		for _, s := range iob.CharSpans(toks, seq) {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t-\n", doc.id, s.Start, s.End, string(text[s.Start:s.End]), s.Type)
			mentions++
		}
		fmt.Fprintln(w)
	}

	return mentions, w.Flush()
}
