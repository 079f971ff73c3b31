package tokenizer

import (
	"path/filepath"
	"reflect"
	"testing"
)

func newTestTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	tok, err := New(writeTestModel(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		if err := tok.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return tok
}

func TestNew(t *testing.T) {
	tok := newTestTokenizer(t)

	// SentencePiece pieces + <pad> + the shift
	if tok.VocabSize() != len(testPieces)+2 {
		t.Errorf("expected vocab size = %d, got %d", len(testPieces)+2, tok.VocabSize())
	}

	if tok.BOSID() != 0 {
		t.Errorf("expected BOS ID = 0, got %d", tok.BOSID())
	}
	if tok.PadID() != 1 {
		t.Errorf("expected PAD ID = 1, got %d", tok.PadID())
	}
	if tok.EOSID() != 2 {
		t.Errorf("expected EOS ID = 2, got %d", tok.EOSID())
	}
	if tok.UnkID() != 3 {
		t.Errorf("expected UNK ID = 3, got %d", tok.UnkID())
	}
}

func TestNew_FileNotFound(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nonexistent.model"))
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestNewFromModel_RejectsBPE(t *testing.T) {
	model, err := ParseModel(encodeModel(testPieces, ModelBPE))
	if err != nil {
		t.Fatalf("ParseModel failed: %v", err)
	}
	if _, err := NewFromModel(model); err == nil {
		t.Error("expected error for BPE model")
	}
}

func TestTokenizer_Encode(t *testing.T) {
	tok := newTestTokenizer(t)

	tests := []struct {
		name string
		text string
		want []TokenInfo
	}{
		{
			name: "known words",
			text: "Hello world",
			want: []TokenInfo{
				{ID: 4, Text: "▁Hello", Start: 0, End: 5},
				{ID: 5, Text: "▁world", Start: 6, End: 11},
			},
		},
		{
			name: "unknown characters",
			text: "Hello  xy",
			want: []TokenInfo{
				{ID: 4, Text: "▁Hello", Start: 0, End: 5},
				{ID: 6, Text: "▁", Start: 7, End: 7},
				{ID: 3, Text: "x", Start: 7, End: 8},
				{ID: 3, Text: "y", Start: 8, End: 9},
			},
		},
		{
			name: "control pieces are not matched",
			text: "<s>",
			want: []TokenInfo{
				{ID: 6, Text: "▁", Start: 0, End: 0},
				{ID: 3, Text: "<", Start: 0, End: 1},
				{ID: 3, Text: "s", Start: 1, End: 2},
				{ID: 3, Text: ">", Start: 2, End: 3},
			},
		},
		{name: "empty", text: ""},
		{name: "whitespace only", text: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Encode(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Encode(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTokenizer_EncodeIDs_Simple(t *testing.T) {
	tok := newTestTokenizer(t)

	ids := tok.EncodeIDs("Hello world")
	if !reflect.DeepEqual(ids, []int32{4, 5}) {
		t.Errorf("EncodeIDs = %v, want [4 5]", ids)
	}

	// All IDs should be valid
	for i, id := range tok.EncodeIDs("Hello wonderful world") {
		if id < 0 || int(id) >= tok.VocabSize() {
			t.Errorf("token %d: invalid ID %d", i, id)
		}
	}
}
