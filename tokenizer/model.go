package tokenizer

import (
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// PieceType mirrors SentencePiece's ModelProto.SentencePiece.Type.
type PieceType int32

const (
	PieceNormal      PieceType = 1
	PieceUnknown     PieceType = 2
	PieceControl     PieceType = 3
	PieceUserDefined PieceType = 4
	PieceUnused      PieceType = 5
	PieceByte        PieceType = 6
)

// ModelType mirrors SentencePiece's TrainerSpec.ModelType.
type ModelType int32

const (
	ModelUnigram ModelType = 1
	ModelBPE     ModelType = 2
	ModelWord    ModelType = 3
	ModelChar    ModelType = 4
)

// Field numbers of the SentencePiece ModelProto messages.
const (
	fieldModelPieces     protowire.Number = 1
	fieldModelTrainer    protowire.Number = 2
	fieldModelNormalizer protowire.Number = 3

	fieldPiece      protowire.Number = 1
	fieldPieceScore protowire.Number = 2
	fieldPieceType  protowire.Number = 3

	fieldTrainerModelType protowire.Number = 3

	fieldNormalizerName        protowire.Number = 1
	fieldNormalizerDummyPrefix protowire.Number = 3
)

var errTruncated = errors.New("truncated message")

// Piece represents a vocabulary piece from the model.
type Piece struct {
	Piece string
	Score float32
	Type  PieceType
}

// Model represents a loaded SentencePiece model.
type Model struct {
	Pieces         []Piece
	ModelType      ModelType
	NormalizerName string
	AddDummyPrefix bool
}

// LoadModel loads a SentencePiece model from a .model file.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}

	model, err := ParseModel(data)
	if err != nil {
		return nil, fmt.Errorf("parsing protobuf: %w", err)
	}
	return model, nil
}

// ParseModel decodes a serialized ModelProto. Only the fields the
// tokenizer needs are read; everything else is skipped.
func ParseModel(data []byte) (*Model, error) {
	m := &Model{
		ModelType:      ModelUnigram,
		AddDummyPrefix: true,
	}

	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skip(num, typ, b)
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		switch num {
		case fieldModelPieces:
			p, err := parsePiece(v)
			if err != nil {
				return 0, fmt.Errorf("piece %d: %w", len(m.Pieces), err)
			}
			m.Pieces = append(m.Pieces, p)
		case fieldModelTrainer:
			if err := parseTrainer(v, m); err != nil {
				return 0, fmt.Errorf("trainer spec: %w", err)
			}
		case fieldModelNormalizer:
			if err := parseNormalizer(v, m); err != nil {
				return 0, fmt.Errorf("normalizer spec: %w", err)
			}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}

	if len(m.Pieces) == 0 {
		return nil, errors.New("model has no pieces")
	}
	return m, nil
}

func parsePiece(data []byte) (Piece, error) {
	p := Piece{Type: PieceNormal}
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldPiece && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			p.Piece = string(v)
			return n, nil
		case num == fieldPieceScore && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			p.Score = math.Float32frombits(v)
			return n, nil
		case num == fieldPieceType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			p.Type = PieceType(v)
			return n, nil
		}
		return skip(num, typ, b)
	})
	return p, err
}

func parseTrainer(data []byte, m *Model) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldTrainerModelType && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m.ModelType = ModelType(v)
			return n, nil
		}
		return skip(num, typ, b)
	})
}

func parseNormalizer(data []byte, m *Model) error {
	return walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldNormalizerName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m.NormalizerName = string(v)
			return n, nil
		case num == fieldNormalizerDummyPrefix && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			m.AddDummyPrefix = protowire.DecodeBool(v)
			return n, nil
		}
		return skip(num, typ, b)
	})
}

// walk calls fn for every field in a serialized message. fn receives the
// bytes following the tag and returns how many of them it consumed.
func walk(data []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		consumed, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if consumed > len(data) {
			return errTruncated
		}
		data = data[consumed:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return n, nil
}
