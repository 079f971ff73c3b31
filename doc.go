// Package der recognizes disease mentions in text with a token
// classification model exported to ONNX.
//
// # Quick Start
//
//	rec, err := der.New("model.onnx", "sentencepiece.bpe.model")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rec.Close()
//
//	spans, err := rec.Recognize(ctx, "BRCA1 mutations raise breast cancer risk.")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, s := range spans {
//	    fmt.Println(s.Start, s.End, s.Type)
//	}
//
// Span offsets are character offsets into the input, end exclusive.
//
// # Thread Safety
//
// Recognizer is safe for concurrent use. It manages an internal pool of ONNX
// sessions, configurable via WithPoolSize.
//
// # Model Files
//
// The model must take input_ids and attention_mask and return logits shaped
// [batch, tokens, labels], with labels ordered as given to WithLabels. The
// tokenizer is an XLM-RoBERTa SentencePiece model, e.g.
// https://huggingface.co/xlm-roberta-base/resolve/main/sentencepiece.bpe.model
package der
