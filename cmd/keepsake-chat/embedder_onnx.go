//go:build onnx

package main

import (
	"fmt"
	"os"

	"github.com/keepsake-ai/keepsake-go-sdk/recall"
	"github.com/keepsake-ai/keepsake-go-sdk/recall/embedder/onnx"
)

// newEmbedder creates an ONNX embedder from environment configuration.
// Requires KEEPSAKE_ONNX_MODEL, KEEPSAKE_ONNX_TOKENIZER, and
// KEEPSAKE_ONNX_LIB to be set.
func newEmbedder() (recall.Embedder, error) {
	modelPath := os.Getenv("KEEPSAKE_ONNX_MODEL")
	tokenizerPath := os.Getenv("KEEPSAKE_ONNX_TOKENIZER")
	if modelPath == "" || tokenizerPath == "" {
		return nil, fmt.Errorf("KEEPSAKE_ONNX_MODEL and KEEPSAKE_ONNX_TOKENIZER are required with the onnx build tag")
	}
	return onnx.New(onnx.Config{
		ModelPath:     modelPath,
		TokenizerPath: tokenizerPath,
	})
}
