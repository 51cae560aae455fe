//go:build !onnx

package main

import (
	"github.com/keepsake-ai/keepsake-go-sdk/recall"
	"github.com/keepsake-ai/keepsake-go-sdk/recall/embedder/mock"
)

// newEmbedder returns the hash-based embedder. Build with -tags onnx for real
// semantic recall with a local sentence-transformer model.
func newEmbedder() (recall.Embedder, error) {
	return mock.New(), nil
}
