// Package embedding maps text to fixed-dimension vectors. Two providers are
// available: an OpenAI-backed one for real deployments and a deterministic
// local one for offline use and tests. Both satisfy the same contract, so
// the pipelines never care which is wired in.
package embedding

import "context"

// Embedder turns an ordered batch of texts into one vector per text, in the
// same order. All vectors produced by one Embedder share Dimension().
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}
