package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/docchat/internal/domain"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute
	// rate limits. The API accepts up to 2048 inputs per request.
	DefaultBatchSize = 500
)

// modelDimensions maps known embedding models to their vector size.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAI generates embeddings through the OpenAI API. The credential is
// supplied by the caller per session and held only in memory; it is never
// written to configuration or storage.
type OpenAI struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

// NewOpenAI builds an OpenAI embedder for one caller-supplied credential.
// Model defaults to DefaultModel; batchSize 0 means DefaultBatchSize.
func NewOpenAI(apiKey, model string, batchSize int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing API credential", domain.ErrEmbeddingUnavailable)
	}
	if model == "" {
		model = DefaultModel
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	dimension, ok := modelDimensions[model]
	if !ok {
		dimension = 1536
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		client:    &client,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}, nil
}

// Dimension returns the vector size of the configured model.
func (e *OpenAI) Dimension() int {
	return e.dimension
}

// Embed generates one vector per input text, in order. Inputs are sent in
// batches; a batch that fails after the retry budget fails the whole call,
// so no vectors are silently dropped.
func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch, err := e.embedBatchWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// embedBatchWithRetry embeds a single batch, retrying rate-limit responses
// with exponential backoff. All other API errors are permanent.
func (e *OpenAI) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: e.model,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err // retried with backoff
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: got %d vectors for %d inputs",
				domain.ErrEmbeddingUnavailable, len(resp.Data), len(texts)))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			if len(data.Embedding) != e.dimension {
				return backoff.Permanent(fmt.Errorf("%w: model returned %d dimensions, expected %d",
					domain.ErrIncompatibleDimension, len(data.Embedding), e.dimension))
			}
			vectors[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, classify(err)
	}
	return vectors, nil
}

// classify maps provider failures onto the retrieval error taxonomy.
func classify(err error) error {
	if errors.Is(err, domain.ErrEmbeddingUnavailable) ||
		errors.Is(err, domain.ErrIncompatibleDimension) ||
		errors.Is(err, domain.ErrRateLimited) {
		return err
	}
	if isRateLimitError(err) {
		// Retry budget exhausted while still throttled.
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
}

// isRateLimitError checks for an HTTP 429 from the API.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 narrows the API's float64 vectors for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
