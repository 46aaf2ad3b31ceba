package embed

import (
	"context"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingClient records params and returns canned embeddings.
type fakeEmbeddingClient struct {
	lastParams openai.EmbeddingNewParams
	dims       int
	count      int
}

func (f *fakeEmbeddingClient) New(ctx context.Context, params openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error) {
	f.lastParams = params

	resp := &openai.CreateEmbeddingResponse{}
	for i := 0; i < f.count; i++ {
		vec := make([]float64, f.dims)
		vec[i%f.dims] = 1.0
		resp.Data = append(resp.Data, openai.Embedding{Embedding: vec})
	}
	return resp, nil
}

func TestOpenAIEmbedder_SingleUsesStringInput(t *testing.T) {
	fake := &fakeEmbeddingClient{dims: 4, count: 1}
	e := &OpenAIEmbedder{client: fake, model: DefaultOpenAIModel, dims: 4}

	vec, err := e.Embed(context.Background(), "visa requirements")
	require.NoError(t, err)
	assert.Len(t, vec, 4)

	assert.Equal(t, "visa requirements", fake.lastParams.Input.OfString.Value)
	assert.Empty(t, fake.lastParams.Input.OfArrayOfStrings)
}

func TestOpenAIEmbedder_BatchUsesArrayInput(t *testing.T) {
	fake := &fakeEmbeddingClient{dims: 4, count: 3}
	e := &OpenAIEmbedder{client: fake, model: DefaultOpenAIModel, dims: 4}

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Len(t, fake.lastParams.Input.OfArrayOfStrings, 3)
	assert.Equal(t, int64(4), fake.lastParams.Dimensions.Value)
}

func TestOpenAIEmbedder_CountMismatch(t *testing.T) {
	fake := &fakeEmbeddingClient{dims: 4, count: 1}
	e := &OpenAIEmbedder{client: fake, model: DefaultOpenAIModel, dims: 4}

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "returned 1 embeddings for 2 texts")
}

func TestNewOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	assert.Error(t, err)
}
