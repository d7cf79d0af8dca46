package gemini

import (
	"context"
	"errors"

	gemini "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/embedder"
)

const DefaultEmbedderModel = "text-embedding-004"

type Embedder struct {
	*gemini.Client

	embedder.Options
}

var _ embedder.Embedder = (*Embedder)(nil)

// NewClient returns a gemini client, baseURL may be empty
func NewClient(ctx context.Context, apiKey string, baseURL string) (*gemini.Client, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}
	return gemini.NewClient(ctx, opts...)
}

func (p *Embedder) SetClient(clt *gemini.Client) {
	p.Client = clt
}

func New(client *gemini.Client, opts ...embedder.Option) *Embedder {
	i := &Embedder{
		Client: client,
	}
	embedder.WithProvider(embedder.ProviderGemini)(&i.Options)
	embedder.WithModel(DefaultEmbedderModel)(&i.Options)
	for _, opt := range opts {
		opt(&i.Options)
	}
	return i
}

func (p *Embedder) Embed(ctx context.Context, text string, embedding *embedder.Embedding, usage *components.LLMUsage) error {
	model := p.EmbeddingModel(p.Model())
	model.TaskType = gemini.TaskTypeRetrievalQuery
	resp, err := model.EmbedContent(ctx, gemini.Text(text))
	if err != nil {
		return embedder.NewServiceError(p, 1, statusCode(err), err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return embedder.NewServiceError(p, 1, 0, errors.New("response has no embedding"))
	}
	embedding.Object = text
	embedding.Embedding = float64s(resp.Embedding.Values)
	embedding.Index = 0
	return nil
}

func (p *Embedder) BatchEmbed(ctx context.Context, parts []string, usage *components.LLMUsage) ([]embedder.Embedding, error) {
	model := p.EmbeddingModel(p.Model())
	model.TaskType = gemini.TaskTypeRetrievalDocument
	batch := model.NewBatch()
	for _, part := range parts {
		batch.AddContent(gemini.Text(part))
	}
	resp, err := model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, embedder.NewServiceError(p, len(parts), statusCode(err), err)
	}
	// embeddings come back in request order without an index
	if len(resp.Embeddings) != len(parts) {
		return nil, embedder.NewServiceError(p, len(parts), 0, errors.New("embedding count mismatch"))
	}
	ret := make([]embedder.Embedding, 0, len(resp.Embeddings))
	for idx, v := range resp.Embeddings {
		var values []float64
		if v != nil {
			values = float64s(v.Values)
		}
		ret = append(ret, embedder.Embedding{
			Object:    parts[idx],
			Embedding: values,
			Index:     idx,
		})
	}
	if err := embedder.Ordered(ret, len(parts)); err != nil {
		return nil, embedder.NewServiceError(p, len(parts), 0, err)
	}
	return ret, nil
}

func float64s(values []float32) []float64 {
	ret := make([]float64, 0, len(values))
	for _, v := range values {
		ret = append(ret, float64(v))
	}
	return ret
}

func statusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
