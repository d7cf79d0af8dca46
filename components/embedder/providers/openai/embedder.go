package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/embedder"
)

type Embedder struct {
	*openai.Client

	embedder.Options
}

var _ embedder.Embedder = (*Embedder)(nil)

// NewClient returns an openai client, baseURL may be empty
func NewClient(apiKey string, baseURL string) *openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	clt := openai.NewClient(opts...)
	return &clt
}

func (p *Embedder) SetClient(clt *openai.Client) {
	p.Client = clt
}

func New(client *openai.Client, opts ...embedder.Option) *Embedder {
	i := &Embedder{
		Client: client,
	}
	embedder.WithProvider(embedder.ProviderOpenAI)(&i.Options)
	for _, opt := range opts {
		opt(&i.Options)
	}
	return i
}

func (p *Embedder) Embed(ctx context.Context, text string, embedding *embedder.Embedding, usage *components.LLMUsage) error {
	ret, err := p.BatchEmbed(ctx, []string{text}, usage)
	if err != nil {
		return err
	}
	*embedding = ret[0]
	return nil
}

func (p *Embedder) BatchEmbed(ctx context.Context, parts []string, usage *components.LLMUsage) ([]embedder.Embedding, error) {
	req := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: parts,
		},
		Model: openai.EmbeddingModel(p.Model()),
	}
	if dim := p.Dimensions(); dim > 0 {
		req.Dimensions = openai.Int(int64(dim))
	}
	resp, err := p.Embeddings.New(ctx, req)
	if err != nil {
		return nil, embedder.NewServiceError(p, len(parts), statusCode(err), err)
	}
	if usage != nil {
		usage.InputTokens = resp.Usage.TotalTokens
	}
	ret := make([]embedder.Embedding, 0, len(resp.Data))
	for _, v := range resp.Data {
		idx := int(v.Index)
		if idx < 0 || idx >= len(parts) {
			return nil, embedder.NewServiceError(p, len(parts), 0, errors.New("embedding index out of range"))
		}
		ret = append(ret, embedder.Embedding{
			Object:    parts[idx],
			Embedding: v.Embedding,
			Index:     idx,
		})
	}
	if err := embedder.Ordered(ret, len(parts)); err != nil {
		return nil, embedder.NewServiceError(p, len(parts), 0, err)
	}
	return ret, nil
}

func statusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
