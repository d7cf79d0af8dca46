package cohere

import (
	"context"
	"errors"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereClient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"
	"github.com/cohere-ai/cohere-go/v2/option"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/embedder"
)

type Embedder struct {
	*cohereClient.Client

	embedder.Options
}

var _ embedder.Embedder = (*Embedder)(nil)

// NewClient returns a cohere client, baseURL may be empty
func NewClient(apiKey string, baseURL string) *cohereClient.Client {
	opts := []option.RequestOption{option.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return cohereClient.NewClient(opts...)
}

func (p *Embedder) SetClient(clt *cohereClient.Client) {
	p.Client = clt
}

func New(client *cohereClient.Client, opts ...embedder.Option) *Embedder {
	i := &Embedder{
		Client: client,
	}
	embedder.WithProvider(embedder.ProviderCohere)(&i.Options)
	for _, opt := range opts {
		opt(&i.Options)
	}
	return i
}

func (p *Embedder) Embed(ctx context.Context, text string, embedding *embedder.Embedding, usage *components.LLMUsage) error {
	ret, err := p.batchEmbed(ctx, []string{text}, cohere.EmbedInputTypeSearchQuery, usage)
	if err != nil {
		return err
	}
	*embedding = ret[0]
	return nil
}

func (p *Embedder) BatchEmbed(ctx context.Context, parts []string, usage *components.LLMUsage) ([]embedder.Embedding, error) {
	return p.batchEmbed(ctx, parts, cohere.EmbedInputTypeSearchDocument, usage)
}

func (p *Embedder) batchEmbed(ctx context.Context, parts []string, inputType cohere.EmbedInputType, usage *components.LLMUsage) ([]embedder.Embedding, error) {
	model := p.Model()
	req := cohere.EmbedRequest{
		Texts:     parts,
		Model:     &model,
		InputType: &inputType,
	}
	resp, err := p.Client.Embed(ctx, &req)
	if err != nil {
		return nil, embedder.NewServiceError(p, len(parts), statusCode(err), err)
	}
	respV := resp.GetEmbeddingsFloats()
	if respV == nil {
		return nil, embedder.NewServiceError(p, len(parts), 0, errors.New("response has no float embeddings"))
	}
	if usage != nil && respV.Meta != nil && respV.Meta.BilledUnits != nil {
		if v := respV.Meta.BilledUnits.InputTokens; v != nil {
			usage.InputTokens = int64(*v)
		}
	}
	if len(respV.Embeddings) != len(parts) {
		return nil, embedder.NewServiceError(p, len(parts), 0, errors.New("embedding count mismatch"))
	}
	ret := make([]embedder.Embedding, 0, len(respV.Embeddings))
	for idx, v := range respV.Embeddings {
		ret = append(ret, embedder.Embedding{
			Object:    parts[idx],
			Embedding: v,
			Index:     idx,
		})
	}
	if err := embedder.Ordered(ret, len(parts)); err != nil {
		return nil, embedder.NewServiceError(p, len(parts), 0, err)
	}
	return ret, nil
}

func statusCode(err error) int {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
