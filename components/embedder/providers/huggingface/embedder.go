package huggingface

import (
	"context"
	"errors"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/embedder"
)

const (
	DefaultEmbedderModel = "sentence-transformers/all-MiniLM-L6-v2"
)

type Embedder struct {
	*Client

	embedder.Options
}

var _ embedder.Embedder = (*Embedder)(nil)

func (p *Embedder) SetClient(clt *Client) {
	p.Client = clt
}

func New(client *Client, opts ...embedder.Option) *Embedder {
	i := &Embedder{
		Client: client,
	}
	embedder.WithProvider(embedder.ProviderHuggingFace)(&i.Options)
	embedder.WithModel(DefaultEmbedderModel)(&i.Options)
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

// BatchEmbed waits for a cold model to load instead of failing with 503
func (p *Embedder) BatchEmbed(ctx context.Context, parts []string, usage *components.LLMUsage) ([]embedder.Embedding, error) {
	isTrue := true
	req := EmbeddingRequest{
		Inputs: parts,
		Options: options{
			WaitForModel: &isTrue,
		},
		Model: p.Model(),
	}
	resp, err := p.CreateEmbeddings(ctx, &req)
	if err != nil {
		return nil, embedder.NewServiceError(p, len(parts), statusCode(err), err)
	}
	// vectors come back in input order without an index
	if len(resp) != len(parts) {
		return nil, embedder.NewServiceError(p, len(parts), 0, errors.New("embedding count mismatch"))
	}
	ret := make([]embedder.Embedding, 0, len(resp))
	for idx, v := range resp {
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
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
