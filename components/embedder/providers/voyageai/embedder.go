package voyageai

import (
	"context"
	"errors"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/embedder"
)

const DefaultEmbedderModel = "voyage-3"

type Embedder struct {
	*Client

	embedder.Options
	encoding EncodingFormat
}

var _ embedder.Embedder = (*Embedder)(nil)

func (p *Embedder) SetClient(clt *Client) {
	p.Client = clt
}

// SetEncoding selects the vector wire format, EncodingNone or EncodingBase64
func (p *Embedder) SetEncoding(encoding EncodingFormat) {
	p.encoding = encoding
}

func New(client *Client, opts ...embedder.Option) *Embedder {
	i := &Embedder{
		Client: client,
	}
	embedder.WithProvider(embedder.ProviderVoyageAI)(&i.Options)
	embedder.WithModel(DefaultEmbedderModel)(&i.Options)
	for _, opt := range opts {
		opt(&i.Options)
	}
	return i
}

func (p *Embedder) Embed(ctx context.Context, text string, embedding *embedder.Embedding, usage *components.LLMUsage) error {
	ret, err := p.batchEmbed(ctx, []string{text}, QueryInput, usage)
	if err != nil {
		return err
	}
	*embedding = ret[0]
	return nil
}

func (p *Embedder) BatchEmbed(ctx context.Context, parts []string, usage *components.LLMUsage) ([]embedder.Embedding, error) {
	return p.batchEmbed(ctx, parts, DocInput, usage)
}

func (p *Embedder) batchEmbed(ctx context.Context, parts []string, inputType InputType, usage *components.LLMUsage) ([]embedder.Embedding, error) {
	req := EmbeddingRequest{
		Input:           parts,
		Model:           p.Model(),
		InputType:       inputType,
		EncodingFormat:  p.encoding,
		OutputDimension: p.Dimensions(),
	}
	resp, err := p.CreateEmbeddings(ctx, &req)
	if err != nil {
		return nil, embedder.NewServiceError(p, len(parts), statusCode(err), err)
	}
	if usage != nil {
		usage.InputTokens = int64(resp.Usage.TotalTokens)
	}
	ret := make([]embedder.Embedding, 0, len(resp.Data))
	for _, v := range resp.Data {
		if v.Index < 0 || v.Index >= len(parts) {
			return nil, embedder.NewServiceError(p, len(parts), 0, errors.New("embedding index out of range"))
		}
		ret = append(ret, embedder.Embedding{
			Object:    parts[v.Index],
			Embedding: v.Embedding,
			Index:     v.Index,
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
