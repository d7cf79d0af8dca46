package embedder

// Options holds the configuration shared by Embedder implementations.
type Options struct {
	// provider specifies the embedding service to use (e.g., "OpenAI", "Cohere")
	provider Provider
	// model specifies the model to use
	model string
	// dimensions requests shortened vectors when the model supports it
	dimensions int
}

// Option is a function type for configuring the embedder Options.
type Option func(*Options)

func WithProvider(provider Provider) Option {
	return func(o *Options) {
		o.provider = provider
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.model = model
	}
}

func WithDimensions(dimensions int) Option {
	return func(o *Options) {
		o.dimensions = dimensions
	}
}

func (i Options) Provider() Provider {
	return i.provider
}

func (i Options) Model() string {
	return i.model
}

func (i Options) Dimensions() int {
	return i.dimensions
}
