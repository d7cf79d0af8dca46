package anthropic

import (
	"context"
	"iter"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/llm"
)

const (
	DefaultModel     = string(anthropic.ModelClaude3Haiku20240307)
	DefaultMaxTokens = 1024
)

type Client struct {
	client   *anthropic.Client
	defaults llm.Options
}

var _ llm.Client = (*Client)(nil)

// NewClient builds the anthropic client, baseURL may be empty
func NewClient(apiKey string, baseURL string) *anthropic.Client {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	return anthropic.NewClient(apiKey, opts...)
}

func New(client *anthropic.Client, opts ...llm.Option) *Client {
	return &Client{
		client:   client,
		defaults: llm.NewOptions(llm.Options{Model: DefaultModel, MaxTokens: DefaultMaxTokens}, opts...),
	}
}

func (c *Client) request(system string, messages []components.Message, opts []llm.Option) anthropic.MessagesRequest {
	options := llm.NewOptions(c.defaults, opts...)
	list := make([]anthropic.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role() == components.SystemRole {
			continue
		}
		var m anthropic.Message
		msg.ToAnthropic(&m)
		list = append(list, m)
	}
	if options.MaxTokens <= 0 {
		options.MaxTokens = DefaultMaxTokens
	}
	temperature := options.Temperature
	return anthropic.MessagesRequest{
		Model:       anthropic.Model(options.Model),
		System:      system,
		Messages:    list,
		MaxTokens:   options.MaxTokens,
		Temperature: &temperature,
	}
}

func (c *Client) Chat(ctx context.Context, system string, messages []components.Message, opts ...llm.Option) (*components.LLMResponse, error) {
	resp, err := c.client.CreateMessages(ctx, c.request(system, messages, opts))
	if err != nil {
		return nil, err
	}
	ret := new(components.LLMResponse)
	ret.FromAnthropic(&resp)
	return ret, nil
}

// Stream adapts the callback stream of the sdk. Breaking out of the range
// cancels the underlying request.
func (c *Client) Stream(ctx context.Context, system string, messages []components.Message, opts ...llm.Option) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stopped := false
		_, err := c.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
			MessagesRequest: c.request(system, messages, opts),
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				text := data.Delta.GetText()
				if stopped || text == "" {
					return
				}
				if !yield(text, nil) {
					stopped = true
					cancel()
				}
			},
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}
