package openai

import (
	"context"
	"errors"
	"io"
	"iter"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bububa/catalogue-rag/components"
	"github.com/bububa/catalogue-rag/components/llm"
)

// DefaultModel answers catalogue questions
const DefaultModel = openai.GPT3Dot5Turbo

type Client struct {
	client   *openai.Client
	defaults llm.Options
}

var _ llm.Client = (*Client)(nil)

// NewClient builds the openai chat client, baseURL may be empty
func NewClient(apiKey string, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func New(client *openai.Client, opts ...llm.Option) *Client {
	return &Client{
		client:   client,
		defaults: llm.NewOptions(llm.Options{Model: DefaultModel}, opts...),
	}
}

func (c *Client) request(system string, messages []components.Message, opts []llm.Option) openai.ChatCompletionRequest {
	options := llm.NewOptions(c.defaults, opts...)
	list := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		list = append(list, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, msg := range messages {
		var m openai.ChatCompletionMessage
		msg.ToOpenAI(&m)
		list = append(list, m)
	}
	temperature := options.Temperature
	if temperature == 0 {
		// a zero temperature is dropped by omitempty
		temperature = math.SmallestNonzeroFloat32
	}
	return openai.ChatCompletionRequest{
		Model:       options.Model,
		Messages:    list,
		Temperature: temperature,
		MaxTokens:   options.MaxTokens,
	}
}

func (c *Client) Chat(ctx context.Context, system string, messages []components.Message, opts ...llm.Option) (*components.LLMResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(system, messages, opts))
	if err != nil {
		return nil, err
	}
	ret := new(components.LLMResponse)
	ret.FromOpenAI(&resp)
	return ret, nil
}

func (c *Client) Stream(ctx context.Context, system string, messages []components.Message, opts ...llm.Option) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := c.request(system, messages, opts)
		req.Stream = true
		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", err)
			return
		}
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(resp.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}
