package voyageai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
)

const (
	// BaseURL is VoyageAI HTTP API base URL.
	BaseURL = "https://api.voyageai.com"
	// EmbedAPIVersion is the latest stable embedding API version.
	EmbedAPIVersion = "v1"
)

// Client is Voyage HTTP API client.
type Client struct {
	opts Options
}

// Options are client options
type Options struct {
	APIKey     string
	BaseURL    string
	Version    string
	HTTPClient *http.Client
}

// Option is functional option.
type Option func(*Options)

// NewClient creates a new HTTP API client and returns it.
// By default it reads the Voyage API key from VOYAGE_API_KEY
// env var and uses the default Go http.Client for making API requests.
func NewClient(opts ...Option) *Client {
	options := Options{
		APIKey:     os.Getenv("VOYAGE_API_KEY"),
		BaseURL:    BaseURL,
		Version:    EmbedAPIVersion,
		HTTPClient: http.DefaultClient,
	}

	for _, apply := range opts {
		apply(&options)
	}

	return &Client{
		opts: options,
	}
}

// WithAPIKey sets the API key, an empty key keeps VOYAGE_API_KEY
func WithAPIKey(apiKey string) Option {
	return func(o *Options) {
		if apiKey != "" {
			o.APIKey = apiKey
		}
	}
}

// WithBaseURL sets the API base URL, an empty url keeps BaseURL
func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		if baseURL != "" {
			o.BaseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(o *Options) {
		o.Version = version
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = httpClient
	}
}

// InputType is an embedding input type.
type InputType string

const (
	NoneInput  InputType = ""
	QueryInput InputType = "query"
	DocInput   InputType = "document"
)

// EncodingFormat for embedding API requests.
type EncodingFormat string

const (
	EncodingNone EncodingFormat = ""
	// EncodingBase64 makes Voyage API return every vector as base64 encoded
	// little endian float32 values
	EncodingBase64 EncodingFormat = "base64"
)

// EmbeddingRequest sent to API endpoint.
type EmbeddingRequest struct {
	Input           []string       `json:"input"`
	Model           string         `json:"model"`
	InputType       InputType      `json:"input_type,omitempty"`
	EncodingFormat  EncodingFormat `json:"encoding_format,omitempty"`
	Truncation      *bool          `json:"truncation,omitempty"`
	OutputDimension int            `json:"output_dimension,omitempty"`
}

// Data is one vector of the response, T is []float64 or Base64
type Data[T any] struct {
	Object    string `json:"object"`
	Index     int    `json:"index"`
	Embedding T      `json:"embedding"`
}

// EmbeddingResponse is the API response with decoded vectors.
type EmbeddingResponse struct {
	Object string            `json:"object"`
	Data   []Data[[]float64] `json:"data"`
	Model  string            `json:"model"`
	Usage  Usage             `json:"usage"`
}

type Usage struct {
	TotalTokens int `json:"total_tokens"`
}

// Base64 is a base64 encoded vector of little endian float32 values.
type Base64 string

// Decode decodes the vector into float64 values
func (s Base64) Decode() ([]float64, error) {
	decoded, err := base64.StdEncoding.DecodeString(string(s))
	if err != nil {
		return nil, err
	}
	if len(decoded)%4 != 0 {
		return nil, errors.New("invalid base64 encoded vector length")
	}
	ret := make([]float64, len(decoded)/4)
	for i := range ret {
		bits := binary.LittleEndian.Uint32(decoded[i*4 : (i+1)*4])
		ret[i] = float64(math.Float32frombits(bits))
	}
	return ret, nil
}

// APIError is a non 2xx answer of the API
type APIError struct {
	StatusCode int    `json:"-"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("voyageai: %s", http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("voyageai: %s", e.Detail)
}

// CreateEmbeddings returns embeddings for every input of embReq.
func (c *Client) CreateEmbeddings(ctx context.Context, embReq *EmbeddingRequest) (*EmbeddingResponse, error) {
	body := new(bytes.Buffer)
	enc := json.NewEncoder(body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(embReq); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/"+c.opts.Version+"/embeddings", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.opts.APIKey))
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if bs, err := io.ReadAll(resp.Body); err == nil {
			if json.Unmarshal(bs, apiErr) != nil {
				apiErr.Detail = strings.TrimSpace(string(bs))
			}
		}
		return nil, apiErr
	}

	switch embReq.EncodingFormat {
	case EncodingBase64:
		return decodeBase64(resp.Body)
	case EncodingNone:
		ret := new(EmbeddingResponse)
		if err := json.NewDecoder(resp.Body).Decode(ret); err != nil {
			return nil, err
		}
		return ret, nil
	}
	return nil, fmt.Errorf("unsupported encoding format %q", embReq.EncodingFormat)
}

func decodeBase64(r io.Reader) (*EmbeddingResponse, error) {
	var raw struct {
		Object string         `json:"object"`
		Data   []Data[Base64] `json:"data"`
		Model  string         `json:"model"`
		Usage  Usage          `json:"usage"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	ret := &EmbeddingResponse{
		Object: raw.Object,
		Data:   make([]Data[[]float64], 0, len(raw.Data)),
		Model:  raw.Model,
		Usage:  raw.Usage,
	}
	for _, d := range raw.Data {
		values, err := d.Embedding.Decode()
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", d.Index, err)
		}
		ret.Data = append(ret.Data, Data[[]float64]{Object: d.Object, Index: d.Index, Embedding: values})
	}
	return ret, nil
}
