package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// TikToken provides accurate token counting using the tiktoken library,
// which implements the tokenization schemes used by OpenAI models.
// Model names are resolved with tiktoken's model table first, then as raw
// encoding names such as "cl100k_base".
type TikToken struct {
	mu       sync.RWMutex
	encoders map[string]*tiktoken.Tiktoken
}

var _ Tokenizer = (*TikToken)(nil)

func NewTikToken() *TikToken {
	return &TikToken{
		encoders: make(map[string]*tiktoken.Tiktoken),
	}
}

// UseOfflineBPE makes tiktoken load its ranks from the embedded files
// instead of downloading them. It affects every TikToken in the process.
func UseOfflineBPE() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

func (t *TikToken) encoder(model string) (*tiktoken.Tiktoken, error) {
	t.mu.RLock()
	tke, ok := t.encoders[model]
	t.mu.RUnlock()
	if ok {
		return tke, nil
	}
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		var encErr error
		if tke, encErr = tiktoken.GetEncoding(model); encErr != nil {
			return nil, &UnsupportedModelError{Model: model, Err: err}
		}
	}
	t.mu.Lock()
	t.encoders[model] = tke
	t.mu.Unlock()
	return tke, nil
}

func (t *TikToken) Count(text string, model string) (int, error) {
	ids, err := t.Encode(text, model)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (t *TikToken) Encode(text string, model string) ([]int, error) {
	tke, err := t.encoder(model)
	if err != nil {
		return nil, err
	}
	return tke.Encode(text, nil, nil), nil
}

func (t *TikToken) Decode(ids []int, model string) (string, error) {
	tke, err := t.encoder(model)
	if err != nil {
		return "", err
	}
	return tke.Decode(ids), nil
}
