// Package config loads catalogue-rag settings from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, CATALOGUE_RAG_VECTOR_ENGINE
// sets vector.engine
const EnvPrefix = "CATALOGUE_RAG"

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Chunk      ChunkConfig      `mapstructure:"chunk"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Prompt     PromptConfig     `mapstructure:"prompt"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Session    SessionConfig    `mapstructure:"session"`
	Unanswered UnansweredConfig `mapstructure:"unanswered"`
	S3         S3Config         `mapstructure:"s3"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

type ChunkConfig struct {
	MaxTokens  int    `mapstructure:"max_tokens" validate:"gt=0"`
	Model      string `mapstructure:"model" validate:"required"`
	// OfflineBPE loads tiktoken ranks from embedded files instead of downloading them
	OfflineBPE bool   `mapstructure:"offline_bpe"`
}

type EmbeddingConfig struct {
	Provider          string        `mapstructure:"provider" validate:"oneof=openai cohere gemini voyageai huggingface"`
	Model             string        `mapstructure:"model" validate:"required"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	Dimensions        int           `mapstructure:"dimensions" validate:"gte=0"`
	BatchSize         int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
}

type VectorConfig struct {
	Engine     string        `mapstructure:"engine" validate:"oneof=memory chromem qdrant milvus"`
	Namespace  string        `mapstructure:"namespace" validate:"required"`
	TopK       int           `mapstructure:"top_k" validate:"gt=0"`
	MinScore   float64       `mapstructure:"min_score"`
	Path       string        `mapstructure:"path"`
	Address    string        `mapstructure:"address" validate:"required_if=Engine milvus"`
	Host       string        `mapstructure:"host" validate:"required_if=Engine qdrant"`
	Port       int           `mapstructure:"port"`
	Collection string        `mapstructure:"collection" validate:"required_if=Engine qdrant"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type PromptConfig struct {
	Model        string `mapstructure:"model" validate:"required"`
	MaxTokens    int    `mapstructure:"max_tokens" validate:"gt=0"`
	Introduction string `mapstructure:"introduction"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider" validate:"oneof=openai anthropic none"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url" validate:"omitempty,url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" validate:"gte=0"`
}

type IngestConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gt=0"`
}

type SessionConfig struct {
	MaxMessages int `mapstructure:"max_messages" validate:"gte=0"`
}

type UnansweredConfig struct {
	Path string `mapstructure:"path"`
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("chunk.max_tokens", 1000)
	v.SetDefault("chunk.model", "text-embedding-3-small")
	v.SetDefault("chunk.offline_bpe", true)
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 10)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.retry_delay", time.Second)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.requests_per_second", 0)
	v.SetDefault("vector.engine", "memory")
	v.SetDefault("vector.namespace", "howard-catalogue")
	v.SetDefault("vector.top_k", 20)
	v.SetDefault("vector.min_score", 0)
	v.SetDefault("vector.path", "")
	v.SetDefault("vector.address", "")
	v.SetDefault("vector.host", "")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "catalogue")
	v.SetDefault("vector.api_key", "")
	v.SetDefault("vector.timeout", 30*time.Second)
	v.SetDefault("prompt.model", "gpt-3.5-turbo")
	v.SetDefault("prompt.max_tokens", 4096)
	v.SetDefault("prompt.introduction", "")
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("session.max_messages", 20)
	v.SetDefault("unanswered.path", "unanswered_questions.txt")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
}

// Load reads .env files, then the YAML file at path (optional), then the
// environment. Later sources win.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("loading env files: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports settings the pipeline cannot run with
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Warnings returns settings that load but are likely mistakes.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", c.Embedding.Provider))
	}
	if c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.Chunk.Model != c.Embedding.Model {
		warnings = append(warnings, fmt.Sprintf("chunks are measured with '%s' but embedded with '%s'", c.Chunk.Model, c.Embedding.Model))
	}
	if c.Embedding.Provider == "voyageai" && c.Embedding.Dimensions > 0 {
		warnings = append(warnings, fmt.Sprintf("embedding.dimensions %d is sent to voyageai as output_dimension, set 0 for models with a fixed size", c.Embedding.Dimensions))
	}
	if c.Vector.Engine == "memory" {
		warnings = append(warnings, "vector engine 'memory' does not persist between runs")
	}
	return warnings
}
