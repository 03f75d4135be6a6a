package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"harvesttutor/internal/config"
	"harvesttutor/internal/redis"
)

const defaultTimeout = 60 * time.Second

// ErrNotConfigured is returned when the provider has no API key.
var ErrNotConfigured = errors.New("Server configuration error: API_KEY missing. Please check backend/.env")

var ErrEmptyResponse = errors.New("empty response from language model")

// generator is the part of an eino chat model the explainer needs.
type generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Service asks a chat model for farmer-friendly disease guidance.
type Service struct {
	chatModel generator
	timeout   time.Duration
	cache     *redis.Cache
}

// New builds the chat model for provider. A provider without an API key yields a
// Service whose Explain always fails with ErrNotConfigured.
func New(ctx context.Context, provider string, provCfg config.ProviderConfig, timeout time.Duration) (*Service, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if strings.TrimSpace(provCfg.APIKey) == "" {
		return &Service{timeout: timeout}, nil
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if cerr != nil {
			return nil, fmt.Errorf("gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return &Service{chatModel: chatModel, timeout: timeout}, nil
}

// WithCache memoizes explanations per crop, disease and language.
func (s *Service) WithCache(cache *redis.Cache) *Service {
	s.cache = cache
	return s
}

// Configured reports whether a chat model is available.
func (s *Service) Configured() bool {
	return s != nil && s.chatModel != nil
}

// Explain returns guidance text for disease on crop, written in language.
func (s *Service) Explain(ctx context.Context, crop, disease, language string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	key := redis.Key("explain", crop, disease, language)
	return redis.Remember(ctx, s.cache, key, func(ctx context.Context) (string, error) {
		return s.generate(ctx, crop, disease, language)
	})
}

func (s *Service) generate(ctx context.Context, crop, disease, language string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.chatModel.Generate(ctx, buildMessages(crop, disease, language))
	if err != nil {
		return "", fmt.Errorf("generate explanation: %w", err)
	}
	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Content)
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

const systemPrompt = "You are an agricultural expert advisor helping farmers understand crop diseases."

func buildMessages(crop, disease, language string) []*schema.Message {
	userPrompt := fmt.Sprintf(`Crop: %s
Disease: %s
Language: %s

Please provide a comprehensive explanation in %s that includes:

1. **What is this disease?** (Simple explanation using everyday analogies)
2. **Why did this happen?** (Common causes: weather, soil, water, etc.)
3. **How to prevent it?** (Practical prevention tips)
4. **How to treat it now?** (Immediate treatment steps)

IMPORTANT:
- Use VERY SIMPLE language.
- Use local agricultural terms if possible.
- Avoid technical jargon.

Format the response in clear sections.`, crop, disease, language, language)

	return []*schema.Message{
		{
			Role:    schema.System,
			Content: systemPrompt,
		},
		{
			Role:    schema.User,
			Content: userPrompt,
		},
	}
}
