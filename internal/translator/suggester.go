// Package translator drafts modern Japanese renderings of transcribed
// classical text with an OpenAI-compatible chat model.
package translator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"classics-portal/internal/logger"
	"classics-portal/internal/types"
)

const (
	// DefaultModel is the default chat model for suggestions
	DefaultModel = "gpt-4o"
	// MaxRetries is the maximum number of attempts per suggestion
	MaxRetries = 2
	// BaseRetryDelay is the base delay between attempts
	BaseRetryDelay = 2 * time.Second
	// MaxInputLength caps the page text sent to the model, in runes
	MaxInputLength = 8000
)

const systemPrompt = `あなたは漢文・古典籍の翻訳者です。
与えられた原文を、研究者が読む注釈付き資料向けの自然な現代日本語に訳してください。
固有名詞や書名は原文の表記を保ち、訳文のみを出力してください。説明や前置きは不要です。`

// Generator is the part of an eino chat model used here
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Config configures the chat model behind a Suggester
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Suggester drafts translations for page text
type Suggester struct {
	model      Generator
	modelName  string
	retryDelay time.Duration
}

// NewSuggester creates a Suggester backed by an OpenAI-compatible chat model
func NewSuggester(ctx context.Context, cfg Config) (*Suggester, error) {
	if cfg.APIKey == "" {
		return nil, types.NewAppError(types.ErrConfig, "OpenAI API key is not configured", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	chatModelConfig := &openai.ChatModelConfig{
		Model:  cfg.Model,
		APIKey: cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		chatModelConfig.BaseURL = cfg.BaseURL
	}

	chatModel, err := openai.NewChatModel(ctx, chatModelConfig)
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to create chat model", err)
	}

	logger.Info("translation suggester ready", logger.String("model", cfg.Model), logger.String("baseURL", cfg.BaseURL))
	return NewSuggesterWithModel(chatModel, cfg.Model), nil
}

// NewSuggesterWithModel creates a Suggester on an existing chat model
func NewSuggesterWithModel(gen Generator, modelName string) *Suggester {
	return &Suggester{
		model:      gen,
		modelName:  modelName,
		retryDelay: BaseRetryDelay,
	}
}

// Suggest returns a draft Japanese translation of text
func (s *Suggester) Suggest(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", types.NewAppError(types.ErrInvalidInput, "page text is empty", nil)
	}
	if runes := []rune(text); len(runes) > MaxInputLength {
		logger.Warn("page text truncated for suggestion", logger.Int("runes", len(runes)))
		text = string(runes[:MaxInputLength])
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(text),
	}

	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		reply, err := s.model.Generate(ctx, messages)
		if err == nil {
			out := ""
			if reply != nil {
				out = strings.TrimSpace(reply.Content)
			}
			if out == "" {
				return "", types.NewAppError(types.ErrTranslation, "model returned an empty translation", nil)
			}
			logger.Debug("translation suggested",
				logger.String("model", s.modelName),
				logger.Int("inputRunes", len([]rune(text))),
				logger.Int("outputRunes", len([]rune(out))))
			return out, nil
		}

		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		logger.Warn("translation attempt failed", logger.Int("attempt", attempt), logger.Err(err))
		if attempt < MaxRetries {
			select {
			case <-ctx.Done():
				return "", types.NewAppError(types.ErrTranslation, "translation cancelled", ctx.Err())
			case <-time.After(s.retryDelay * time.Duration(attempt)):
			}
		}
	}
	return "", types.NewAppError(types.ErrTranslation, "translation request failed", lastErr)
}
