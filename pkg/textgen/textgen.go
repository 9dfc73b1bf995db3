// Package textgen генерирует тексты комментариев через LLM.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"atg_engage/models"
	"atg_engage/pkg/orchestrator"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// tonePrompts: промпты по тону комментария.
var tonePrompts = map[models.Tone]string{
	models.TonePositive: "Напиши короткий положительный комментарий на русском языке для Telegram-поста, выражающий одобрение или поддержку.",
	models.ToneNeutral:  "Напиши короткий нейтральный комментарий на русском языке, без явной эмоциональной окраски, подходящий под Telegram-пост.",
	models.ToneQuestion: "Напиши короткий вопросительный комментарий на русском языке, который мог бы быть задан в ответ на Telegram-пост.",
	models.ToneCritical: "Напиши короткий критический комментарий на русском языке, но без агрессии, адекватный под Telegram-пост.",
}

// Config: параметры подключения к OpenAI-совместимому API.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// Generator реализует orchestrator.TextGenerator поверх llms.Model.
type Generator struct {
	llm         llms.Model
	maxTokens   int
	temperature float64
}

var _ orchestrator.TextGenerator = (*Generator)(nil)

// New создаёт генератор на базе OpenAI.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is empty")
	}
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return NewWithModel(llm, cfg.MaxTokens, cfg.Temperature), nil
}

// NewWithModel создаёт генератор поверх произвольной модели.
func NewWithModel(llm llms.Model, maxTokens int, temperature float64) *Generator {
	if maxTokens <= 0 {
		maxTokens = 60
	}
	if temperature <= 0 {
		temperature = 0.9
	}
	return &Generator{llm: llm, maxTokens: maxTokens, temperature: temperature}
}

// Prompt собирает промпт: CustomPrompt заменяет промпт тона, текст поста добавляется всегда.
func Prompt(req orchestrator.TextRequest) string {
	prompt := strings.TrimSpace(req.CustomPrompt)
	if prompt == "" {
		var ok bool
		if prompt, ok = tonePrompts[req.Tone]; !ok {
			prompt = tonePrompts[models.ToneNeutral]
		}
	}
	if content := strings.TrimSpace(req.PostContent); content != "" {
		prompt += "\n\nТекст поста:\n" + content
	}
	return prompt + "\n\nОтветь только текстом комментария."
}

// Generate запрашивает комментарий у модели. Пустой ответ считается сбоем генерации.
func (g *Generator) Generate(ctx context.Context, req orchestrator.TextRequest) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, Prompt(req),
		llms.WithMaxTokens(g.maxTokens),
		llms.WithTemperature(g.temperature),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Warn().Err(err).Str("tone", string(req.Tone)).Msg("[OPENAI] ошибка генерации комментария")
		return "", fmt.Errorf("%w: %v", orchestrator.ErrGenerationFailed, err)
	}
	text := cleanup(out)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", orchestrator.ErrGenerationFailed)
	}
	return text, nil
}

// cleanup убирает пробелы и кавычки, в которые модели часто заключают ответ.
func cleanup(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"«", "»"}, {"'", "'"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			s = strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
