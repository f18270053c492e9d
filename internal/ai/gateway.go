// Package ai calls an OpenAI-compatible chat completion endpoint to
// fact-check or discuss passages a reader has highlighted.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/haldvard/lectern/internal/apperr"
	"github.com/haldvard/lectern/internal/models"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"

	// Upstream calls get their own deadline so a stalled completion
	// cannot hold a reader connection open indefinitely.
	requestTimeout = 60 * time.Second

	temperature = 0.7
)

// Config holds the upstream endpoint settings. An empty APIKey disables
// the gateway; BaseURL and Model fall back to the OpenAI defaults.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Gateway produces AI analyses of highlighted passages.
type Gateway struct {
	llm   llms.Model
	model string
}

// New creates a gateway from cfg. Without an API key the gateway is
// disabled: construction succeeds so the reader still works, and analysis
// calls fail with an AIServiceError.
func New(cfg Config) (*Gateway, error) {
	if cfg.APIKey == "" {
		return &Gateway{}, nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("ai: init client: %w", err)
	}
	return &Gateway{llm: llm, model: cfg.Model}, nil
}

// Enabled reports whether an API key was configured.
func (g *Gateway) Enabled() bool {
	return g.llm != nil
}

// Analyze runs the prompt for typ over the selected text and its
// surrounding context and returns the model's answer. Upstream failures
// and a disabled gateway surface as *apperr.AIServiceError.
func (g *Gateway) Analyze(ctx context.Context, typ models.AnalysisType, text, contextText string) (string, error) {
	if g.llm == nil {
		return "", apperr.NewAIServiceError(0, "no API key configured", nil)
	}

	prompt, err := buildPrompt(typ, text, contextText)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
	res, err := g.llm.GenerateContent(ctx, messages, llms.WithTemperature(temperature))
	if err != nil {
		return "", apperr.NewAIServiceError(0, "chat completion failed", err)
	}
	if len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Content) == "" {
		return "", apperr.NewAIServiceError(0, "empty completion", nil)
	}
	return strings.TrimSpace(res.Choices[0].Content), nil
}
