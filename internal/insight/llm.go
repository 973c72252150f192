package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/JakeFAU/seo-auditor/internal/scoring"
)

// GeminiName identifies the Gemini-backed generator.
const GeminiName = "gemini"

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

const outputSpec = `{
  "industry": {"primary": "string", "subCategory": "string", "confidence": "number between 0 and 1", "reasoning": "string"},
  "recommendations": [{"title": "string", "description": "string", "priority": "high|medium|low", "category": "string", "impact": "string"}],
  "keywords": [{"term": "string", "relevance": "number between 0 and 1", "difficulty": "high|medium|low"}],
  "summary": "string"
}`

// GeminiConfig configures the Gemini chat model.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// LLM asks a chat model for insights through an eino prompt template.
type LLM struct {
	name      string
	chatModel model.BaseChatModel
	template  prompt.ChatTemplate
}

// NewGemini builds an LLM generator backed by Google Gemini.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}
	return NewLLM(GeminiName, chatModel), nil
}

// NewLLM wraps any eino chat model.
func NewLLM(name string, chatModel model.BaseChatModel) *LLM {
	return &LLM{
		name:      name,
		chatModel: chatModel,
		template: prompt.FromMessages(schema.FString,
			schema.SystemMessage(`You are an SEO consultant reviewing an automated audit of one web page.
Classify the site's industry, give prioritized recommendations, suggest search keywords and write a two sentence summary.
Return ONLY a JSON object matching this shape, with no markdown or commentary:
{output_spec}`),
			schema.UserMessage(`Audit of {url}:
{audit}`),
		),
	}
}

// Name implements Generator.
func (l *LLM) Name() string { return l.name }

// Generate implements Generator.
func (l *LLM) Generate(ctx context.Context, a scoring.ScoredAudit) (scoring.AIInsights, error) {
	a.AI = nil
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return scoring.AIInsights{}, fmt.Errorf("marshal audit: %w", err)
	}
	messages, err := l.template.Format(ctx, map[string]any{
		"output_spec": outputSpec,
		"url":         a.URL,
		"audit":       string(payload),
	})
	if err != nil {
		return scoring.AIInsights{}, fmt.Errorf("format prompt: %w", err)
	}
	resp, err := l.chatModel.Generate(ctx, messages)
	if err != nil {
		return scoring.AIInsights{}, fmt.Errorf("%s generation failed: %w", l.name, err)
	}
	if resp == nil {
		return scoring.AIInsights{}, fmt.Errorf("%w: empty message", ErrInvalidResponse)
	}
	return ParseResponse(resp.Content)
}

// ParseResponse decodes model output, tolerating a markdown code fence.
func ParseResponse(content string) (scoring.AIInsights, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var out scoring.AIInsights
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return scoring.AIInsights{}, fmt.Errorf("%w: %s", ErrInvalidResponse, err.Error())
	}
	switch {
	case strings.TrimSpace(out.Industry.Primary) == "":
		return scoring.AIInsights{}, fmt.Errorf("%w: missing industry", ErrInvalidResponse)
	case strings.TrimSpace(out.Summary) == "":
		return scoring.AIInsights{}, fmt.Errorf("%w: missing summary", ErrInvalidResponse)
	case out.Industry.Confidence < 0 || out.Industry.Confidence > 1:
		return scoring.AIInsights{}, fmt.Errorf("%w: confidence %v out of range", ErrInvalidResponse, out.Industry.Confidence)
	}
	if out.Recommendations == nil {
		out.Recommendations = []scoring.Recommendation{}
	}
	if out.Keywords == nil {
		out.Keywords = []scoring.Keyword{}
	}
	return out, nil
}
