package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/local/bookdigitizer/internal/config"
	"github.com/local/bookdigitizer/internal/metrics"
)

const systemPrompt = `You are a literary scholar and expert text analyst. You receive raw OCR text
extracted from scanned physical books. Your job is to:

1. CLEAN the text: fix OCR errors, broken words, garbled characters, and formatting issues.
   Preserve the original language - do NOT translate.
2. DETECT the language of the writing.
3. EXTRACT metadata: identify title, author (if visible), chapter/section info, and genre.
4. IDENTIFY key themes, literary devices, and notable passages.
5. GENERATE a concise summary of the content.

Always respond in valid JSON with this exact structure:
{
  "cleaned_text": "the corrected full text preserving original language",
  "detected_language": "language name (e.g., English, Arabic, Russian, Japanese)",
  "language_code": "ISO 639-1 code (e.g., en, ar, ru, ja)",
  "metadata": {
    "title": "detected or null",
    "author": "detected or null",
    "chapter": "detected chapter/section name or null",
    "genre": "detected genre or null",
    "estimated_period": "estimated time period of writing or null"
  },
  "themes": ["theme1", "theme2"],
  "key_passages": ["notable quote or passage 1", "notable quote or passage 2"],
  "summary": "a concise summary of the content",
  "writing_style": "description of the writing style",
  "confidence_notes": "any issues or uncertainties about the OCR quality or interpretation"
}`

// OpenAIClient talks to the OpenAI chat completions API with a forced JSON
// response format.
type OpenAIClient struct {
	http *http.Client
	cfg  config.OpenAIConfig
}

func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	return &OpenAIClient{http: &http.Client{Timeout: cfg.Timeout}, cfg: cfg}
}

func (c *OpenAIClient) Name() string { return "openai" }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatReq struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) Structure(ctx context.Context, req Request) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("missing OPENAI_API_KEY")
	}

	userPrompt := fmt.Sprintf(
		"Here is raw OCR text extracted from a scanned book page (OCR confidence: %.2f%%):\n\n---\n%s\n---\n\nPlease clean, analyze, and structure this text.",
		req.Confidence, req.Text,
	)

	payload := openAIChatReq{
		Model: c.cfg.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	payload.ResponseFormat.Type = "json_object"

	body, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.ObserveProvider(c.Name(), c.cfg.Model, time.Since(start))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("openai status %d", resp.StatusCode)
	}

	var r openAIChatResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return "", err
	}
	if len(r.Choices) == 0 {
		return "", errors.New("no choices")
	}
	return r.Choices[0].Message.Content, nil
}
