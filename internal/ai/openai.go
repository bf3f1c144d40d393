package ai

import (
	"context"
	"errors"
)

const openAIBaseURL = "https://api.openai.com/v1"

type OpenAIClient struct {
	httpClient
}

// NewOpenAIClient builds a client authenticated with apiKey.
func NewOpenAIClient(apiKey string, opts ...Option) *OpenAIClient {
	return &OpenAIClient{httpClient: newHTTPClient(apiKey, openAIBaseURL, opts)}
}

func (c *OpenAIClient) Name() string { return "openai" }

type openAIMessage struct {
	Role    string           `json:"role"`
	Content []map[string]any `json:"content"`
}

type openAIChatReq struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, ErrMissingAPIKey
	}

	var messages []openAIMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{
			Role:    "system",
			Content: []map[string]any{{"type": "text", "text": req.SystemPrompt}},
		})
	}
	for _, m := range req.Messages {
		var content []map[string]any
		if m.Text != "" {
			content = append(content, map[string]any{"type": "text", "text": m.Text})
		}
		if m.HasImage() {
			content = append(content, map[string]any{
				"type":      "image_url",
				"image_url": map[string]string{"url": m.DataURL()},
			})
		}
		messages = append(messages, openAIMessage{Role: string(m.Role), Content: content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	payload := openAIChatReq{
		Model:       req.Model,
		Messages:    messages,
		Temperature: 0,
		MaxTokens:   maxTokens,
	}

	var r openAIChatResp
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.postJSON(ctx, c.Name(), "/chat/completions", headers, payload, &r); err != nil {
		return Response{}, err
	}
	if len(r.Choices) == 0 {
		return Response{}, errors.New("openai: no choices")
	}
	choice := r.Choices[0]
	if choice.Message.Refusal != "" || choice.FinishReason == "content_filter" {
		return Response{}, ErrContentRefused
	}

	return Response{
		Text:      choice.Message.Content,
		TokensIn:  r.Usage.PromptTokens,
		TokensOut: r.Usage.CompletionTokens,
	}, nil
}
