package ai

import (
	"context"
	"errors"
	"strings"
)

const anthropicBaseURL = "https://api.anthropic.com/v1"

type AnthropicClient struct {
	httpClient
}

// NewAnthropicClient builds a client authenticated with apiKey.
func NewAnthropicClient(apiKey string, opts ...Option) *AnthropicClient {
	return &AnthropicClient{httpClient: newHTTPClient(apiKey, anthropicBaseURL, opts)}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicMsgReq struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMsgResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, ErrMissingAPIKey
	}

	payload := anthropicMsgReq{Model: req.Model, MaxTokens: req.MaxTokens, System: req.SystemPrompt}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = defaultMaxTokens
	}
	for _, m := range req.Messages {
		var blocks []anthropicBlock
		// images go first, as the messages API recommends
		if m.HasImage() {
			mime := m.ImageMIME
			if mime == "" {
				mime = "image/jpeg"
			}
			blocks = append(blocks, anthropicBlock{
				Type:   "image",
				Source: &anthropicSource{Type: "base64", MediaType: mime, Data: m.ImageBase64},
			})
		}
		if m.Text != "" {
			blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Text})
		}
		payload.Messages = append(payload.Messages, anthropicMessage{Role: string(m.Role), Content: blocks})
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}
	var r anthropicMsgResp
	if err := c.postJSON(ctx, c.Name(), "/messages", headers, payload, &r); err != nil {
		return Response{}, err
	}
	if r.StopReason == "refusal" {
		return Response{}, ErrContentRefused
	}
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	if sb.Len() == 0 {
		return Response{}, errors.New("anthropic: no content")
	}
	return Response{
		Text:      sb.String(),
		TokensIn:  r.Usage.InputTokens,
		TokensOut: r.Usage.OutputTokens,
	}, nil
}
