package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fewShotRequest() Request {
	return Request{
		Model:        "test-model",
		SystemPrompt: "You are a flashcard creator.",
		Messages: []Message{
			{Role: RoleUser, Text: "Example page"},
			{Role: RoleAssistant, Text: "<Question>Q</Question><Answer>A</Answer>"},
			{Role: RoleUser, Text: "Create flashcards from this page.", ImageBase64: "aW1n", ImageMIME: "image/jpeg"},
		},
	}
}

func TestOpenAIClient_Do(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"<Question>1</Question>"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", WithBaseURL(srv.URL))
	resp, err := c.Do(context.Background(), fewShotRequest())
	require.NoError(t, err)
	assert.Equal(t, "<Question>1</Question>", resp.Text)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 3, resp.TokensOut)

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
	last := msgs[3].(map[string]any)["content"].([]any)
	require.Len(t, last, 2)
	img := last[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/jpeg;base64,aW1n", img["url"])
	assert.EqualValues(t, defaultMaxTokens, got["max_tokens"])
}

func TestOpenAIClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"rate limited", http.StatusTooManyRequests, `{}`, func(t *testing.T, err error) {
			assert.True(t, IsRateLimited(err))
		}},
		{"server error", http.StatusBadGateway, `upstream`, func(t *testing.T, err error) {
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, http.StatusBadGateway, se.StatusCode)
			assert.Equal(t, "upstream", se.Body)
		}},
		{"refusal", http.StatusOK, `{"choices":[{"message":{"refusal":"no"},"finish_reason":"stop"}]}`, func(t *testing.T, err error) {
			assert.True(t, IsContentRefused(err))
		}},
		{"no choices", http.StatusOK, `{"choices":[]}`, func(t *testing.T, err error) {
			assert.EqualError(t, err, "openai: no choices")
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			_, err := NewOpenAIClient("k", WithBaseURL(srv.URL)).Do(context.Background(), fewShotRequest())
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestClients_MissingKey(t *testing.T) {
	_, err := NewOpenAIClient("").Do(context.Background(), fewShotRequest())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	_, err = NewAnthropicClient("").Do(context.Background(), fewShotRequest())
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestAnthropicClient_Do(t *testing.T) {
	var got anthropicMsgReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"<Question>a</Question>"},{"type":"text","text":"<Answer>b</Answer>"}],"stop_reason":"end_turn","usage":{"input_tokens":5,"output_tokens":7}}`))
	}))
	defer srv.Close()

	resp, err := NewAnthropicClient("ak-test", WithBaseURL(srv.URL)).Do(context.Background(), fewShotRequest())
	require.NoError(t, err)
	assert.Equal(t, "<Question>a</Question><Answer>b</Answer>", resp.Text)
	assert.Equal(t, 5, resp.TokensIn)

	assert.Equal(t, "You are a flashcard creator.", got.System)
	require.Len(t, got.Messages, 3)
	last := got.Messages[2]
	require.Len(t, last.Content, 2)
	assert.Equal(t, "image", last.Content[0].Type)
	assert.Equal(t, "aW1n", last.Content[0].Source.Data)
	assert.Equal(t, "text", last.Content[1].Type)
}

func TestAnthropicClient_Refusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[],"stop_reason":"refusal"}`))
	}))
	defer srv.Close()
	_, err := NewAnthropicClient("k", WithBaseURL(srv.URL)).Do(context.Background(), fewShotRequest())
	assert.ErrorIs(t, err, ErrContentRefused)
}

func TestMessage_DataURL(t *testing.T) {
	assert.Equal(t, "data:image/jpeg;base64,QQ==", Message{ImageBase64: "QQ=="}.DataURL())
	assert.Equal(t, "data:image/png;base64,QQ==", Message{ImageBase64: "QQ==", ImageMIME: "image/png"}.DataURL())
}
