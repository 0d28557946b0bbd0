package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vgMonky/redbud/internal/conversation"
	"github.com/vgMonky/redbud/internal/model"
)

// Client is a minimal chat completions client for OpenAI-compatible endpoints
// (DeepSeek by default).
type Client struct {
	apiKey     string
	url        string
	model      string
	httpClient *http.Client
}

// NewClient creates a chat completions client.
func NewClient(apiKey, url, modelName string, timeout time.Duration) *Client {
	return &Client{
		apiKey: apiKey,
		url:    url,
		model:  modelName,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChatCompletion sends a chat completion request and returns the reply plus
// token usage.
func (c *Client) ChatCompletion(messages []conversation.Message) (model.CompletionResponse, error) {
	wire := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	reqBody := chatRequest{
		Model:    c.model,
		Messages: wire,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("failed reading provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		truncated := truncate(string(body), 400)
		return model.CompletionResponse{}, fmt.Errorf("provider non-success status=%d body=%s", resp.StatusCode, truncated)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		truncated := truncate(string(body), 400)
		return model.CompletionResponse{}, fmt.Errorf("failed to parse provider response: %s", truncated)
	}

	result := model.CompletionResponse{}
	if parsed.Usage != nil {
		result.InputTokens = parsed.Usage.PromptTokens
		result.OutputTokens = parsed.Usage.CompletionTokens
	}

	if len(parsed.Choices) == 0 {
		result.Content = "(empty model response)"
		return result, nil
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		result.Content = "(empty model response)"
		return result, nil
	}
	result.Content = content
	return result, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
