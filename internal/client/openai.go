package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hguangin/soultalk-tool/internal/config"
)

// Finish reasons normalized across chat providers.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// ChatResult is a chat completion with its normalized finish reason. A
// FinishLength reply was cut off by the token limit and is usually
// unparseable.
type ChatResult struct {
	Content      string
	FinishReason string
}

// ChatClient talks to any OpenAI-compatible chat completion API. The OpenAI
// and Groq backends share this implementation.
type ChatClient struct {
	httpClient *http.Client
	name       string
	baseURL    string
	apiKey     string
	model      string
}

// ChatMessage represents a message in the chat completion request
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest represents the request body for chat completion
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse represents the response from chat completion
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient creates a chat client against the OpenAI API
func NewOpenAIClient(cfg *config.OpenAIConfig) *ChatClient {
	return newChatClient("openai", cfg.BaseURL, cfg.APIKey, cfg.Model)
}

// NewGroqClient creates a chat client against the Groq API
func NewGroqClient(cfg *config.GroqConfig) *ChatClient {
	return newChatClient("groq", cfg.BaseURL, cfg.APIKey, cfg.Model)
}

func newChatClient(name, baseURL, apiKey, model string) *ChatClient {
	return &ChatClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
	}
}

// ChatCompletion sends a chat completion request and returns the first
// choice with its finish reason.
func (c *ChatClient) ChatCompletion(ctx context.Context, system, user string) (*ChatResult, error) {
	messages := make([]ChatMessage, 0, 2)
	if system != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: user})

	reqBody := ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.2,
		MaxTokens:   4096,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	log.Printf("[%s API] → POST %s", c.name, endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[%s API] ✗ POST %s: request failed: %v", c.name, endpoint, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[%s API] ← %d POST %s", c.name, resp.StatusCode, endpoint)

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(c.name, resp.StatusCode, string(respBody))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := chatResp.Choices[0]
	return &ChatResult{
		Content:      choice.Message.Content,
		FinishReason: normalizeFinish(choice.FinishReason),
	}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ChatClient) IsConfigured() bool {
	return c.apiKey != ""
}

// normalizeFinish folds provider finish reasons into the shared constants.
func normalizeFinish(reason string) string {
	switch strings.ToLower(reason) {
	case "length", "max_tokens", "max_output_tokens":
		return FinishLength
	case "", "stop", "end_turn":
		return FinishStop
	default:
		return strings.ToLower(reason)
	}
}
