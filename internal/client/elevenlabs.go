package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hguangin/soultalk-tool/internal/config"
	"github.com/hguangin/soultalk-tool/internal/model"
)

// ElevenLabsClient transcribes audio with the ElevenLabs speech-to-text API.
// The call is synchronous: the response already carries word timings.
type ElevenLabsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type elevenLabsWord struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Type  string  `json:"type"`
}

type elevenLabsResponse struct {
	LanguageCode string           `json:"language_code"`
	Text         string           `json:"text"`
	Words        []elevenLabsWord `json:"words"`
}

// NewElevenLabsClient creates a new ElevenLabs API client
func NewElevenLabsClient(cfg *config.ElevenLabsConfig) *ElevenLabsClient {
	return &ElevenLabsClient{
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Transcribe sends the audio URL for transcription and converts the reply
// into a word-timed transcript. Spacing tokens are dropped.
func (c *ElevenLabsClient) Transcribe(ctx context.Context, audioURL, language string) (*model.Transcript, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("model_id", c.model)
	_ = w.WriteField("cloud_storage_url", audioURL)
	if language != "" {
		_ = w.WriteField("language_code", language)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	endpoint := c.baseURL + "/v1/speech-to-text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", c.apiKey)

	log.Printf("[ElevenLabs API] → POST %s", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[ElevenLabs API] ✗ POST %s: request failed: %v", endpoint, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[ElevenLabs API] ← %d POST %s", resp.StatusCode, endpoint)

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("elevenlabs", resp.StatusCode, string(respBody))
	}

	var parsed elevenLabsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	words := make([]model.Word, 0, len(parsed.Words))
	for _, pw := range parsed.Words {
		if pw.Type != "" && pw.Type != "word" {
			continue
		}
		words = append(words, model.Word{
			Text:    pw.Text,
			StartMs: int64(pw.Start * 1000),
			EndMs:   int64(pw.End * 1000),
		})
	}

	return &model.Transcript{
		FullText: parsed.Text,
		Words:    words,
		Language: parsed.LanguageCode,
	}, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ElevenLabsClient) IsConfigured() bool {
	return c.apiKey != ""
}
