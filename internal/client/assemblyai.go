package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hguangin/soultalk-tool/internal/config"
	"github.com/hguangin/soultalk-tool/internal/model"
)

// AssemblyAIClient transcribes audio through the AssemblyAI v2 API.
// Transcripts are submitted, then polled until they settle.
type AssemblyAIClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	maxWait      time.Duration
}

// transcriptSubmission is the create-transcript request body
type transcriptSubmission struct {
	AudioURL          string `json:"audio_url"`
	LanguageCode      string `json:"language_code,omitempty"`
	LanguageDetection bool   `json:"language_detection,omitempty"`
}

// transcriptStatus is both the create response and the poll response
type transcriptStatus struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Text         string         `json:"text"`
	Error        string         `json:"error"`
	LanguageCode string         `json:"language_code"`
	Words        []assemblyWord `json:"words"`
}

type assemblyWord struct {
	Text  string `json:"text"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
}

// NewAssemblyAIClient creates a new AssemblyAI API client
func NewAssemblyAIClient(cfg *config.AssemblyAIConfig) *AssemblyAIClient {
	return &AssemblyAIClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: 3 * time.Second,
		maxWait:      10 * time.Minute,
	}
}

// Transcribe submits the audio URL and polls until the transcript settles.
func (c *AssemblyAIClient) Transcribe(ctx context.Context, audioURL, language string) (*model.Transcript, error) {
	sub := transcriptSubmission{AudioURL: audioURL}
	if language != "" {
		sub.LanguageCode = language
	} else {
		sub.LanguageDetection = true
	}

	var created transcriptStatus
	if err := c.post(ctx, "/v2/transcript", sub, &created); err != nil {
		return nil, err
	}

	final, err := c.pollTranscript(ctx, created.ID)
	if err != nil {
		return nil, err
	}

	words := make([]model.Word, 0, len(final.Words))
	for _, fw := range final.Words {
		words = append(words, model.Word{
			Text:    fw.Text,
			StartMs: fw.Start,
			EndMs:   fw.End,
		})
	}

	return &model.Transcript{
		FullText: final.Text,
		Words:    words,
		Language: final.LanguageCode,
	}, nil
}

// pollTranscript polls for transcript completion
func (c *AssemblyAIClient) pollTranscript(ctx context.Context, id string) (*transcriptStatus, error) {
	deadline := time.Now().Add(c.maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		var result transcriptStatus
		if err := c.get(ctx, "/v2/transcript/"+id, &result); err != nil {
			log.Printf("[AssemblyAI API] Poll transcript #%d (id=%s): error: %v", attempt, id, err)
			return nil, err
		}

		log.Printf("[AssemblyAI API] Poll transcript #%d (id=%s): status: %s", attempt, id, result.Status)

		switch result.Status {
		case "completed":
			return &result, nil
		case "error":
			return nil, fmt.Errorf("transcription failed: %s", result.Error)
		}

		select {
		case <-ctx.Done():
			log.Printf("[AssemblyAI API] Poll transcript (id=%s): context cancelled", id)
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
			continue
		}
	}

	return nil, fmt.Errorf("transcription timed out after %v", c.maxWait)
}

// post sends a POST request with JSON body
func (c *AssemblyAIClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *AssemblyAIClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *AssemblyAIClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	log.Printf("[AssemblyAI API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[AssemblyAI API] ✗ %s %s: request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[AssemblyAI API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError("assemblyai", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *AssemblyAIClient) IsConfigured() bool {
	return c.apiKey != ""
}
