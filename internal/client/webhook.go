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

// WebhookClient posts job lifecycle events to a configured HTTP endpoint.
// Without a URL every call is a no-op.
type WebhookClient struct {
	httpClient *http.Client
	url        string
	token      string
}

// WebhookEvent is the JSON body delivered for each notification.
type WebhookEvent struct {
	Event       model.Event        `json:"event"`
	JobID       string             `json:"jobId"`
	Name        string             `json:"name,omitempty"`
	Kind        model.PipelineKind `json:"kind"`
	Status      model.JobStatus    `json:"status"`
	Error       string             `json:"error,omitempty"`
	DocumentURL string             `json:"documentUrl,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// NewWebhookClient creates a new webhook notification client
func NewWebhookClient(cfg *config.WebhookConfig) *WebhookClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url:   cfg.URL,
		token: cfg.Token,
	}
}

// Notify delivers one event. The caller decides whether a failure matters.
func (c *WebhookClient) Notify(ctx context.Context, event *WebhookEvent) error {
	if !c.IsConfigured() {
		return nil
	}

	bodyBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Printf("[Webhook] → POST %s (%s %s)", c.url, event.Event, event.JobID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError("webhook", resp.StatusCode, string(respBody))
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *WebhookClient) IsConfigured() bool {
	return c.url != ""
}
