package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hguangin/soultalk-tool/internal/config"
	"github.com/hguangin/soultalk-tool/internal/model"
)

// RecordStore defines the interface for the record sheet holding songs and
// voice clips
type RecordStore interface {
	GetRecord(ctx context.Context, recordRef string) (*RagicRecord, error)
	WriteResult(ctx context.Context, recordRef string, write *model.RecordWrite) error
	IsConfigured() bool
}

// RagicClient implements RecordStore for the Ragic HTTP API. Records are
// addressed by row id within the configured form path.
type RagicClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	formPath   string
}

// RagicRecord is one sheet row with the caption-relevant cells lifted out.
// Fields keeps the raw row for anything else.
type RagicRecord struct {
	Ref      string
	Title    string
	Artist   string
	AudioURL string
	Lyrics   string
	Language string
	Fields   map[string]any
}

// NewRagicClient creates a new Ragic record store client
func NewRagicClient(cfg *config.RagicConfig) *RagicClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RagicClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		formPath: strings.Trim(cfg.FormPath, "/"),
	}
}

// GetRecord fetches one row from the sheet
func (c *RagicClient) GetRecord(ctx context.Context, recordRef string) (*RagicRecord, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?api&v=3", c.baseURL, c.formPath, url.PathEscape(recordRef))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	raw := map[string]any{}
	if err := c.doRequest(req, &raw); err != nil {
		return nil, err
	}

	rec := &RagicRecord{
		Ref:      recordRef,
		Title:    stringCell(raw, "Title", "Song Title"),
		Artist:   stringCell(raw, "Artist", "Singer"),
		AudioURL: stringCell(raw, "Audio URL", "MP3 URL"),
		Lyrics:   stringCell(raw, "Lyrics"),
		Language: stringCell(raw, "Language"),
		Fields:   raw,
	}
	return rec, nil
}

// WriteResult writes a pipeline outcome back to a row. The caption document
// is stored as one JSON cell.
func (c *RagicClient) WriteResult(ctx context.Context, recordRef string, write *model.RecordWrite) error {
	fields := map[string]string{
		"Caption Status": write.Status,
	}
	if write.Document != nil {
		data, err := json.Marshal(write.Document)
		if err != nil {
			return fmt.Errorf("failed to encode caption document: %w", err)
		}
		fields["Caption JSON"] = string(data)
		if write.Document.DocumentURL != "" {
			fields["Caption URL"] = write.Document.DocumentURL
		}
	}
	if write.ProcessingTimeMs > 0 {
		fields["Processing Time (ms)"] = strconv.FormatInt(write.ProcessingTimeMs, 10)
	}
	if write.Error != "" {
		fields["Caption Error"] = write.Error
	}
	return c.UpdateRecord(ctx, recordRef, fields)
}

// UpdateRecord writes cells back to a row. Fields are keyed by field name.
func (c *RagicClient) UpdateRecord(ctx context.Context, recordRef string, fields map[string]string) error {
	form := url.Values{}
	for name, value := range fields {
		form.Set(name, value)
	}

	endpoint := fmt.Sprintf("%s/%s/%s?api&v=3", c.baseURL, c.formPath, url.PathEscape(recordRef))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.doRequest(req, nil)
}

// doRequest executes an HTTP request and parses the response
func (c *RagicClient) doRequest(req *http.Request, result any) error {
	req.Header.Set("Authorization", "Basic "+c.apiKey)

	log.Printf("[Ragic API] → %s %s", req.Method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Ragic API] ✗ %s %s: request failed: %v", req.Method, req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Ragic API] ← %d %s %s", resp.StatusCode, req.Method, req.URL.String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError("ragic", resp.StatusCode, string(respBody))
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *RagicClient) IsConfigured() bool {
	return c.apiKey != "" && c.formPath != ""
}

// stringCell returns the first non-empty string cell among the given names.
func stringCell(raw map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := raw[name]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
