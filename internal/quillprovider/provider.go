// Package quillprovider is the HTTP client implementation of
// internal/quill.Provider: it asks the Quill transcript service whether
// a meeting's transcript has landed yet.
//
// Grounded on internal/embeddings.Client's JSON-over-HTTP request/decode
// shape (a single POST, a narrow typed response, httpkit for transport).
package quillprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dailyos/dailyos/internal/httpkit"
)

// Config points the client at a Quill deployment.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client implements quill.Provider over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New creates a Client. BaseURL should not have a trailing slash.
func New(cfg Config) *Client {
	return &Client{
		httpClient: httpkit.NewClient(httpkit.WithRetry(2, 0)),
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

type lookupRequest struct {
	MeetingID string `json:"meeting_id"`
}

type lookupResponse struct {
	Found          bool    `json:"found"`
	TranscriptPath string  `json:"transcript_path"`
	QuillMeetingID string  `json:"quill_meeting_id"`
	Confidence     float64 `json:"confidence"`
}

// Lookup asks Quill whether meetingID has a matched transcript yet.
func (c *Client) Lookup(ctx context.Context, meetingID string) (bool, string, string, float64, error) {
	body, err := json.Marshal(lookupRequest{MeetingID: meetingID})
	if err != nil {
		return false, "", "", 0, fmt.Errorf("quillprovider: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcripts/lookup", bytes.NewReader(body))
	if err != nil {
		return false, "", "", 0, fmt.Errorf("quillprovider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, "", "", 0, fmt.Errorf("quillprovider: lookup %s: %w", meetingID, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode == http.StatusNotFound {
		return false, "", "", 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, "", "", 0, fmt.Errorf("quillprovider: lookup %s: %s", meetingID, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, "", "", 0, fmt.Errorf("quillprovider: decode response: %w", err)
	}
	return out.Found, out.TranscriptPath, out.QuillMeetingID, out.Confidence, nil
}
