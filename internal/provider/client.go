// Package provider contains the HTTP client for the external
// research/generation service and the health gate guarding job starts.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client communicates with the content/research provider over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given provider base URL. Callers
// bound individual requests through their context; the underlying client
// carries no global timeout.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// CallError is a non-2xx response from the provider. Body carries the raw
// response text verbatim; it becomes the agent's lastError message.
type CallError struct {
	StatusCode int
	Body       string
}

func (e *CallError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return e.Body
}

// HealthStatus mirrors the JSON returned by GET /health. Each entry
// reports one of the provider's sub-dependencies.
type HealthStatus struct {
	Services map[string]bool `json:"services"`
}

// Health fetches the provider's readiness report. A reachable endpoint
// with a 200 status is not sufficient for healthiness; the gate inspects
// the returned services map.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("creating health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, fmt.Errorf("health: unexpected status %d", resp.StatusCode)
	}

	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("decoding health response: %w", err)
	}
	return hs, nil
}

// ResearchRequest is the JSON body for POST /research.
type ResearchRequest struct {
	Topic        string `json:"topic"`
	WordCount    int    `json:"wordCount"`
	Instructions string `json:"instructions"`
}

// ResearchResult is the JSON returned by POST /research. SourceID is the
// provider-issued vector reference under which the raw research material
// was indexed.
type ResearchResult struct {
	Content     string `json:"content"`
	SourceID    string `json:"sourceId"`
	RawResearch string `json:"rawResearch"`
}

// Research runs the provider's research/generation job. A non-2xx
// response is returned as a *CallError carrying the raw body.
func (c *Client) Research(ctx context.Context, reqBody ResearchRequest) (ResearchResult, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return ResearchResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/research", bytes.NewReader(body))
	if err != nil {
		return ResearchResult{}, fmt.Errorf("creating research request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ResearchResult{}, fmt.Errorf("research request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return ResearchResult{}, &CallError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var result ResearchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ResearchResult{}, fmt.Errorf("decoding research response: %w", err)
	}
	return result, nil
}

// titleRequest is the JSON body for POST /generate-title.
type titleRequest struct {
	Content      string `json:"content"`
	Topic        string `json:"topic"`
	Instructions string `json:"instructions"`
}

// titleResponse is the JSON returned by POST /generate-title.
type titleResponse struct {
	Title string `json:"title"`
}

// GenerateTitle asks the provider for an SEO title based on a content
// prefix and the topic. Callers recover locally from any failure here;
// a title sub-call must never fail the overall job.
func (c *Client) GenerateTitle(ctx context.Context, content, topic string) (string, error) {
	body, err := json.Marshal(titleRequest{
		Content:      content,
		Topic:        topic,
		Instructions: "Generate a concise, SEO-friendly title for this content.",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate-title", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating title request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("title request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return "", &CallError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var result titleResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding title response: %w", err)
	}
	if result.Title == "" {
		return "", fmt.Errorf("title: empty response")
	}
	return result.Title, nil
}
