package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Config holds filter service connection settings.
type Config struct {
	BaseURL string // e.g. https://filter.your-ci.example.com
	Token   string // Bearer token fallback when the request carries none
	Project string // e.g. ecosystem-qe
}

// Client calls a remote filter service over HTTP.
type Client struct {
	HTTPClient *http.Client
	Config     Config
}

// NewClient returns a client with the given config. HTTPClient may be set
// afterwards; nil means http.DefaultClient.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &Client{Config: cfg, HTTPClient: http.DefaultClient}
}

// Wire shapes for the filter endpoint.
type filterRequest struct {
	Workflow   string `json:"workflow"`
	TestMatrix string `json:"testMatrix"`
	PRBody     string `json:"prBody,omitempty"`
}

type filterResponse struct {
	TestMatrix        string   `json:"testMatrix"`
	IsTestMatrixEmpty bool     `json:"isTestMatrixEmpty"`
	KeepGoing         bool     `json:"keepGoing"`
	ReenabledIssues   []string `json:"reenabledIssues"`
}

// Filter POSTs the request to /api/v1/<project>/filter and returns the
// service's decision verbatim. Non-2xx responses become errors carrying the
// status and body; there is no retry.
func (c *Client) Filter(ctx context.Context, req Request) (*Outputs, error) {
	body, err := json.Marshal(filterRequest{
		Workflow:   req.Workflow,
		TestMatrix: req.TestMatrix,
		PRBody:     req.PRBody,
	})
	if err != nil {
		return nil, fmt.Errorf("encode filter request: %w", err)
	}
	u := fmt.Sprintf("%s/api/v1/%s/filter", c.Config.BaseURL, c.Config.Project)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	token := req.Token
	if token == "" {
		token = c.Config.Token
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("filter %s: %s", resp.Status, string(respBody))
	}
	var fr filterResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode filter response: %w", err)
	}
	return &Outputs{
		TestMatrix:        fr.TestMatrix,
		IsTestMatrixEmpty: fr.IsTestMatrixEmpty,
		KeepGoing:         fr.KeepGoing,
		ReenabledIssues:   fr.ReenabledIssues,
	}, nil
}
