package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	webFetchUserAgent = "maxagent/1.0"
	maxFetchBodyBytes = 2 * 1024 * 1024
	defaultFetchChars = 20000
)

// WebFetchTool fetches a URL and returns its visible text.
type WebFetchTool struct {
	client *http.Client
}

// NewWebFetchTool creates a fetch tool with a 30 second timeout.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the tool name
func (t *WebFetchTool) Name() string {
	return "web_fetch"
}

// Description returns the tool description
func (t *WebFetchTool) Description() string {
	return `Fetch a URL over HTTP(S). HTML is reduced to its visible text; other content types pass through.
Set raw=true to skip HTML extraction.`
}

// Schema returns the JSON schema for the tool input
func (t *WebFetchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {
				"type": "string",
				"description": "The http or https URL to fetch"
			},
			"raw": {
				"type": "boolean",
				"description": "Return the raw body without HTML text extraction (default: false)"
			},
			"max_chars": {
				"type": "integer",
				"description": "Maximum characters of content to return (default: 20000)"
			}
		},
		"required": ["url"]
	}`)
}

// WebFetchInput represents the tool input
type WebFetchInput struct {
	URL      string `json:"url"`
	Raw      bool   `json:"raw"`
	MaxChars int    `json:"max_chars"`
}

// Execute fetches the URL
func (t *WebFetchTool) Execute(ctx context.Context, input json.RawMessage) (*Execution, error) {
	var in WebFetchInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &Execution{Error: fmt.Sprintf("Invalid input: %v", err)}, nil
	}
	if in.URL == "" {
		return &Execution{Error: "Error: url is required"}, nil
	}
	if in.MaxChars <= 0 {
		in.MaxChars = defaultFetchChars
	}

	u, err := url.Parse(in.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return &Execution{Error: fmt.Sprintf("Error: invalid URL %q, only http and https are supported", in.URL)}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error building request: %v", err)}, nil
	}
	req.Header.Set("User-Agent", webFetchUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error fetching %s: %v", in.URL, err)}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodyBytes))
	if err != nil {
		return &Execution{Error: fmt.Sprintf("Error reading response from %s: %v", in.URL, err)}, nil
	}

	if resp.StatusCode >= 400 {
		return &Execution{Error: fmt.Sprintf("HTTP %d fetching %s", resp.StatusCode, in.URL)}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	text := string(body)
	if !in.Raw {
		text = ExtractVisibleText(body, contentType)
	}
	if len(text) > in.MaxChars {
		text = text[:in.MaxChars] + fmt.Sprintf("\n... [truncated %d of %d chars]", len(text)-in.MaxChars, len(text))
	}

	header := fmt.Sprintf("HTTP %d %s (%d bytes)", resp.StatusCode, strings.TrimSpace(contentType), len(body))
	return &Execution{Success: true, Output: header + "\n\n" + text}, nil
}
