package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultOpenAIURL = "https://api.openai.com/v1/responses"

// OpenAI calls the OpenAI Responses API and asks for JSON-only output.
type OpenAI struct {
	apiKey          string
	model           string
	apiURL          string
	maxOutputTokens int
	httpClient      *http.Client
}

// NewOpenAI creates a Responses API client. The HTTP timeout belongs to the
// caller's context, not the client.
func NewOpenAI(opts Options) *OpenAI {
	url := opts.BaseURL
	if url == "" {
		url = defaultOpenAIURL
	}
	maxTokens := opts.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &OpenAI{
		apiKey:          opts.APIKey,
		model:           opts.Model,
		apiURL:          url,
		maxOutputTokens: maxTokens,
		httpClient:      &http.Client{Timeout: 5 * time.Minute},
	}
}

func (o *OpenAI) Name() string { return "openai" }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiPayload struct {
	Model           string          `json:"model"`
	Input           []openaiMessage `json:"input"`
	Text            map[string]any  `json:"text"`
	Reasoning       map[string]any  `json:"reasoning"`
	MaxOutputTokens int             `json:"max_output_tokens"`
}

type openaiResponse struct {
	Status            string `json:"status"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

// Generate sends the prompt and returns the raw JSON document the model
// produced. An incomplete response due to max_output_tokens is retried once
// with a quadrupled budget.
func (o *OpenAI) Generate(ctx context.Context, req *Request) (json.RawMessage, error) {
	payload := openaiPayload{
		Model: o.model,
		Input: []openaiMessage{
			{Role: "system", Content: req.SystemRole},
			{Role: "user", Content: req.PromptText()},
		},
		// JSON-only output, low verbosity/effort to keep latency down.
		Text:            map[string]any{"format": map[string]any{"type": "json_object"}, "verbosity": "low"},
		Reasoning:       map[string]any{"effort": "low"},
		MaxOutputTokens: o.maxOutputTokens,
	}

	data, err := o.post(ctx, payload)
	if err != nil {
		return nil, err
	}
	if data.Status == "incomplete" && data.IncompleteDetails != nil &&
		data.IncompleteDetails.Reason == "max_output_tokens" {
		payload.MaxOutputTokens = o.maxOutputTokens * 4
		if data, err = o.post(ctx, payload); err != nil {
			return nil, err
		}
	}

	text := data.OutputText
	if text == "" {
		text = extractOutputText(data)
	}
	if text == "" {
		return nil, fmt.Errorf("openai: no output text in response")
	}
	return json.RawMessage(text), nil
}

func (o *OpenAI) post(ctx context.Context, payload openaiPayload) (*openaiResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var data openaiResponse
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if data.Error != nil {
		return nil, fmt.Errorf("openai: %s", data.Error.Message)
	}
	return &data, nil
}

func extractOutputText(data *openaiResponse) string {
	for _, item := range data.Output {
		for _, content := range item.Content {
			if content.Type == "output_text" && content.Text != "" {
				return content.Text
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
