package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examreport/internal/llm/prompts"

	openai "github.com/sashabaranov/go-openai"
)

// Draft is an LLM-written guardian notice.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
	tone  prompts.Tone
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName, tone string) (*Client, error) {
	if err := prompts.Load(); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if !prompts.IsValidTone(tone) {
		return nil, fmt.Errorf("invalid tone %q", tone)
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
		tone:  prompts.Tone(tone),
	}, nil
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// DraftNotice asks the LLM for a notice subject line and body.
func (c *Client) DraftNotice(ctx context.Context, data prompts.NoticeData) (*Draft, error) {
	systemPrompt, err := prompts.BuildDraftPrompt(c.tone, data)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Write the message."},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseDraft(raw)
}

func parseDraft(raw string) (*Draft, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	d.Subject = strings.TrimSpace(d.Subject)
	d.Body = strings.TrimSpace(d.Body)
	if d.Body == "" {
		return nil, fmt.Errorf("LLM response has an empty body")
	}
	return &d, nil
}
