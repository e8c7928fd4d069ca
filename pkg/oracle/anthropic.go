package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// callTimeout bounds a single provider round-trip. Task-level timeouts are
// larger; this keeps one stuck call from eating the whole task budget.
const callTimeout = 60 * time.Second

// AnthropicOracle talks to the Anthropic Messages API.
type AnthropicOracle struct {
	client  anthropic.Client
	model   string
	enabled bool
}

// NewAnthropic builds an oracle for the given key and model. An empty key
// yields a disabled oracle whose replies state the client is uninitialized —
// the simulation still runs, agents just cannot talk.
func NewAnthropic(apiKey, model string) *AnthropicOracle {
	if apiKey == "" {
		slog.Warn("Oracle API key not set, agent dialogue disabled")
		return &AnthropicOracle{enabled: false}
	}
	return &AnthropicOracle{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		enabled: true,
	}
}

// Generate implements Oracle.
func (o *AnthropicOracle) Generate(ctx context.Context, req Request) string {
	if !o.enabled {
		return ErrNotInitialized
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	messages := make([]anthropic.MessageParam, 0, len(req.History)+1)
	for _, turn := range req.History {
		if turn.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(req.Input)))

	resp, err := o.client.Messages.New(callCtx, anthropic.MessageNewParams{
		Model:       anthropic.Model(o.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
		System:      []anthropic.TextBlockParam{{Text: req.System}},
		Messages:    messages,
	})
	if err != nil {
		return encodeError(req.AgentName, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text := block.AsText(); text.Text != "" {
			sb.WriteString(text.Text)
		}
	}
	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		return EmptyReply
	}
	return reply
}

// encodeError maps provider failures to in-fiction reply text.
func encodeError(agentName string, err error) string {
	var apiErr *anthropic.Error
	switch {
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == 429 {
			return fmt.Sprintf("(%s is experiencing high call volume - Rate Limit)", agentName)
		}
		return fmt.Sprintf("(%s experiencing connection difficulties - API Error: %d)", agentName, apiErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("(%s connection timed out)", agentName)
	default:
		return fmt.Sprintf("(%s experienced an unexpected connection error: %T)", agentName, err)
	}
}
