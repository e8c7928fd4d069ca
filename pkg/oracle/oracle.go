// Package oracle adapts an LLM provider for NPC dialogue, PR feedback, and
// performance rating. Failures are encoded into the reply text so the engine
// can surface them in-fiction instead of aborting the simulation.
package oracle

import "context"

// Turn is one prior exchange in a conversation.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Request describes a single completion call.
type Request struct {
	// AgentName is used in error replies ("Hao Wang connection timed out").
	AgentName   string
	System      string
	History     []Turn
	Input       string
	MaxTokens   int
	Temperature float64
}

// Oracle produces a reply for a request. Implementations never return an
// error; failures are encoded as parenthesized reply text.
type Oracle interface {
	Generate(ctx context.Context, req Request) string
}

// ErrNotInitialized is the reply returned when no provider is configured.
const ErrNotInitialized = "(LLM Client Error: Not Initialized)"

// EmptyReply is returned when the provider answers with no text.
const EmptyReply = "(Received empty response from AI)"
