// Package collab defines the external collaborator interfaces a
// workflow step may call through: Agent (LLM invocation), Prompt
// (templated prompt construction with response validation), Cache
// (memoized tool/prompt results), and MCP (tool discovery/invocation
// over the Model Context Protocol). None are implemented here —
// callers supply their own concrete types; the core only depends on
// these contracts so that step/task bodies can be written against
// them without the core importing any specific agent SDK, cache
// backend, or transport.
package collab

import (
	"context"
	"time"
)

// Agent is a conversational LLM endpoint a step can prompt, mirroring
// the teacher's pkg/agent.Agent shape (context-first methods, a
// distinct streaming/metadata path) generalized to an interface so the
// core never imports a concrete LLM SDK.
type Agent interface {
	ID() string
	Name() string

	// Prompt sends p to the agent and returns its validated response.
	Prompt(ctx context.Context, p Prompt) (Response, error)

	// PromptWithMetadata is Prompt plus usage/latency metadata for
	// callers that need to record cost or trace spans.
	PromptWithMetadata(ctx context.Context, p Prompt) (Response, Metadata, error)

	// Reflect re-prompts the agent to revise a prior response, used by
	// the reflection-guided retry path in pkg/reflection.
	Reflect(ctx context.Context, p Prompt) (Response, error)
}

// Prompt renders the message sent to an Agent and validates its
// response against a caller-defined shape.
type Prompt interface {
	ID() string
	BuildUserMessage() string
	GetData() map[string]any
	GetResponseFormat() ResponseFormat
	ValidateResponse(response any) error
}

// ResponseFormat tells the Agent how the response should be shaped
// (free text, a JSON schema, or a caller-defined structured type).
type ResponseFormat struct {
	Kind   string
	Schema map[string]any
}

// Response is an Agent's answer to a Prompt.
type Response struct {
	Content   string
	Data      map[string]any
	ToolCalls []ToolCall
}

// ToolCall is a tool invocation an Agent's response requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Metadata carries token usage and latency for a Prompt/PromptWithMetadata call.
type Metadata struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Latency      time.Duration
}

// Cache memoizes the result of an expensive or side-effecting call (a
// tool invocation, a prompt completion) keyed by a caller-chosen
// string, with bulk invalidation for cache-busting a related group of
// keys at once.
type Cache interface {
	Get(ctx context.Context, key string) (value any, ok bool, err error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	BustPrefix(ctx context.Context, prefix string) error
	Clear(ctx context.Context) error
	Metrics() CacheMetrics
}

// CacheMetrics reports a Cache's hit/miss counters.
type CacheMetrics struct {
	Hits   int64
	Misses int64
}

// MCP discovers and invokes tools exposed by a Model Context Protocol
// server, mirroring the teacher's sdk.Tool (Name/Description/
// InputSchema/Execute) generalized to a registry-and-transport
// interface.
type MCP interface {
	RegisterServer(ctx context.Context, name string, endpoint string) error
	RegisterToolExecutor(name string, exec ToolExecutor) error
	GetTools(ctx context.Context) ([]ToolDescriptor, error)
	ExecuteTool(ctx context.Context, name string, input map[string]any) (ToolResult, error)
}

// ToolExecutor runs a single locally-registered tool, the function
// form callers plug into RegisterToolExecutor.
type ToolExecutor func(ctx context.Context, input map[string]any) (ToolResult, error)

// ToolDescriptor describes one tool an MCP server exposes.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolResult is what a tool invocation returns.
type ToolResult struct {
	Content []ContentBlock
	IsError bool
}

// ContentBlock is one piece of a ToolResult's content, allowing mixed
// text/structured payloads in a single response.
type ContentBlock struct {
	Type string
	Text string
	Data map[string]any
}
