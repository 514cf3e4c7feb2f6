package llm

import (
	"context"
	"encoding/json"
)

// Provider is the single abstraction the coach uses to talk to a model.
// All generation in the pipeline (extraction, planning, practice,
// evaluation) goes through Generate.
type Provider interface {
	// Generate sends a prompt and returns structured output. When the
	// request carries a Schema the response Content is JSON validated
	// against it; otherwise Content is the raw text.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes one model call.
type Request struct {
	// System sets the model's role and constraints.
	System string

	// Messages is the conversation. Pipeline calls are single-turn, so
	// this usually holds one user message.
	Messages []Message

	// Schema, when set, makes the provider request native structured
	// output and validate the result against it.
	Schema *Schema

	// MaxTokens caps the response length.
	MaxTokens int

	// Temperature controls randomness, 0.0 to 1.0. Zero means
	// deterministic.
	Temperature float64
}

type Message struct {
	Role    Role
	Content string
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema is the JSON Schema the response must conform to.
type Schema struct {
	// Name identifies the schema. Kebab-case, e.g. "skill-extraction".
	Name string

	// Description guides the model toward the expected shape.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the model's output.
type Response struct {
	// Content is validated JSON when a Schema was requested, raw text
	// otherwise.
	Content json.RawMessage

	Usage Usage

	// Model is the actual model that served the request.
	Model string

	// StopReason is normalized to: "end", "max_tokens", "error".
	StopReason string
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
