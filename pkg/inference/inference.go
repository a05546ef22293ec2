// Package inference talks to an OpenAI-compatible chat completion API.
//
// The default endpoints follow OpenWebUI (/api/chat/completions and
// /api/models); set ChatEndpoint and ModelsEndpoint for other servers
// such as Ollama or vLLM.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithBaseURL("http://localhost:3000"),
//	    inference.WithModel("llama3.1:8b"),
//	)
//	defer client.Close()
//
//	if err := client.Health(ctx); err != nil {
//	    return err
//	}
//
//	reply, _ := inference.AsCompleter(client).GetResponse(ctx, []inference.Message{
//	    inference.NewSystemMessage("You are a robot dog."),
//	    inference.NewUserMessage("Sit!"),
//	})
package inference

import (
	"context"
	"encoding/json"
)

// Provider is the chat inference interface.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks connectivity and that the configured model is served.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Completer turns a conversation into the assistant's reply text.
type Completer interface {
	GetResponse(ctx context.Context, messages []Message) (string, error)
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64

	// TopP controls nucleus sampling.
	TopP float64
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Usage tracks token consumption.
	Usage Usage

	// Model used for generation.
	Model string

	// LatencyMs is the response time in milliseconds.
	LatencyMs int64
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ReplyText renders a response as the text the command loop works on.
// Native tool calls are re-encoded as {"tool_calls":[...]} so they parse
// the same way as a JSON reply written by the model itself.
func ReplyText(resp *ChatResponse) string {
	if len(resp.Message.ToolCalls) == 0 {
		return resp.Message.Content
	}

	type function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}
	type call struct {
		ID       string   `json:"id,omitempty"`
		Type     string   `json:"type"`
		Function function `json:"function"`
	}
	calls := make([]call, len(resp.Message.ToolCalls))
	for i, tc := range resp.Message.ToolCalls {
		calls[i] = call{ID: tc.ID, Type: "function", Function: function{Name: tc.Name, Arguments: tc.Arguments}}
	}
	data, err := json.Marshal(map[string]any{"tool_calls": calls})
	if err != nil {
		return resp.Message.Content
	}
	return string(data)
}

// AsCompleter adapts a Provider to the Completer interface.
func AsCompleter(p Provider) Completer {
	return completer{p: p}
}

type completer struct {
	p Provider
}

func (c completer) GetResponse(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.p.Chat(ctx, &ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return ReplyText(resp), nil
}
