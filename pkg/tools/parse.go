package tools

import (
	"bytes"
	"encoding/json"
	"strings"
)

// wireCall covers both tool-call shapes LLMs produce:
//
//	{"tool": "name", "arguments": {...}}
//	{"tool_calls": [{"id": "...", "function": {"name": "name", "arguments": {...} | "..."}}]}
type wireCall struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	ToolCalls []struct {
		ID       string `json:"id"`
		Function struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	} `json:"tool_calls"`
}

// ParseCalls extracts tool calls from an LLM reply. It reports false
// when the reply is plain text, which includes JSON that names no tool
// and a {"tool": ...} object without an "arguments" key. A reply
// wrapped in a markdown code fence is unwrapped first.
func ParseCalls(text string) ([]Call, bool) {
	raw := []byte(stripFence(strings.TrimSpace(text)))
	if len(raw) == 0 {
		return nil, false
	}

	var wires []wireCall
	switch raw[0] {
	case '{':
		var w wireCall
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, false
		}
		wires = []wireCall{w}
	case '[':
		if err := json.Unmarshal(raw, &wires); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}

	var calls []Call
	for _, w := range wires {
		if w.Tool != "" {
			if w.Arguments == nil {
				return nil, false
			}
			args, ok := decodeArguments(w.Arguments)
			if !ok {
				return nil, false
			}
			calls = append(calls, Call{Name: w.Tool, Arguments: args})
			continue
		}
		for _, tc := range w.ToolCalls {
			if tc.Function.Name == "" {
				continue
			}
			args, ok := decodeArguments(tc.Function.Arguments)
			if !ok {
				return nil, false
			}
			calls = append(calls, Call{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
		}
	}
	if len(calls) == 0 {
		return nil, false
	}
	return calls, true
}

// decodeArguments accepts an object, a JSON string holding an object,
// null, or nothing at all.
func decodeArguments(raw json.RawMessage) (map[string]any, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, true
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return map[string]any{}, true
		}
		raw = []byte(s)
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, false
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, true
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
