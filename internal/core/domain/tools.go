package domain

import (
	"context"
	"fmt"
)

// Tool represents an executable capability available to the assistant.
type Tool struct {
	Name        string
	Description string
	Parameters  ToolParameters
	Execute     ToolFunc
}

// ToolParameters describes the JSON-schema-ish shape of a tool's inputs,
// surfaced to the LLM layer when advertising tools.
type ToolParameters struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

// ToolFunc is the function signature for tool execution.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolRegistry manages available tools and satisfies the executor surface
// the plan runner consumes.
type ToolRegistry struct {
	tools map[string]*Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry. Registering a name twice replaces
// the earlier tool.
func (r *ToolRegistry) Register(tool *Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	r.tools[tool.Name] = tool
	return nil
}

// Execute runs a tool by name with the given arguments.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool.Execute(ctx, args)
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (*Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools.
func (r *ToolRegistry) List() []*Tool {
	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	return tools
}

// ErrorResult is the structured error shape a tool may return instead of a
// Go error. The plan runner treats it as a step failure.
type ErrorResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AsErrorResult inspects a tool result for the structured error shape,
// whether typed or decoded from JSON into a generic map.
func AsErrorResult(result any) (ErrorResult, bool) {
	switch v := result.(type) {
	case ErrorResult:
		if v.Status == "error" {
			return v, true
		}
	case *ErrorResult:
		if v != nil && v.Status == "error" {
			return *v, true
		}
	case map[string]any:
		if s, _ := v["status"].(string); s == "error" {
			msg, _ := v["message"].(string)
			return ErrorResult{Status: "error", Message: msg}, true
		}
	}
	return ErrorResult{}, false
}
