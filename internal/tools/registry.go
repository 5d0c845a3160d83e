// Package tools holds the server-side tools the agent may call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xiaot623/gogo/agentgate/internal/adapter/llm"
)

// ExecutorFunc defines a server-side tool executor.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Tool is a named executor with the schema advertised to the model.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters map[string]interface{}
	Exec       ExecutorFunc
}

// Registry stores tools keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// DefaultRegistry is the shared registry holding the builtin tools.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Exec == nil {
		return fmt.Errorf("executor is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("executor already registered for %s", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[toolName]
	return ok
}

// Execute runs the executor for the tool name.
func (r *Registry) Execute(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error) {
	if toolName == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	r.mu.RLock()
	tool, ok := r.tools[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no executor registered for %s", toolName)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return tool.Exec(ctx, args)
}

// Definitions returns the function definitions sent to the model, sorted by
// name.
func (r *Registry) Definitions() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		defs = append(defs, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Function.Name < defs[j].Function.Name })
	return defs
}

// Register adds a tool to the default registry.
func Register(tool Tool) error {
	return DefaultRegistry.Register(tool)
}

// MustRegister adds a tool to the default registry or panics.
func MustRegister(tool Tool) {
	if err := Register(tool); err != nil {
		panic(err)
	}
}
