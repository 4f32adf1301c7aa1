// Package mcp defines the Tool interface, the tool registry, and the uniform
// response envelope every tool returns.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ToolSchema describes a tool to clients: its name, description, and a JSON
// Schema for its input.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Tool is the interface all eBay tools implement.
type Tool interface {
	// Schema returns the tool's name, description, and input schema.
	Schema() ToolSchema

	// Execute runs the tool with the given JSON input and returns the
	// envelope-formatted result string.
	Execute(ctx context.Context, tc *ToolContext, input json.RawMessage) (string, error)
}

// Registry holds all registered tools and provides lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. Panics on duplicate name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Schema().Name
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tool already registered: %s", name))
	}
	r.tools[name] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns all tool schemas sorted by name.
func (r *Registry) Schemas() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, t.Schema())
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Execute runs a tool by name with JSON input.
func (r *Registry) Execute(ctx context.Context, tc *ToolContext, name string, input json.RawMessage) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return t.Execute(ctx, tc, input)
}

// MustSchema builds a json.RawMessage from a Go value (panics on error).
func MustSchema(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("MustSchema: %v", err))
	}
	return b
}
