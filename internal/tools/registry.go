package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"momentum/internal/logging"
)

// Registry holds the available tools and provides lookup and dispatch.
// It is thread-safe and supports registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Returns an error if the name is already taken.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool

	logging.ToolsDebug("Registered tool: %s (category=%s)", tool.Name, tool.Category)
	return nil
}

// MustRegister registers a tool and panics on error. Use for static
// registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// All returns every registered tool sorted by name, for stable prompts.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Dispatch validates the request against the tool's schema and executes it.
func (r *Registry) Dispatch(ctx context.Context, name string, req Request) (*Result, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if err := validateArgs(tool.Schema, req.Args); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	timer := logging.StartTimer(logging.CategoryTools, name)
	defer timer.Stop()

	result, err := tool.Execute(ctx, req)
	if err != nil {
		logging.Tools("Tool %s failed: %v", name, err)
		return nil, err
	}
	logging.ToolsDebug("Tool %s ok (%d result bytes)", name, len(result.Text))
	return result, nil
}

// validateArgs checks required parameters, declared types, and enums.
// It runs before Execute so invalid calls never touch storage.
func validateArgs(schema ToolSchema, args map[string]any) error {
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("%w: missing required argument %q", ErrInvalidArgs, name)
		}
	}
	for name, value := range args {
		prop, ok := schema.Properties[name]
		if !ok {
			return fmt.Errorf("%w: unknown argument %q", ErrInvalidArgs, name)
		}
		if err := checkType(name, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name string, prop Property, value any) error {
	switch prop.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: argument %q must be a string", ErrInvalidArgs, name)
		}
		if len(prop.Enum) > 0 && !containsString(prop.Enum, s) {
			return fmt.Errorf("%w: argument %q must be one of %v", ErrInvalidArgs, name, prop.Enum)
		}
	case "number":
		// JSON decoding yields float64; native ints appear in tests.
		switch value.(type) {
		case float64, int:
		default:
			return fmt.Errorf("%w: argument %q must be a number", ErrInvalidArgs, name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: argument %q must be a boolean", ErrInvalidArgs, name)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("%w: argument %q must be an array", ErrInvalidArgs, name)
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
