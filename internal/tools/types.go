// Package tools defines the closed set of actions the dispatch loop can
// execute, registered in a thread-safe registry with argument validation
// before any mutation runs.
package tools

import (
	"context"

	"momentum/internal/domain"
)

// ToolCategory classifies tools for prompt grouping.
type ToolCategory string

const (
	// CategoryRead covers state inspection tools with no side effects.
	CategoryRead ToolCategory = "read"

	// CategoryFocus covers prioritization and focus-set tools.
	CategoryFocus ToolCategory = "focus"

	// CategoryHabit covers habit lifecycle and completion tools.
	CategoryHabit ToolCategory = "habit"

	// CategoryGoal covers goal lifecycle tools.
	CategoryGoal ToolCategory = "goal"
)

// Request carries the caller identity explicitly into every execution.
// There is no process-wide current user; two requests for different users
// may run concurrently on the same registry.
type Request struct {
	UserID   string
	ThreadID string
	Args     map[string]any
}

// Result is a successful execution: text for the model's scratchpad and an
// optional structured card surfaced to the UI side-channel.
type Result struct {
	Text string
	Card domain.Card
}

// ExecuteFunc runs a tool against one request.
type ExecuteFunc func(ctx context.Context, req Request) (*Result, error)

// Property describes one parameter for schema validation.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// ToolSchema declares a tool's arguments. Validation runs before Execute,
// so a malformed call never reaches storage.
type ToolSchema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// Tool is one registered action.
type Tool struct {
	// Name is the unique identifier the model uses to invoke the tool.
	Name string

	// Description explains the tool to the model.
	Description string

	// Category classifies the tool for prompt grouping.
	Category ToolCategory

	// Execute runs the tool.
	Execute ExecuteFunc

	// Schema declares the expected arguments.
	Schema ToolSchema
}

// Validate checks the tool definition.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}
