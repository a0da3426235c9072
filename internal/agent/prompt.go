package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"momentum/internal/store"
)

const systemPrompt = `You are a supportive personal coach with access to tools.

Each turn, reply with EITHER:
1. A single JSON object to run one tool: {"action": "<tool name>", "args": {...}}
2. Plain text: your final answer to the user.

Rules:
- One action per reply. You will see its result before deciding again.
- Fetch state with get_context before acting on ids; never invent ids.
- prioritize_goals only proposes a focus set; the user accepts or rejects
  the proposal in the app, not through you.
- Keep final answers short, warm, and concrete.`

// decision is the parsed form of an action reply.
type decision struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
}

var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// parseDecision extracts an action decision from a model reply. A reply that
// contains no parseable {"action": ...} object is the final answer.
func parseDecision(response string) (decision, bool) {
	trimmed := strings.TrimSpace(response)

	candidates := []string{trimmed}
	if m := fencedRe.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, m[1])
	}
	if start := strings.IndexByte(trimmed, '{'); start >= 0 {
		if end := strings.LastIndexByte(trimmed, '}'); end > start {
			candidates = append(candidates, trimmed[start:end+1])
		}
	}

	for _, c := range candidates {
		var dec decision
		if err := json.Unmarshal([]byte(c), &dec); err != nil {
			continue
		}
		if dec.Action == "" {
			continue
		}
		if dec.Args == nil {
			dec.Args = map[string]any{}
		}
		return dec, true
	}
	return decision{}, false
}

// buildPrompt assembles the per-iteration prompt: available tools, recent
// conversation, the user's message, and the scratchpad of actions so far.
func (l *Loop) buildPrompt(message string, prior []store.Turn, scratchpad []step) string {
	var sb strings.Builder

	sb.WriteString("Available tools:\n")
	for _, tool := range l.registry.All() {
		fmt.Fprintf(&sb, "- %s: %s\n", tool.Name, tool.Description)
		if len(tool.Schema.Properties) > 0 {
			if schema, err := json.Marshal(tool.Schema); err == nil {
				fmt.Fprintf(&sb, "  args schema: %s\n", schema)
			}
		}
	}

	if len(prior) > 0 {
		sb.WriteString("\nRecent conversation:\n")
		for _, t := range prior {
			fmt.Fprintf(&sb, "User: %s\nCoach: %s\n", t.UserInput, t.Answer)
		}
	}

	fmt.Fprintf(&sb, "\nUser message:\n%s\n", message)

	if len(scratchpad) > 0 {
		sb.WriteString("\nActions taken this turn:\n")
		for i, s := range scratchpad {
			fmt.Fprintf(&sb, "%d. %s -> %s\n", i+1, s.action, s.result)
		}
		sb.WriteString("\nDecide the next action, or reply with your final answer.")
	} else {
		sb.WriteString("\nDecide the first action, or reply with your final answer.")
	}
	return sb.String()
}
