// Package agent runs the turn-level dispatch loop: the model decides one
// action at a time, each result is fed back through a scratchpad, and the
// loop ends with a final answer or a forced fallback at the iteration cap.
package agent

import (
	"context"
	"fmt"
	"strings"

	"momentum/internal/domain"
	"momentum/internal/logging"
	"momentum/internal/perception"
	"momentum/internal/store"
	"momentum/internal/tools"
)

// TurnResult is the outcome of one user turn.
type TurnResult struct {
	Answer     string
	Cards      []domain.Card
	Iterations int
}

// step is one scratchpad entry: the action taken and what came back.
type step struct {
	action string
	result string
}

// Loop drives the decision/execution cycle for one turn at a time. The same
// Loop may serve concurrent turns for different users; all per-turn state
// lives on the stack.
type Loop struct {
	llm           perception.LLMClient
	registry      *tools.Registry
	store         *store.Store
	maxIterations int

	// OnCard, when set, receives each structured card as soon as the action
	// producing it returns, before the turn's final answer exists.
	OnCard func(domain.Card)
}

// New creates a dispatch loop.
func New(llm perception.LLMClient, registry *tools.Registry, s *store.Store, maxIterations int) *Loop {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	return &Loop{llm: llm, registry: registry, store: s, maxIterations: maxIterations}
}

// RunTurn executes one user turn to completion and persists it.
func (l *Loop) RunTurn(ctx context.Context, userID, threadID, message string) (*TurnResult, error) {
	timer := logging.StartTimer(logging.CategoryAgent, "RunTurn")
	defer timer.Stop()

	prior, err := l.store.RecentTurns(ctx, userID, threadID, 5)
	if err != nil {
		return nil, err
	}

	var (
		scratchpad []step
		cards      []domain.Card
		result     = &TurnResult{}
	)
	collect := func(card domain.Card) {
		if card == nil {
			return
		}
		cards = append(cards, card)
		if l.OnCard != nil {
			l.OnCard(card)
		}
	}

	for i := 0; i < l.maxIterations; i++ {
		result.Iterations = i + 1

		response, err := l.llm.CompleteWithSystem(ctx, systemPrompt, l.buildPrompt(message, prior, scratchpad))
		if err != nil {
			return nil, fmt.Errorf("model decision failed: %w", err)
		}

		dec, isAction := parseDecision(response)
		if !isAction {
			result.Answer = strings.TrimSpace(response)
			break
		}

		logging.Agent("Iteration %d: action %s", i+1, dec.Action)
		res, err := l.registry.Dispatch(ctx, dec.Action, tools.Request{
			UserID:   userID,
			ThreadID: threadID,
			Args:     dec.Args,
		})
		if err != nil {
			// Feed the failure back; the model can correct its arguments or
			// choose another action on the next iteration.
			scratchpad = append(scratchpad, step{action: dec.Action, result: "error: " + err.Error()})
			continue
		}
		collect(res.Card)
		scratchpad = append(scratchpad, step{action: dec.Action, result: res.Text})
	}

	if result.Answer == "" {
		result.Answer = fallbackAnswer(scratchpad)
		logging.Agent("Iteration cap reached after %d actions, forced fallback", len(scratchpad))
	}
	result.Cards = cards

	cardsJSON, err := store.EncodeCards(cards)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cards: %w", err)
	}
	if err := l.store.SaveTurn(ctx, &store.Turn{
		UserID:    userID,
		ThreadID:  threadID,
		UserInput: message,
		Answer:    result.Answer,
		CardsJSON: cardsJSON,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// fallbackAnswer builds a safe final answer when the model never produced
// one: the last successful action result, or a generic close.
func fallbackAnswer(scratchpad []step) string {
	for i := len(scratchpad) - 1; i >= 0; i-- {
		if !strings.HasPrefix(scratchpad[i].result, "error: ") {
			return scratchpad[i].result
		}
	}
	return "I wasn't able to finish that. Could you rephrase what you'd like me to do?"
}
