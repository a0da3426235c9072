// Package resolver turns free-text prioritization reasoning into an ordered
// list of canonical goal references. It is a deterministic strategy chain:
// structural extraction, title matching, model-assisted extraction, keyword
// scoring, and an oldest-goals fallback, tried in order until enough matches
// are found. The resolver never persists anything; it returns a proposal for
// the caller to confirm.
package resolver

import (
	"context"
	"time"

	"momentum/internal/domain"
	"momentum/internal/logging"
	"momentum/internal/perception"
	"momentum/internal/store"
)

// Candidate is one goal the resolver may select.
type Candidate struct {
	ID          string
	Title       string
	Description string
	TargetDate  *time.Time
	LifeMetric  string
	CreatedAt   time.Time
}

// Proposal is the resolver's output: display-ready refs plus the reduced
// items a priority snapshot would persist. Callers must confirm explicitly
// before anything is written.
type Proposal struct {
	Items         []domain.GoalRef
	SnapshotItems []domain.PriorityItem
}

// Resolver resolves reasoning text against a user's active goals.
type Resolver struct {
	llm   perception.LLMClient
	limit int
}

// New creates a resolver. llm may be nil, in which case the model-assisted
// stage is skipped and the deterministic stages carry the full load.
func New(llm perception.LLMClient, focusLimit int) *Resolver {
	return &Resolver{llm: llm, limit: focusLimit}
}

// CandidatesFromRecords adapts store goal records into resolver candidates.
func CandidatesFromRecords(records []store.GoalRecord) []Candidate {
	candidates := make([]Candidate, 0, len(records))
	for _, r := range records {
		candidates = append(candidates, Candidate{
			ID:          r.Instance.ID,
			Title:       r.Title,
			Description: r.Description,
			TargetDate:  r.Instance.TargetDate,
			LifeMetric:  r.LifeMetric,
			CreatedAt:   r.Instance.CreatedAt,
		})
	}
	return candidates
}

// Resolve maps reasoning text onto at most focus-limit goals. The result is
// deterministic and non-empty whenever candidates exist: the strategy chain
// ends in an oldest-goals fallback, so ambiguity degrades rather than fails.
func (r *Resolver) Resolve(ctx context.Context, reasoning string, candidates []Candidate) Proposal {
	timer := logging.StartTimer(logging.CategoryResolver, "Resolve")
	defer timer.Stop()

	need := r.limit
	if len(candidates) < need {
		need = len(candidates)
	}
	if need == 0 {
		return Proposal{Items: []domain.GoalRef{}, SnapshotItems: []domain.PriorityItem{}}
	}

	picked := make([]Candidate, 0, need)
	taken := make(map[string]bool, need)
	add := func(matches []Candidate) {
		for _, m := range matches {
			if len(picked) >= need || taken[m.ID] {
				continue
			}
			picked = append(picked, m)
			taken[m.ID] = true
		}
	}

	// Stages 1+2: structural extraction, then exact/substring title match.
	// An explicit list in which every entry resolves to a goal is taken
	// verbatim, even when it names fewer goals than the focus limit; the
	// later stages only fill in when resolution was partial or ambiguous.
	extracted := extractStructural(reasoning)
	structural := matchTitles(extracted, candidates)
	if len(extracted) > 0 && len(structural) == len(extracted) && len(structural) < need {
		need = len(structural)
	}
	add(structural)
	logging.ResolverDebug("Structural stage matched %d/%d", len(picked), need)

	// Stage 3: one low-temperature model call over the remaining slots.
	if len(picked) < need && r.llm != nil {
		add(extractWithModel(ctx, r.llm, reasoning, remaining(candidates, taken), need-len(picked)))
		logging.ResolverDebug("Model-assisted stage at %d/%d", len(picked), need)
	}

	// Stage 4: keyword-similarity scoring.
	if len(picked) < need {
		add(scoreByKeywords(reasoning, remaining(candidates, taken)))
		logging.ResolverDebug("Keyword stage at %d/%d", len(picked), need)
	}

	// Stage 5: fill with the oldest remaining active goals so the action
	// always returns a deterministic, non-empty result.
	if len(picked) < need {
		add(oldestFirst(remaining(candidates, taken)))
	}

	items := make([]domain.GoalRef, 0, len(picked))
	for i, c := range picked {
		items = append(items, domain.GoalRef{
			GoalInstanceID: c.ID,
			Rank:           i + 1,
			Title:          c.Title,
			Description:    c.Description,
			TargetDate:     c.TargetDate,
			LifeMetric:     c.LifeMetric,
		})
	}
	logging.Resolver("Resolved %d goals from reasoning (%d candidates)", len(items), len(candidates))
	return Proposal{Items: items, SnapshotItems: domain.SnapshotItems(items)}
}

// remaining filters out already-taken candidates, preserving order.
func remaining(candidates []Candidate, taken map[string]bool) []Candidate {
	rest := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !taken[c.ID] {
			rest = append(rest, c)
		}
	}
	return rest
}
