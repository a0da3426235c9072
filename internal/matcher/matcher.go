// Package matcher fuzzy-matches a free-text action description to exactly
// one of the user's active habits. Matching is an ordered chain of
// deterministic stages; below the confidence threshold it returns a tagged
// NoMatch result rather than guessing.
package matcher

import (
	"context"
	"regexp"
	"strings"

	"momentum/internal/config"
	"momentum/internal/logging"
	"momentum/internal/store"
)

// Kind tags a match outcome.
type Kind int

const (
	// Ok means exactly one habit matched above the confidence threshold.
	Ok Kind = iota
	// NoMatch means no habit cleared the threshold. An expected outcome,
	// not an error.
	NoMatch
)

// Result is the outcome of a match attempt. On NoMatch it carries the
// attempted description and the active habit titles so the caller can
// degrade gracefully.
type Result struct {
	Kind         Kind
	Habit        *store.HabitRecord
	Attempted    string
	ActiveTitles []string
}

// Matcher resolves habit descriptions against the store.
type Matcher struct {
	store *store.Store
	cfg   config.MatcherConfig
}

// New creates a matcher with the given thresholds.
func New(s *store.Store, cfg config.MatcherConfig) *Matcher {
	return &Matcher{store: s, cfg: cfg}
}

// Match resolves a free-text description to one active habit instance.
// The candidate set is narrowed by goalID when provided; otherwise, when the
// unscoped set is large, it is narrowed to the current focus set's habits
// first, widening back to the full set if the narrowed search misses.
func (m *Matcher) Match(ctx context.Context, userID, description, goalID string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryMatcher, "Match")
	defer timer.Stop()

	all, err := m.store.ListActiveHabits(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates := all
	narrowed := false
	switch {
	case goalID != "":
		candidates, err = m.store.ListHabitsByGoal(ctx, userID, goalID)
		if err != nil {
			return nil, err
		}
	case len(all) > m.cfg.FocusNarrowThreshold:
		if focus, err := m.focusHabits(ctx, userID); err != nil {
			return nil, err
		} else if len(focus) > 0 {
			candidates = focus
			narrowed = true
		}
	}

	if hit := m.matchAgainst(description, candidates); hit != nil {
		logging.Matcher("Matched %q -> %q", description, hit.Definition.Name)
		return &Result{Kind: Ok, Habit: hit, Attempted: description}, nil
	}
	if narrowed {
		// The focus narrowing may have hidden the right habit; widen once.
		if hit := m.matchAgainst(description, all); hit != nil {
			logging.Matcher("Matched %q -> %q (outside focus set)", description, hit.Definition.Name)
			return &Result{Kind: Ok, Habit: hit, Attempted: description}, nil
		}
	}

	logging.Matcher("No habit matched %q (%d candidates)", description, len(all))
	return &Result{
		Kind:         NoMatch,
		Attempted:    description,
		ActiveTitles: titles(all),
	}, nil
}

// focusHabits returns the habits linked to the current focus set's goals.
func (m *Matcher) focusHabits(ctx context.Context, userID string) ([]store.HabitRecord, error) {
	snap, err := m.store.LatestPrioritySnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snap == nil || len(snap.Items) == 0 {
		return nil, nil
	}
	goalIDs := make([]string, 0, len(snap.Items))
	for _, item := range snap.Items {
		goalIDs = append(goalIDs, item.GoalInstanceID)
	}
	return m.store.ListHabitsByGoals(ctx, goalIDs)
}

// matchAgainst runs the match chain over one candidate set:
// exact name -> substring (either direction) -> description substring ->
// token-overlap scoring above the configured threshold.
func (m *Matcher) matchAgainst(description string, candidates []store.HabitRecord) *store.HabitRecord {
	if len(candidates) == 0 {
		return nil
	}
	query := normalize(description)
	if query == "" {
		return nil
	}

	for i := range candidates {
		if normalize(candidates[i].Definition.Name) == query {
			return &candidates[i]
		}
	}

	for i := range candidates {
		name := normalize(candidates[i].Definition.Name)
		if name == "" {
			continue
		}
		if strings.Contains(name, query) || strings.Contains(query, name) {
			return &candidates[i]
		}
	}

	for i := range candidates {
		desc := normalize(candidates[i].Definition.Description)
		if desc == "" {
			continue
		}
		if strings.Contains(desc, query) || strings.Contains(query, desc) {
			return &candidates[i]
		}
	}

	return m.bestByTokens(query, candidates)
}

// bestByTokens picks the highest-scoring candidate that clears either the
// coverage threshold (fraction of description tokens present in the habit's
// title) or the raw score threshold. Ties keep the earlier candidate, which
// is the older habit.
func (m *Matcher) bestByTokens(query string, candidates []store.HabitRecord) *store.HabitRecord {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	var best *store.HabitRecord
	bestScore := 0
	for i := range candidates {
		titleTokens := tokenize(candidates[i].Definition.Name)
		descTokens := tokenize(candidates[i].Definition.Description)

		titleHits := 0
		for t := range queryTokens {
			if titleTokens[t] {
				titleHits++
			}
		}
		descHits := 0
		for t := range queryTokens {
			if descTokens[t] {
				descHits++
			}
		}

		coverage := float64(titleHits) / float64(len(queryTokens))
		score := 3*titleHits + descHits
		confident := coverage >= m.cfg.MinTokenCoverage || score >= m.cfg.MinRawScore
		if confident && score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	if best != nil {
		logging.MatcherDebug("Token match %q -> %q (score %d)", query, best.Definition.Name, bestScore)
	}
	return best
}

func titles(records []store.HabitRecord) []string {
	seen := make(map[string]bool, len(records))
	var out []string
	for _, r := range records {
		if seen[r.Definition.Name] {
			continue
		}
		seen[r.Definition.Name] = true
		out = append(out, r.Definition.Name)
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var matcherStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "today": true,
	"just": true, "went": true, "did": true, "done": true, "finished": true,
	"completed": true, "had": true, "got": true,
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// tokenize extracts meaningful lowercase tokens from a description. Report
// verbs ("did", "finished") and short filler are dropped; numeric tokens are
// kept regardless of length.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range wordRe.FindAllString(strings.ToLower(s), -1) {
		if len(t) < 3 && !hasDigit(t) {
			continue
		}
		if matcherStopwords[t] {
			continue
		}
		tokens[t] = true
	}
	return tokens
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
