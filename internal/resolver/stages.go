package resolver

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"momentum/internal/logging"
	"momentum/internal/perception"
)

var (
	numberedItemRe = regexp.MustCompile(`\d+[.)]\s*`)
	quotedRe       = regexp.MustCompile(`"([^"]+)"`)
	prioritizeRe   = regexp.MustCompile(`(?i)prioritize\s*:\s*(.+)`)
)

// extractStructural pulls candidate goal strings out of the reasoning text:
// numbered-list items, an explicit "Prioritize: a, b, c" marker, and quoted
// substrings, in that order.
func extractStructural(reasoning string) []string {
	var out []string
	seen := make(map[string]bool)
	push := func(s string) {
		s = strings.TrimSpace(s)
		s = strings.Trim(s, `,.;:"'`)
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := normalize(s)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, s)
	}

	// Numbered items: split on "1. ", "2) ", ... markers; each segment runs
	// to the next marker. Inline lists separated by commas leave a trailing
	// comma that push trims; multiline items stop at the newline.
	if locs := numberedItemRe.FindAllStringIndex(reasoning, -1); len(locs) > 0 {
		for i, loc := range locs {
			end := len(reasoning)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			segment := reasoning[loc[1]:end]
			if nl := strings.IndexByte(segment, '\n'); nl >= 0 {
				segment = segment[:nl]
			}
			push(segment)
		}
	}

	if m := prioritizeRe.FindStringSubmatch(reasoning); m != nil {
		line := m[1]
		if nl := strings.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
		}
		for _, part := range splitList(line) {
			push(part)
		}
	}

	for _, m := range quotedRe.FindAllStringSubmatch(reasoning, -1) {
		push(m[1])
	}

	return out
}

// splitList splits "a, b and c" into its parts.
func splitList(s string) []string {
	s = strings.ReplaceAll(s, " and ", ",")
	return strings.Split(s, ",")
}

// matchTitles maps extracted strings onto candidates by normalized equality
// first, then containment in either direction. Order follows the extraction
// order; each candidate matches at most once.
func matchTitles(extracted []string, candidates []Candidate) []Candidate {
	var matched []Candidate
	used := make(map[string]bool)

	find := func(pred func(title, query string) bool, query string) *Candidate {
		for i := range candidates {
			c := &candidates[i]
			if used[c.ID] {
				continue
			}
			if pred(normalize(c.Title), query) {
				return c
			}
		}
		return nil
	}

	for _, raw := range extracted {
		query := normalize(raw)
		if query == "" {
			continue
		}
		c := find(func(title, q string) bool { return title == q }, query)
		if c == nil && len(query) >= 3 {
			c = find(func(title, q string) bool {
				return strings.Contains(title, q) || strings.Contains(q, title)
			}, query)
		}
		if c != nil {
			used[c.ID] = true
			matched = append(matched, *c)
		}
	}
	return matched
}

// extractWithModel issues one low-temperature completion asking the model to
// pick the requested number of titles verbatim from the candidate list.
// Lines not present in the list are discarded; any upstream failure returns
// nil so the chain degrades to the next stage.
func extractWithModel(ctx context.Context, llm perception.LLMClient, reasoning string, candidates []Candidate, count int) []Candidate {
	if count <= 0 || len(candidates) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("Goal titles:\n")
	for _, c := range candidates {
		sb.WriteString("- ")
		sb.WriteString(c.Title)
		sb.WriteString("\n")
	}
	sb.WriteString("\nReasoning:\n")
	sb.WriteString(reasoning)
	sb.WriteString(fmt.Sprintf("\n\nReturn the %d goal titles the reasoning prioritizes, one per line.", count))

	system := "You select goal titles. Reply with exactly the requested number of lines, " +
		"each a title copied verbatim from the provided list. No numbering, no commentary."

	response, err := llm.CompleteWithSystem(ctx, system, sb.String())
	if err != nil {
		logging.ResolverDebug("Model-assisted extraction failed, degrading: %v", err)
		return nil
	}

	byTitle := make(map[string]*Candidate, len(candidates))
	for i := range candidates {
		byTitle[normalize(candidates[i].Title)] = &candidates[i]
	}

	var matched []Candidate
	used := make(map[string]bool)
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		line = numberedItemRe.ReplaceAllString(line, "")
		line = strings.Trim(line, `-*"' `)
		c, ok := byTitle[normalize(line)]
		if !ok || used[c.ID] {
			continue
		}
		used[c.ID] = true
		matched = append(matched, *c)
		if len(matched) >= count {
			break
		}
	}
	return matched
}

// scoreByKeywords tokenizes the reasoning and each candidate's title and
// description, scoring 3 points per title-token overlap and 1 per
// description-token overlap. Candidates with a positive score are returned
// sorted by score descending, ties broken by creation time ascending (older
// goals preferred).
func scoreByKeywords(reasoning string, candidates []Candidate) []Candidate {
	reasoningTokens := tokenSet(reasoning)
	if len(reasoningTokens) == 0 {
		return nil
	}

	type scored struct {
		candidate Candidate
		score     int
	}
	var results []scored
	for _, c := range candidates {
		score := 0
		for token := range tokenSet(c.Title) {
			if reasoningTokens[token] {
				score += 3
			}
		}
		for token := range tokenSet(c.Description) {
			if reasoningTokens[token] {
				score++
			}
		}
		if score > 0 {
			results = append(results, scored{candidate: c, score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].candidate.CreatedAt.Before(results[j].candidate.CreatedAt)
	})

	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, r.candidate)
	}
	return out
}

// oldestFirst orders candidates by creation time ascending.
func oldestFirst(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// normalize lowercases and collapses whitespace for comparison.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "you": true, "your": true, "are": true, "was": true,
	"has": true, "have": true, "will": true, "should": true, "would": true,
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// tokenSet extracts lowercase tokens of length >= 3 minus stopwords.
// Numeric tokens are kept regardless of length ("5k", "500").
func tokenSet(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range tokenRe.FindAllString(strings.ToLower(s), -1) {
		if len(t) < 3 && !containsDigit(t) {
			continue
		}
		if stopwords[t] {
			continue
		}
		tokens[t] = true
	}
	return tokens
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
