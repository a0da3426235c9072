package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"momentum/internal/domain"
	"momentum/internal/focus"
	"momentum/internal/matcher"
	"momentum/internal/progress"
	"momentum/internal/reader"
	"momentum/internal/resolver"
	"momentum/internal/store"
)

// Actions bundles the collaborators the registered tools execute against.
type Actions struct {
	Store    *store.Store
	Reader   *reader.Reader
	Resolver *resolver.Resolver
	Matcher  *matcher.Matcher
	Focus    *focus.SnapshotStore
}

// RegisterAll registers the full action set on the registry.
func (a *Actions) RegisterAll(reg *Registry) {
	reg.MustRegister(a.getContext())
	reg.MustRegister(a.prioritizeGoals())
	reg.MustRegister(a.removePriority())
	reg.MustRegister(a.logHabitCompletion())
	reg.MustRegister(a.createGoal())
	reg.MustRegister(a.addHabit())
	reg.MustRegister(a.updateHabit())
	reg.MustRegister(a.optimizeHabits())
	reg.MustRegister(a.reviewHabits())
}

func (a *Actions) getContext() *Tool {
	return &Tool{
		Name:        "get_context",
		Description: "Read the user's current state. Scope is one of: focus, goals, habits, insights, categories.",
		Category:    CategoryRead,
		Schema: ToolSchema{
			Required: []string{"scope"},
			Properties: map[string]Property{
				"scope":         {Type: "string", Description: "Which slice of state to read", Enum: []string{"focus", "goals", "habits", "insights", "categories"}},
				"goal_id":       {Type: "string", Description: "Narrow the habits scope to one goal"},
				"include_empty": {Type: "boolean", Description: "Include active goals with no habits"},
				"limit":         {Type: "number", Description: "Cap for the insights scope"},
			},
		},
		Execute: func(ctx context.Context, req Request) (*Result, error) {
			view, err := a.Reader.Read(ctx, req.UserID, reader.Scope(stringArg(req.Args, "scope")), reader.Filters{
				GoalID:       stringArg(req.Args, "goal_id"),
				IncludeEmpty: boolArg(req.Args, "include_empty"),
				Limit:        intArg(req.Args, "limit", 0),
			})
			if err != nil {
				return nil, err
			}
			encoded, err := json.Marshal(view)
			if err != nil {
				return nil, fmt.Errorf("failed to encode view: %w", err)
			}
			return &Result{Text: string(encoded)}, nil
		},
	}
}

func (a *Actions) prioritizeGoals() *Tool {
	return &Tool{
		Name:        "prioritize_goals",
		Description: "Resolve prioritization reasoning into a ranked focus proposal. The proposal is shown to the user; it does not change the saved focus set.",
		Category:    CategoryFocus,
		Schema: ToolSchema{
			Required: []string{"reasoning"},
			Properties: map[string]Property{
				"reasoning": {Type: "string", Description: "The reasoning text naming which goals to focus on and why"},
			},
		},
		Execute: func(ctx context.Context, req Request) (*Result, error) {
			records, err := a.Store.ListActiveGoalsWithHabits(ctx, req.UserID)
			if err != nil {
				return nil, err
			}
			proposal := a.Resolver.Resolve(ctx, stringArg(req.Args, "reasoning"), resolver.CandidatesFromRecords(records))

			// The proposal is never written here. A snapshot only comes into
			// being through the focus store's Apply, which the app invokes
			// when the user accepts, or through remove_priority.
			var sb strings.Builder
			if len(proposal.Items) == 0 {
				sb.WriteString("No active goals with habits to prioritize.")
			} else {
				sb.WriteString("Proposed focus set:\n")
				for _, item := range proposal.Items {
					fmt.Fprintf(&sb, "%d. %s\n", item.Rank, item.Title)
				}
			}
			return &Result{Text: sb.String(), Card: domain.PrioritizationCard{Items: proposal.Items}}, nil
		},
	}
}

func (a *Actions) removePriority() *Tool {
	return &Tool{
		Name:        "remove_priority",
		Description: "Clear the user's focus set.",
		Category:    CategoryFocus,
		Schema:      ToolSchema{Properties: map[string]Property{}},
		Execute: func(ctx context.Context, req Request) (*Result, error) {
			if _, err := a.Focus.Clear(ctx, req.UserID, req.ThreadID); err != nil {
				return nil, err
			}
			return &Result{
				Text: "Focus cleared.",
				Card: domain.PrioritizationCard{Items: []domain.GoalRef{}},
			}, nil
		},
	}
}

func (a *Actions) logHabitCompletion() *Tool {
	return &Tool{
		Name:        "log_habit_completion",
		Description: "Record that the user completed a habit today, matched from a free-text description.",
		Category:    CategoryHabit,
		Schema: ToolSchema{
			Required: []string{"habit_description"},
			Properties: map[string]Property{
				"habit_description": {Type: "string", Description: "What the user says they did"},
				"goal_id":           {Type: "string", Description: "Narrow matching to one goal's habits"},
				"notes":             {Type: "string", Description: "Optional note stored with the completion"},
			},
		},
		Execute: func(ctx context.Context, req Request) (*Result, error) {
			description := stringArg(req.Args, "habit_description")
			match, err := a.Matcher.Match(ctx, req.UserID, description, stringArg(req.Args, "goal_id"))
			if err != nil {
				return nil, err
			}
			if match.Kind == matcher.NoMatch {
				return &Result{
					Text: fmt.Sprintf("No active habit matched %q. Active habits: %s.",
						description, strings.Join(match.ActiveTitles, ", ")),
					Card: domain.HabitCompletionErrorCard{
						Reason:       "no_match",
						Message:      fmt.Sprintf("Could not match %q to an active habit", description),
						ActiveHabits: match.ActiveTitles,
					},
				}, nil
			}

			habit := match.Habit
			result, err := a.Store.LogCompletion(ctx, habit.Instance.ID, req.UserID, stringArg(req.Args, "notes"), time.Time{})
			if errors.Is(err, store.ErrDuplicateCompletion) {
				return &Result{
					Text: fmt.Sprintf("%q is already completed today; nothing was recorded.", habit.Definition.Name),
					Card: domain.HabitCompletionErrorCard{
						Reason:       "already_completed",
						Message:      fmt.Sprintf("%q was already completed today", habit.Definition.Name),
						ActiveHabits: match.ActiveTitles,
					},
				}, nil
			}
			if err != nil {
				return nil, err
			}

			relatedGoal := ""
			if goal, err := a.Store.GetGoal(ctx, habit.Instance.GoalID); err == nil {
				relatedGoal = goal.Title
			}
			return &Result{
				Text: fmt.Sprintf("Logged %q (streak %d, goal streak %d).",
					habit.Definition.Name, result.HabitStreak, result.GoalStreak),
				Card: domain.HabitCompletionCard{Habit: domain.CompletedHabit{
					ID:          habit.Instance.ID,
					Title:       habit.Definition.Name,
					CompletedAt: result.Completion.CompletedAt,
					Streak:      result.HabitStreak,
					RelatedGoal: relatedGoal,
				}},
			}, nil
		},
	}
}

func (a *Actions) createGoal() *Tool {
	return &Tool{
		Name:        "create_goal",
		Description: "Create a new goal, optionally with an initial habit set.",
		Category:    CategoryGoal,
		Schema: ToolSchema{
			Required: []string{"title"},
			Properties: map[string]Property{
				"title":       {Type: "string", Description: "Goal title"},
				"description": {Type: "string", Description: "Goal description"},
				"life_metric": {Type: "string", Description: "Category name, e.g. Health"},
				"term":        {Type: "string", Description: "Time horizon", Enum: []string{"short", "medium", "long"}},
				"target_date": {Type: "string", Description: "Target date, YYYY-MM-DD"},
				"habits":      {Type: "array", Description: "Initial habits: objects with name, description, frequency, per_period, target"},
			},
		},
		Execute: func(ctx context.Context, req Request) (*Result, error) {
			specs, err := habitSpecsArg(req.Args, "habits")
			if err != nil {
				return nil, err
			}

			metricID, err := a.resolveLifeMetric(ctx, req.UserID, stringArg(req.Args, "life_metric"))
			if err != nil {
				return nil, err
			}

			def := domain.GoalDefinition{
				UserID:       req.UserID,
				Title:        stringArg(req.Args, "title"),
				Description:  stringArg(req.Args, "description"),
				LifeMetricID: metricID,
				Term:         domain.TermBucket(stringArg(req.Args, "term")),
			}
			if err := a.Store.CreateGoalDefinition(ctx, &def); err != nil {
				return nil, err
			}

			inst := domain.GoalInstance{DefinitionID: def.ID, UserID: req.UserID}
			if raw := stringArg(req.Args, "target_date"); raw != "" {
				t, err := parseDate(raw)
				if err != nil {
					return nil, fmt.Errorf("%w: target_date: %v", ErrInvalidArgs, err)
				}
				inst.TargetDate = &t
			}
			if err := a.Store.CreateGoalInstance(ctx, &inst); err != nil {
				return nil, err
			}

			for _, spec := range specs {
				if err := a.linkHabit(ctx, req.UserID, inst.ID, spec); err != nil {
					return nil, err
				}
			}
			return &Result{Text: fmt.Sprintf("Created goal %q (id %s) with %d habits.", def.Title, inst.ID, len(specs))}, nil
		},
	}
}

func (a *Actions) addHabit() *Tool {
	return &Tool{
		Name:        "add_habit",
		Description: "Attach a new habit to an existing goal.",
		Category:    CategoryHabit,
		Schema: ToolSchema{
			Required: []string{"goal_id", "name"},
			Properties: map[string]Property{
				"goal_id":     {Type: "string", Description: "Goal instance id"},
				"name":        {Type: "string", Description: "Habit name"},
				"description": {Type: "string", Description: "Habit description"},
				"frequency":   {Type: "string", Description: "Repetition period", Enum: []string{"daily", "weekly", "monthly"}},
				"per_period":  {Type: "number", Description: "Occurrences per period, default 1"},
				"target":      {Type: "number", Description: "Completion target for progress, default 1"},
			},
		},
		Execute: func(ctx context.Context, req Request) (*Result, error) {
			goalID := stringArg(req.Args, "goal_id")
			goal, err := a.ownedGoal(ctx, req.UserID, goalID)
			if err != nil {
				return nil, err
			}

			spec := store.HabitSpec{
				Name:        stringArg(req.Args, "name"),
				Description: stringArg(req.Args, "description"),
				Frequency:   domain.Frequency(stringArg(req.Args, "frequency")),
				PerPeriod:   intArg(req.Args, "per_period", 1),
				Target:      intArg(req.Args, "target", 1),
			}
			if spec.Frequency == "" {
				spec.Frequency = domain.FrequencyDaily
			}
			if err := a.linkHabit(ctx, req.UserID, goalID, spec); err != nil {
				if errors.Is(err, store.ErrHabitAlreadyLinked) {
					return &Result{Text: fmt.Sprintf("%q is already linked to goal %q.", spec.Name, goal.Title)}, nil
				}
				return nil, err
			}
			return &Result{Text: fmt.Sprintf("Added habit %q to goal %q.", spec.Name, goal.Title)}, nil
		},
	}
}

func (a *Actions) updateHabit() *Tool {
	return &Tool{
		Name:        "update_habit",
		Description: "Activate, deactivate, or retarget a habit by its instance id.",
		Category:    CategoryHabit,
		Schema: ToolSchema{
			Required: []string{"habit_id", "action"},
			Properties: map[string]Property{
				"habit_id": {Type: "string", Description: "Habit instance id (uuid, from get_context)"},
				"action":   {Type: "string", Description: "What to change", Enum: []string{"activate", "deactivate", "set_target"}},
				"value":    {Type: "number", Description: "New target, required for set_target"},
			},
		},
		Execute: func(ctx context.Context, req Request) (*Result, error) {
			habitID := stringArg(req.Args, "habit_id")
			if _, err := uuid.Parse(habitID); err != nil {
				return nil, fmt.Errorf("%w: %q is not a habit id; call get_context with scope \"habits\" and use the instance_id field",
					ErrInvalidArgs, habitID)
			}

			habit, err := a.Store.GetHabitInstance(ctx, habitID)
			if err != nil {
				return nil, err
			}
			if habit.Definition.UserID != req.UserID {
				return nil, fmt.Errorf("habit instance %s: %w", habitID, store.ErrNotFound)
			}

			switch action := stringArg(req.Args, "action"); action {
			case "activate", "deactivate":
				if err := a.Store.SetHabitActive(ctx, habit.Definition.ID, action == "activate"); err != nil {
					return nil, err
				}
				return &Result{Text: fmt.Sprintf("Habit %q is now %sd.", habit.Definition.Name, action)}, nil
			case "set_target":
				target := intArg(req.Args, "value", 0)
				if target <= 0 {
					return nil, fmt.Errorf("%w: set_target needs a positive value", ErrInvalidArgs)
				}
				if err := a.Store.SetHabitTarget(ctx, habitID, target); err != nil {
					return nil, err
				}
				return &Result{Text: fmt.Sprintf("Habit %q target set to %d.", habit.Definition.Name, target)}, nil
			default:
				return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidArgs, action)
			}
		},
	}
}

func (a *Actions) optimizeHabits() *Tool {
	return &Tool{
		Name:        "optimize_habits",
		Description: "Replace a goal's habit set with a new one, keeping the goal's combined progress unchanged.",
		Category:    CategoryHabit,
		Schema: ToolSchema{
			Required: []string{"goal_id", "habits"},
			Properties: map[string]Property{
				"goal_id": {Type: "string", Description: "Goal instance id"},
				"habits":  {Type: "array", Description: "Replacement habits: objects with name, description, frequency, per_period, target"},
				"summary": {Type: "string", Description: "Why the habits were changed"},
			},
		},
		Execute: func(ctx context.Context, req Request) (*Result, error) {
			specs, err := habitSpecsArg(req.Args, "habits")
			if err != nil {
				return nil, err
			}
			if len(specs) == 0 {
				return nil, fmt.Errorf("%w: habits must not be empty; deactivate individual habits instead", ErrInvalidArgs)
			}

			goalID := stringArg(req.Args, "goal_id")
			goal, err := a.ownedGoal(ctx, req.UserID, goalID)
			if err != nil {
				return nil, err
			}

			replacement, err := a.Store.ReplaceGoalHabits(ctx, req.UserID, goalID, specs, progress.PreservingOffset)
			if err != nil {
				return nil, err
			}

			names := make([]string, 0, len(replacement))
			for _, spec := range specs {
				names = append(names, spec.Name)
			}
			summary := stringArg(req.Args, "summary")
			if summary == "" {
				summary = fmt.Sprintf("Replaced habits under %q with %d new habits", goal.Title, len(names))
			}
			return &Result{
				Text: fmt.Sprintf("Goal %q now has habits: %s. Progress was preserved.", goal.Title, strings.Join(names, ", ")),
				Card: domain.OptimizationCard{Summary: summary, Recommendations: names},
			}, nil
		},
	}
}

func (a *Actions) reviewHabits() *Tool {
	return &Tool{
		Name:        "review_habits",
		Description: "Produce today's habit checklist, optionally for one goal.",
		Category:    CategoryRead,
		Schema: ToolSchema{
			Properties: map[string]Property{
				"goal_id": {Type: "string", Description: "Narrow the checklist to one goal"},
			},
		},
		Execute: func(ctx context.Context, req Request) (*Result, error) {
			view, err := a.Reader.Read(ctx, req.UserID, reader.ScopeHabits, reader.Filters{
				GoalID: stringArg(req.Args, "goal_id"),
			})
			if err != nil {
				return nil, err
			}

			items := make([]domain.HabitReviewItem, 0, len(view.Habits))
			var sb strings.Builder
			sb.WriteString("Habit checklist:\n")
			for _, h := range view.Habits {
				items = append(items, domain.HabitReviewItem{
					ID:        h.InstanceID,
					Title:     h.Name,
					Completed: h.CompletedToday,
					Streak:    h.Streak,
					Points:    10 + h.Streak,
				})
				mark := " "
				if h.CompletedToday {
					mark = "x"
				}
				fmt.Fprintf(&sb, "[%s] %s (streak %d)\n", mark, h.Name, h.Streak)
			}
			if len(items) == 0 {
				sb.WriteString("(no active habits)")
			}
			return &Result{Text: sb.String(), Card: domain.HabitReviewCard{Habits: items}}, nil
		},
	}
}

// ownedGoal loads a goal instance and verifies it belongs to the requesting
// user. A foreign id reports not-found rather than revealing the goal exists.
func (a *Actions) ownedGoal(ctx context.Context, userID, goalInstanceID string) (*store.GoalRecord, error) {
	goal, err := a.Store.GetGoal(ctx, goalInstanceID)
	if err != nil {
		return nil, err
	}
	if goal.Instance.UserID != userID {
		return nil, fmt.Errorf("goal instance %s: %w", goalInstanceID, store.ErrNotFound)
	}
	return goal, nil
}

// linkHabit creates (or reuses via name) a habit definition and links it to
// the goal. Unlike ReplaceGoalHabits this is additive.
func (a *Actions) linkHabit(ctx context.Context, userID, goalInstanceID string, spec store.HabitSpec) error {
	def := domain.HabitDefinition{
		UserID:      userID,
		Name:        spec.Name,
		Description: spec.Description,
		Active:      true,
	}
	if err := a.Store.CreateHabitDefinition(ctx, &def); err != nil {
		return err
	}
	inst := domain.HabitInstance{
		DefinitionID: def.ID,
		GoalID:       goalInstanceID,
		Target:       spec.Target,
		Frequency:    spec.Frequency,
		PerPeriod:    spec.PerPeriod,
	}
	return a.Store.CreateHabitInstance(ctx, &inst)
}

// resolveLifeMetric maps a category name to its id, seeding the defaults for
// a new user first. Unknown names create a new category rather than failing.
func (a *Actions) resolveLifeMetric(ctx context.Context, userID, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	metrics, err := a.Store.SeedDefaultLifeMetrics(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, m := range metrics {
		if strings.EqualFold(m.Name, name) {
			return m.ID, nil
		}
	}
	metric := domain.LifeMetric{UserID: userID, Name: name}
	if err := a.Store.CreateLifeMetric(ctx, &metric); err != nil {
		return "", err
	}
	return metric.ID, nil
}

// parseDate accepts YYYY-MM-DD or RFC3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
