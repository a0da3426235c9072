// Command momentum is the coaching engine CLI: run a one-shot coaching turn,
// dump the current state, or seed demo data for local development.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"momentum/internal/agent"
	"momentum/internal/config"
	"momentum/internal/domain"
	"momentum/internal/focus"
	"momentum/internal/logging"
	"momentum/internal/matcher"
	"momentum/internal/perception"
	"momentum/internal/reader"
	"momentum/internal/resolver"
	"momentum/internal/store"
	"momentum/internal/tools"
)

var (
	cfgPath  string
	debug    bool
	userID   string
	threadID string

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "momentum",
		Short: "Personal goal and habit coaching engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Missing .env is fine; real environments set variables directly.
			_ = godotenv.Load()

			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			if debug {
				cfg.Logging.DebugMode = true
			}

			zapCfg := zap.NewProductionConfig()
			if cfg.Logging.DebugMode {
				zapCfg = zap.NewDevelopmentConfig()
			}
			logger, err = zapCfg.Build()
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			return logging.Initialize(cwd, logging.Options{
				DebugMode:  cfg.Logging.DebugMode,
				Level:      cfg.Logging.Level,
				Categories: cfg.Logging.Categories,
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Close()
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "momentum.yaml", "config file path")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&userID, "user", "u", "local", "user id")
	root.PersistentFlags().StringVarP(&threadID, "thread", "t", "cli", "conversation thread id")

	root.AddCommand(runCmd(), statusCmd(), seedCmd())
	return root
}

// engine wires the full stack for one command invocation.
type engine struct {
	store  *store.Store
	reader *reader.Reader
	loop   *agent.Loop
}

func buildEngine(requireLLM bool) (*engine, error) {
	s, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	var llm perception.LLMClient
	if cfg.LLM.APIKey != "" || requireLLM {
		llm, err = perception.NewClientFromConfig(cfg.LLM)
		if err != nil {
			if requireLLM {
				s.Close()
				return nil, err
			}
			logger.Warn("no LLM client available, assisted stages disabled", zap.Error(err))
		}
	}

	rd := reader.New(s, cfg.Coach.HabitWindowDays)
	fc := focus.New(s, cfg.Coach.FocusLimit)
	mt := matcher.New(s, cfg.Matcher)
	rs := resolver.New(llm, cfg.Coach.FocusLimit)

	registry := tools.NewRegistry()
	actions := &tools.Actions{Store: s, Reader: rd, Resolver: rs, Matcher: mt, Focus: fc}
	actions.RegisterAll(registry)

	return &engine{
		store:  s,
		reader: rd,
		loop:   agent.New(llm, registry, s, cfg.Coach.MaxIterations),
	}, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <message>",
		Short: "Run one coaching turn",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(true)
			if err != nil {
				return err
			}
			defer eng.store.Close()

			eng.loop.OnCard = func(card domain.Card) {
				if raw, err := domain.EncodeCard(card); err == nil {
					fmt.Printf("card> %s\n", raw)
				}
			}

			result, err := eng.loop.RunTurn(cmd.Context(), userID, threadID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			logger.Info("turn complete",
				zap.Int("iterations", result.Iterations),
				zap.Int("cards", len(result.Cards)))
			fmt.Println(result.Answer)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Dump focus set, goals, and habit streaks",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(false)
			if err != nil {
				return err
			}
			defer eng.store.Close()
			return printStatus(cmd.Context(), eng)
		},
	}
}

func printStatus(ctx context.Context, eng *engine) error {
	focusView, err := eng.reader.Read(ctx, userID, reader.ScopeFocus, reader.Filters{})
	if err != nil {
		return err
	}
	fmt.Println("Focus:")
	if len(focusView.Focus.Items) == 0 {
		fmt.Println("  (none)")
	}
	for _, item := range focusView.Focus.Items {
		fmt.Printf("  %d. %s (%d%%)\n", item.Rank, item.Title, item.Progress)
	}

	goalsView, err := eng.reader.Read(ctx, userID, reader.ScopeGoals, reader.Filters{IncludeEmpty: true})
	if err != nil {
		return err
	}
	fmt.Println("Goals:")
	if len(goalsView.Goals) == 0 {
		fmt.Println("  (none)")
	}
	for _, g := range goalsView.Goals {
		fmt.Printf("  %s [%s] %d%% (streak %d, %d habits)\n", g.Title, g.Status, g.Progress, g.Streak, g.HabitCount)
	}

	habitsView, err := eng.reader.Read(ctx, userID, reader.ScopeHabits, reader.Filters{})
	if err != nil {
		return err
	}
	fmt.Println("Habits:")
	if len(habitsView.Habits) == 0 {
		fmt.Println("  (none)")
	}
	for _, h := range habitsView.Habits {
		mark := " "
		if h.CompletedToday {
			mark = "x"
		}
		fmt.Printf("  [%s] %s %d/%d (%s, streak %d, rate %.0f%%)\n",
			mark, h.Name, h.Current, h.Target, h.Frequency, h.Streak, h.CompletionRate*100)
	}
	return nil
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo goals and habits for local runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(false)
			if err != nil {
				return err
			}
			defer eng.store.Close()
			return seedDemo(cmd.Context(), eng.store)
		},
	}
}

// seedDemo creates a small, realistic data set: three goals across
// categories, each with habits, plus one insight.
func seedDemo(ctx context.Context, s *store.Store) error {
	metrics, err := s.SeedDefaultLifeMetrics(ctx, userID)
	if err != nil {
		return err
	}
	metricID := func(name string) string {
		for _, m := range metrics {
			if m.Name == name {
				return m.ID
			}
		}
		return ""
	}

	type demoGoal struct {
		title, description, metric string
		term                       domain.TermBucket
		habits                     []store.HabitSpec
	}
	demo := []demoGoal{
		{
			title: "Run a 10k", description: "Train up to a 10k race this fall",
			metric: "Health", term: domain.TermMedium,
			habits: []store.HabitSpec{
				{Name: "Morning run", Description: "Easy pace run", Frequency: domain.FrequencyDaily, PerPeriod: 1, Target: 30},
				{Name: "Stretching", Description: "Post-run mobility work", Frequency: domain.FrequencyDaily, PerPeriod: 1, Target: 30},
			},
		},
		{
			title: "Ship the side project", description: "Launch the landing page and first release",
			metric: "Career", term: domain.TermShort,
			habits: []store.HabitSpec{
				{Name: "Deep work block", Description: "90 minutes of focused work", Frequency: domain.FrequencyDaily, PerPeriod: 1, Target: 20},
			},
		},
		{
			title: "Save $3000", description: "Emergency fund",
			metric: "Finances", term: domain.TermLong,
			habits: []store.HabitSpec{
				{Name: "Review spending", Description: "Check budget and transfers", Frequency: domain.FrequencyWeekly, PerPeriod: 1, Target: 12},
			},
		},
	}

	for _, g := range demo {
		def := domain.GoalDefinition{
			UserID: userID, Title: g.title, Description: g.description,
			LifeMetricID: metricID(g.metric), Term: g.term,
		}
		if err := s.CreateGoalDefinition(ctx, &def); err != nil {
			return err
		}
		inst := domain.GoalInstance{DefinitionID: def.ID, UserID: userID}
		if err := s.CreateGoalInstance(ctx, &inst); err != nil {
			return err
		}
		for _, spec := range g.habits {
			hd := domain.HabitDefinition{UserID: userID, Name: spec.Name, Description: spec.Description, Active: true}
			if err := s.CreateHabitDefinition(ctx, &hd); err != nil {
				return err
			}
			hi := domain.HabitInstance{
				DefinitionID: hd.ID, GoalID: inst.ID,
				Target: spec.Target, Frequency: spec.Frequency, PerPeriod: spec.PerPeriod,
			}
			if err := s.CreateHabitInstance(ctx, &hi); err != nil {
				return err
			}
		}
		logger.Info("seeded goal", zap.String("title", g.title))
	}

	insight := domain.Insight{
		UserID: userID, Text: "Morning sessions stick better than evening ones", Confidence: 0.7,
	}
	if err := s.CreateInsight(ctx, &insight); err != nil {
		return err
	}

	fmt.Printf("Seeded %d goals for user %s\n", len(demo), userID)
	return nil
}
