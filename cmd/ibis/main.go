// Package main provides the ibis CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/ibis/internal/config"
	"github.com/ChamsBouzaiene/ibis/internal/engine"
	"github.com/ChamsBouzaiene/ibis/internal/fetch"
	"github.com/ChamsBouzaiene/ibis/internal/providers"
	"github.com/ChamsBouzaiene/ibis/internal/sandbox"
	"github.com/ChamsBouzaiene/ibis/internal/search"
	"github.com/ChamsBouzaiene/ibis/internal/store"
)

var verbose bool

func main() {
	// Load .env if present; a missing file is the normal case.
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "ibis",
		Short: "Bounded deep-research agent",
		Long: `ibis researches a question through an iterative search / read /
reflect / answer loop, within hard token and step limits, and returns a
cited answer.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show step-by-step progress")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(runsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var maxSteps int
	var tokenBudget int
	var forceFinalize bool
	var noArchive bool
	var noSandbox bool

	cmd := &cobra.Command{
		Use:   "run [question]",
		Short: "Research a question and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuestion(cmd.Context(), args[0], maxSteps, tokenBudget, forceFinalize, noArchive, noSandbox)
		},
	}

	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Step cap for the run (0 = configured default)")
	cmd.Flags().IntVar(&tokenBudget, "budget", 0, "Token budget for the run (0 = configured default)")
	cmd.Flags().BoolVar(&forceFinalize, "force-finalize", false, "Answer immediately from gathered knowledge, no further research")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "Skip archiving the run to the local database")
	cmd.Flags().BoolVar(&noSandbox, "no-coding", false, "Disable the coding action entirely")

	return cmd
}

func runQuestion(ctx context.Context, question string, maxSteps, tokenBudget int, forceFinalize, noArchive, noSandbox bool) error {
	mgr, err := config.NewManager()
	if err != nil {
		return err
	}
	userCfg, err := mgr.Load()
	if err != nil {
		return err
	}
	userCfg.ApplyToEnv()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm, modelName, err := providers.NewLLMClientFromEnv(ctx)
	if err != nil {
		return err
	}
	searcher, searchName := search.NewProviderFromEnv()

	runCfg := engine.DefaultRunConfig()
	runCfg.Decision.Model = modelName
	runCfg.Evaluation.Model = modelName
	runCfg.Summary.Model = modelName
	if userCfg.MaxSteps > 0 {
		runCfg.MaxSteps = userCfg.MaxSteps
	}
	if userCfg.TokenBudget > 0 {
		runCfg.TokenBudget = userCfg.TokenBudget
	}
	if maxSteps > 0 {
		runCfg.MaxSteps = maxSteps
	}
	if tokenBudget > 0 {
		runCfg.TokenBudget = tokenBudget
	}
	runCfg.ForcedFinalization = forceFinalize

	deps := engine.Deps{
		LLM:     llm,
		Search:  searcher,
		Fetcher: fetch.NewHTTP(),
	}
	if !noSandbox {
		deps.Runner = sandbox.NewSnippetRunner(runCfg.StepTimeout)
	}

	var hooks []engine.Hook
	var eventsDone chan struct{}
	if verbose {
		fmt.Fprintf(os.Stderr, "model=%s search=%s max_steps=%d budget=%d\n",
			modelName, searchName, runCfg.MaxSteps, runCfg.TokenBudget)
		events := make(chan engine.Event, 64)
		eventsDone = make(chan struct{})
		go printEvents(events, eventsDone)
		defer func() {
			close(events)
			<-eventsDone
		}()
		hooks = append(hooks, engine.ChannelHook{Ch: events})
	}

	agent, err := engine.NewAgent(deps, runCfg, hooks...)
	if err != nil {
		return err
	}

	result, err := agent.Run(ctx, question)
	if err != nil && result.Status != engine.StatusCancelled {
		return err
	}

	fmt.Println(result.Answer)
	if len(result.References) > 0 {
		fmt.Println("\nReferences:")
		for _, ref := range result.References {
			fmt.Printf("  - %s\n", ref)
		}
	}
	fmt.Fprintf(os.Stderr, "\n[%s/%s] steps=%d knowledge=%d tokens=%d\n",
		result.Status, result.Termination, result.Steps, result.KnowledgeItems, result.Usage.Total)

	if !noArchive && result.Status != engine.StatusCancelled {
		if archiveErr := archiveRun(mgr, question, result); archiveErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to archive run: %v\n", archiveErr)
		}
	}
	return nil
}

func archiveRun(mgr *config.Manager, question string, result engine.Result) error {
	dataDir, err := mgr.GetDataDir()
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, err := store.NewDB(ctx, filepath.Join(dataDir, "ibis.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.SaveRun(ctx, question, result, result.Knowledge)
	return err
}

func printEvents(events <-chan engine.Event, done chan<- struct{}) {
	defer close(done)
	for e := range events {
		switch e.Kind {
		case "step_started":
			fmt.Fprintf(os.Stderr, "-- step %v\n", e.Data)
		case "action_decided":
			fmt.Fprintf(os.Stderr, "   decide: %v\n", e.Data)
		case "action_completed":
			fmt.Fprintf(os.Stderr, "   done:   %v\n", e.Data)
		case "fallback":
			fmt.Fprintf(os.Stderr, "   fallback: %v\n", e.Data)
		case "retry_attempt":
			fmt.Fprintf(os.Stderr, "   retry:  %v\n", e.Data)
		}
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage persisted settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager()
			if err != nil {
				return err
			}
			cfg, err := mgr.Load()
			if err != nil {
				return err
			}
			fmt.Printf("path: %s\n", mgr.GetConfigPath())
			fmt.Printf("llm_provider: %s\n", cfg.LLMProvider)
			fmt.Printf("model: %s\n", cfg.Model)
			fmt.Printf("search_provider: %s\n", cfg.SearchProvider)
			fmt.Printf("max_steps: %d\n", cfg.MaxSteps)
			fmt.Printf("token_budget: %d\n", cfg.TokenBudget)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set one configuration key (llm_provider, api_key, model, search_provider, search_api_key)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager()
			if err != nil {
				return err
			}
			cfg, err := mgr.Load()
			if err != nil {
				return err
			}
			switch args[0] {
			case "llm_provider":
				cfg.LLMProvider = args[1]
			case "api_key":
				cfg.APIKey = args[1]
			case "model":
				cfg.Model = args[1]
			case "base_url":
				cfg.BaseURL = args[1]
			case "search_provider":
				cfg.SearchProvider = args[1]
			case "search_api_key":
				cfg.SearchAPIKey = args[1]
			default:
				return fmt.Errorf("unknown config key: %s", args[0])
			}
			return mgr.Save(cfg)
		},
	})

	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Browse archived runs",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openArchive()
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range records {
				fmt.Printf("%s  %s  [%s/%s] steps=%d\n    %s\n",
					r.ID[:8], r.CreatedAt.Format("2006-01-02 15:04"),
					r.Status, r.Termination, r.Steps, truncateLine(r.Question, 100))
			}
			return nil
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "show [run-id-prefix]",
		Short: "Show one archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openArchive()
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.ListRuns(cmd.Context(), 0)
			if err != nil {
				return err
			}
			for _, r := range records {
				if strings.HasPrefix(r.ID, args[0]) {
					full, items, err := db.GetRun(cmd.Context(), r.ID)
					if err != nil {
						return err
					}
					fmt.Printf("question: %s\nstatus: %s/%s  steps=%d  tokens=%d\n\n%s\n",
						full.Question, full.Status, full.Termination, full.Steps, full.TokensTotal, full.Answer)
					for _, item := range items {
						fmt.Printf("\n[%s] %s\n", item.SourceID, truncateLine(item.Summary, 200))
					}
					return nil
				}
			}
			return fmt.Errorf("no archived run matches %q", args[0])
		},
	})

	return cmd
}

func openArchive() (*store.DB, error) {
	mgr, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	dataDir, err := mgr.GetDataDir()
	if err != nil {
		return nil, err
	}
	return store.NewDB(context.Background(), filepath.Join(dataDir, "ibis.db"))
}

func truncateLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
