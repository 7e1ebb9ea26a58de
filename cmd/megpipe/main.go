package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/megpipe/pkg/checkpoint"
	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline"
	"github.com/ravi-parthasarathy/megpipe/pkg/pipeline/stages"
	"github.com/ravi-parthasarathy/megpipe/pkg/runlog"
)

func main() {
	// Optional .env with lab-wide defaults (store dir, run-log path).
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)
	root := &cobra.Command{
		Use:   "megpipe",
		Short: "megpipe — MEG/EEG preprocessing pipeline runner",
		Long: `megpipe executes DOT-graph preprocessing pipelines over raw MEG/EEG
recordings: import, event extraction, filtering, artifact cleaning,
epoching, and per-condition averaging, with named checkpoints so a
failed run can resume where it stopped.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return initLogger(logLevel, logFormat)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	root.AddCommand(runCmd())
	root.AddCommand(resumeCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	return root
}

// ─── run ──────────────────────────────────────────────────────────────────────

func runCmd() *cobra.Command {
	var (
		subject  string
		session  string
		storeDir string
		logDB    string
		params   []string
	)

	cmd := &cobra.Command{
		Use:   "run <pipeline.dot>",
		Short: "Execute a pipeline over one subject/session from the beginning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executePipeline(cmd.Context(), args[0], subject, session, storeDir, logDB, params, "")
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "subject identifier (required)")
	cmd.Flags().StringVar(&session, "session", "", "session identifier (required)")
	cmd.Flags().StringVar(&storeDir, "store", envOr("MEGPIPE_STORE_DIR", "checkpoints"), "checkpoint directory")
	cmd.Flags().StringVar(&logDB, "runlog", os.Getenv("MEGPIPE_RUNLOG"), "sqlite run-log path (optional)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "run parameter key=value (repeatable)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// ─── resume ───────────────────────────────────────────────────────────────────

func resumeCmd() *cobra.Command {
	var (
		subject  string
		session  string
		storeDir string
		logDB    string
		params   []string
	)

	cmd := &cobra.Command{
		Use:   "resume <pipeline.dot> <checkpoint-name>",
		Short: "Resume a pipeline from a named checkpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executePipeline(cmd.Context(), args[0], subject, session, storeDir, logDB, params, args[1])
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "subject identifier (required)")
	cmd.Flags().StringVar(&session, "session", "", "session identifier (required)")
	cmd.Flags().StringVar(&storeDir, "store", envOr("MEGPIPE_STORE_DIR", "checkpoints"), "checkpoint directory")
	cmd.Flags().StringVar(&logDB, "runlog", os.Getenv("MEGPIPE_RUNLOG"), "sqlite run-log path (optional)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "run parameter key=value (repeatable)")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// ─── batch ────────────────────────────────────────────────────────────────────

func batchCmd() *cobra.Command {
	var (
		subjects string
		session  string
		storeDir string
		logDB    string
		params   []string
	)

	cmd := &cobra.Command{
		Use:   "batch <pipeline.dot>",
		Short: "Run a pipeline over several subjects concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPipeline(args[0])
			if err != nil {
				return err
			}
			runParams, err := parseParams(params)
			if err != nil {
				return err
			}
			runParams["pipeline"] = p.Name

			var rl pipeline.RunLog
			if logDB != "" {
				db, err := runlog.Open(logDB)
				if err != nil {
					return err
				}
				defer db.Close()
				rl = db
			}

			var items []pipeline.BatchItem
			for _, s := range strings.Split(subjects, ",") {
				if s = strings.TrimSpace(s); s != "" {
					items = append(items, pipeline.BatchItem{Subject: s, Session: session})
				}
			}
			if len(items) == 0 {
				return fmt.Errorf("no subjects given")
			}

			build := func(item pipeline.BatchItem) (*pipeline.Engine, *pipeline.Run, error) {
				store, err := checkpoint.NewFileStore(storeDir, item.Subject, item.Session)
				if err != nil {
					return nil, nil, err
				}
				opts := []pipeline.Option{}
				if rl != nil {
					opts = append(opts, pipeline.WithRunLog(rl))
				}
				eng, err := pipeline.NewEngine(p, stages.NewDefaultRegistry(stages.Deps{}), store, opts...)
				if err != nil {
					return nil, nil, err
				}
				itemParams := make(map[string]string, len(runParams))
				for k, v := range runParams {
					itemParams[k] = v
				}
				return eng, pipeline.NewRun(item.Subject, item.Session, itemParams), nil
			}

			ctx := signalContext(cmd.Context())
			results := pipeline.RunBatch(ctx, items, build)

			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					fmt.Printf("FAIL  %s/%s: %v\n", res.Item.Subject, res.Item.Session, res.Err)
					continue
				}
				fmt.Printf("OK    %s/%s (%d stages)\n", res.Item.Subject, res.Item.Session, len(res.Report.StagesRun))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d runs failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&subjects, "subjects", "", "comma-separated subject identifiers (required)")
	cmd.Flags().StringVar(&session, "session", "", "session identifier (required)")
	cmd.Flags().StringVar(&storeDir, "store", envOr("MEGPIPE_STORE_DIR", "checkpoints"), "checkpoint directory")
	cmd.Flags().StringVar(&logDB, "runlog", os.Getenv("MEGPIPE_RUNLOG"), "sqlite run-log path (optional)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "run parameter key=value (repeatable)")
	_ = cmd.MarkFlagRequired("subjects")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <pipeline.dot>",
		Short: "Validate a pipeline DOT file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			p, err := pipeline.ParseDOT(string(src))
			if err != nil {
				return fmt.Errorf("parse: %w", err)
			}
			pipeline.ApplyStylesheet(p)
			if lintErr := pipeline.ValidateErr(p); lintErr != nil {
				return lintErr
			}
			if paramErr := pipeline.ValidateParams(p); paramErr != nil {
				return paramErr
			}
			fmt.Printf("OK: pipeline %q is valid (%d stages, %d edges)\n",
				p.Name, len(p.Nodes), len(p.Edges))
			return nil
		},
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func executePipeline(
	ctx context.Context,
	dotFile, subject, session, storeDir, logDB string,
	params []string,
	fromCheckpoint string,
) error {
	p, err := loadPipeline(dotFile)
	if err != nil {
		return err
	}
	runParams, err := parseParams(params)
	if err != nil {
		return err
	}
	runParams["pipeline"] = p.Name

	store, err := checkpoint.NewFileStore(storeDir, subject, session)
	if err != nil {
		return err
	}

	var opts []pipeline.Option
	if logDB != "" {
		db, err := runlog.Open(logDB)
		if err != nil {
			return err
		}
		defer db.Close()
		opts = append(opts, pipeline.WithRunLog(db))
	}

	eng, err := pipeline.NewEngine(p, stages.NewDefaultRegistry(stages.Deps{}), store, opts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	run := pipeline.NewRun(subject, session, runParams)
	report, err := eng.Execute(signalContext(ctx), run, fromCheckpoint)
	if err != nil {
		if report != nil && report.LastCheckpoint != "" {
			slog.Info("run can be resumed",
				"checkpoint", report.LastCheckpoint, "path", report.CheckpointPath)
		}
		return err
	}
	fmt.Printf("run %s complete: %d stages\n", report.RunID, len(report.StagesRun))
	return nil
}

// loadPipeline reads, parses, lints, and applies stylesheet defaults.
func loadPipeline(dotFile string) (*pipeline.Pipeline, error) {
	src, err := os.ReadFile(dotFile)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file: %w", err)
	}
	p, err := pipeline.ParseDOT(string(src))
	if err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	pipeline.ApplyStylesheet(p)
	if lintErr := pipeline.ValidateErr(p); lintErr != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", lintErr)
	}
	return p, nil
}

// parseParams converts repeated key=value flags into a parameter map.
func parseParams(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed --param %q (want key=value)", pair)
		}
		out[k] = v
	}
	return out, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[megpipe] interrupted — cancelling run")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
