package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"docintel/internal/agent"
	"docintel/internal/config"
	"docintel/internal/logger"
	"docintel/internal/server"
	"docintel/internal/service"
	"docintel/internal/tui"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "docintel",
		Short:         "Question answering over your documents with a verifying agent",
		Version:       server.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (defaults to ~/.config/docintel/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit logs as JSON")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newIngestCommand(opts))
	cmd.AddCommand(newAskCommand(opts))
	cmd.AddCommand(newTUICommand(opts))
	return cmd
}

func (o *rootOptions) load(ctx context.Context, logOut io.Writer) (*app, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if o.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(o.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	log := logger.New(&logger.Config{Level: level, JSON: cfg.Log.JSON || o.logJSON, Output: logOut})
	return buildApp(ctx, cfg, log)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve [files...]",
		Short: "Start the HTTP API, optionally ingesting files first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			a, err := opts.load(ctx, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) > 0 {
				if _, err := a.svc.IngestPaths(ctx, args); err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			gin.SetMode(gin.ReleaseMode)
			return server.New(a.svc, a.log.With("component", "server"), a.registry).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func newIngestCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <files...>",
		Short: "Chunk, embed and store documents (persistent vector stores only)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			a, err := opts.load(ctx, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.VectorStore.Type == "memory" {
				a.log.Warn("memory vector store does not outlive this process; use ask --ingest or serve instead")
			}
			results, err := a.svc.IngestPaths(ctx, args)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintf(out, "%s\t%s\t%d chunks\n", r.DocID, r.Status, r.ChunksStored)
			}
			return nil
		},
	}
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	var (
		ingest []string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and print the quality signals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			a, err := opts.load(ctx, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()
			if len(ingest) > 0 {
				if _, err := a.svc.IngestPaths(ctx, ingest); err != nil {
					return fmt.Errorf("ingest failed: %w", err)
				}
			}
			st, err := a.svc.Query(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), st, asJSON)
		},
	}
	cmd.Flags().StringSliceVar(&ingest, "ingest", nil, "Files or globs to ingest before answering")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full agent state as JSON")
	return cmd
}

func printState(w io.Writer, st *agent.State, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	path := make([]string, len(st.Path))
	for i, p := range st.Path {
		path[i] = p.String()
	}
	fmt.Fprintln(w, st.Answer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "confidence:     %.2f\n", st.AnswerConfidence)
	fmt.Fprintf(w, "retrieval:      %.3f\n", st.RetrievalScore)
	fmt.Fprintf(w, "hallucination:  %t\n", st.HasHallucination)
	fmt.Fprintf(w, "steps:          %d (%s)\n", st.StepCount, strings.Join(path, " -> "))
	for i, c := range st.RetrievedChunks {
		fmt.Fprintf(w, "[Source %d] %s#%d score=%.3f\n", i+1, c.DocID, c.ChunkID, c.Score)
	}
	return nil
}

func newTUICommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui <files...>",
		Short: "Ingest files and ask questions interactively",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// Logs would corrupt the alt screen.
			a, err := opts.load(ctx, io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()
			results, err := a.svc.IngestPaths(ctx, args)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			m := tui.New(a.svc, summarize(results), a.cfg.Resilience.Timeout()*3)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}

func summarize(results []*service.IngestResult) string {
	chunks := 0
	var parts []string
	for _, r := range results {
		chunks += r.ChunksStored
		if r.Summary != "" {
			parts = append(parts, r.Summary)
		}
	}
	head := fmt.Sprintf("%d documents, %d chunks.", len(results), chunks)
	if len(parts) == 0 {
		return head
	}
	return head + " " + strings.Join(parts, " ")
}
