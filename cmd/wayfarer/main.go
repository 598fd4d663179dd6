package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rahul/wayfarer/internal/agent"
	"github.com/rahul/wayfarer/internal/api"
	"github.com/rahul/wayfarer/internal/observability"
	"github.com/rahul/wayfarer/internal/task"
	"github.com/rahul/wayfarer/pkg/config"
)

var (
	configPath string
	output     string
	planner    string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:           "wayfarer",
	Short:         "Browser agent that turns natural-language goals into web tasks",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and chat gateways",
	RunE:  runServe,
}

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run one task to completion and print it",
	Args:  cobra.ExactArgs(1),
	RunE:  runTask,
}

var planCmd = &cobra.Command{
	Use:   "plan <prompt>",
	Short: "Print the plan the agent would follow",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (JSON or YAML); defaults to ./config.json when present")
	rootCmd.PersistentFlags().StringVar(&planner, "planner", "", "planner to use: llm or heuristic")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "keep finished browser sessions open and log verbosely")
	for _, c := range []*cobra.Command{runCmd, planCmd} {
		c.Flags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")
	}
	rootCmd.AddCommand(serveCmd, runCmd, planCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if planner != "" {
		cfg.LLM.Planner = planner
	}
	if debug {
		cfg.Debug = true
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.PrintBanner(cmd.OutOrStdout(), cfg.App.Listen)

	scheduler := agent.NewScheduler(a.status, a.logger, 0)
	if cfg.Debug {
		scheduler.Out = cmd.ErrOrStderr()
	}
	go scheduler.Start(ctx)

	for _, l := range a.listeners {
		go func() {
			if err := l.Start(ctx); err != nil {
				a.logger.Error("gateway stopped", "error", err)
			}
		}()
	}

	srv := api.NewServer(a.manager, api.Options{
		Actor:       a.agent,
		Transcripts: transcriptLog(a),
		Answerer:    a.gateway,
		Templates:   a.prompts,
		Gatherer:    a.registry,
		Status:      a.status,
		Logger:      a.logger,
		Debug:       cfg.Debug,
	})
	serveErr := srv.Run(ctx, cfg.App.Listen)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.manager.Close(shutdownCtx); err != nil {
		a.logger.Warn("task shutdown incomplete", "error", err)
	}
	if errors.Is(serveErr, context.Canceled) {
		return nil
	}
	return serveErr
}

// transcriptLog avoids handing the server a typed nil store.
func transcriptLog(a *app) api.TranscriptLog {
	if a.transcripts == nil {
		return nil
	}
	return a.transcripts
}

func runTask(cmd *cobra.Command, args []string) error {
	if err := checkOutput(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := a.manager.Create(task.Spec{Query: args[0], Prompt: args[0], IsWebTask: true})
	if _, err := a.manager.Start(t.ID()); err != nil {
		return err
	}
	waitTerminal(ctx, a.manager, t)

	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = a.manager.Close(closeCtx)

	if err := write(cmd.OutOrStdout(), t.Snapshot()); err != nil {
		return err
	}
	if t.Status() == task.StatusFailed {
		msg, _ := t.Error()
		return fmt.Errorf("task failed: %s", msg)
	}
	return nil
}

// waitTerminal polls until the task's run ends. Interrupting stops the task.
func waitTerminal(ctx context.Context, m *task.Manager, t *task.Task) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for !t.Status().Terminal() {
		select {
		case <-ctx.Done():
			_, _ = m.Stop(t.ID())
			return
		case <-ticker.C:
		}
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	if err := checkOutput(); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.close()

	p, fromModel, err := a.agent.Plan(cmd.Context(), "cli", args[0])
	if err != nil {
		return err
	}
	return write(cmd.OutOrStdout(), map[string]any{"plan": p, "fromModel": fromModel})
}

func checkOutput() error {
	if output != "json" && output != "yaml" {
		return fmt.Errorf("unknown output format %q", output)
	}
	return nil
}

// write renders v with its JSON field names in the selected format.
func write(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if output == "json" {
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}
