// Command worker runs the OpenRelik Dissect worker: it registers the
// rdump and target-query tasks and consumes the worker queue until
// interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/openrelik/openrelik-worker-dissect/internal/config"
	"github.com/openrelik/openrelik-worker-dissect/internal/dissect"
	"github.com/openrelik/openrelik-worker-dissect/internal/logger"
	"github.com/openrelik/openrelik-worker-dissect/internal/proc"
	"github.com/openrelik/openrelik-worker-dissect/internal/task"
	"github.com/openrelik/openrelik-worker-dissect/internal/worker"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		logLevel string
		auditLog string
	)
	cmd := &cobra.Command{
		Use:           "openrelik-worker-dissect",
		Short:         "OpenRelik worker for the Dissect forensic tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), logLevel, auditLog)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	cmd.Flags().StringVar(&auditLog, "audit-log", "", "path of the NDJSON tool invocation audit log")
	return cmd
}

func run(ctx context.Context, logLevel, auditLog string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	log := logger.New(&logger.Config{
		Level:  logger.LogLevel(logLevel),
		Output: os.Stderr,
		JSON:   cfg.LogJSON,
	})

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}

	var audit proc.Sink = proc.NopSink{}
	if auditLog != "" {
		audit = proc.NewFileSink(auditLog)
	}
	runner := proc.NewExecRunner(audit)
	tools := dissect.NewToolset(runner)

	deps := task.Deps{Runner: runner, Tools: tools, Log: log}
	sink := dissect.SplunkSink{Host: cfg.SplunkHost, Port: cfg.SplunkPort}

	registry := task.NewRegistry()
	for _, t := range []*task.Task{
		task.NewRdumpJSONL(deps),
		task.NewRdumpSplunk(deps, sink),
		task.NewTargetQuery(deps),
	} {
		if err := registry.Register(t); err != nil {
			return err
		}
	}

	w := worker.New(client, registry, cfg.Queue, log)
	if err := w.RegisterTasks(ctx); err != nil {
		return fmt.Errorf("task registration failed: %w", err)
	}

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("worker stopped")
	return nil
}
