package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/seantiz/compute/internal/config"
	"github.com/seantiz/compute/internal/engine"
	"github.com/seantiz/compute/internal/model"
	"github.com/seantiz/compute/internal/payload"
	"github.com/seantiz/compute/internal/program"
	"github.com/seantiz/compute/internal/report"
	"github.com/seantiz/compute/internal/store"
	"github.com/seantiz/compute/internal/tracing"
)

func (a *app) run(cmd *cobra.Command, args []string) error {
	cfg, err := a.load()
	if err != nil {
		return err
	}

	sink := cfg.LogSink()
	defer sink.Close()
	logger := config.NewLogger(sink, cfg.Level(), cfg.LogFormat)

	outFormat, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return withExitCode(exitInvalidConfig, err)
	}

	path := ""
	if len(args) == 1 && args[0] != "-" {
		path = args[0]
	}
	progFormat := program.FormatForPath(path)
	if cfg.ProgramFormat != "" {
		if progFormat, err = program.ParseFormat(cfg.ProgramFormat); err != nil {
			return withExitCode(exitInvalidConfig, err)
		}
	}

	engCfg := engine.Config{
		Workers:       cfg.Threads,
		QueueSize:     cfg.QueueSize,
		FaultPolicy:   engine.FaultPolicy(cfg.FaultPolicy),
		DispatchRate:  cfg.DispatchRate,
		DispatchBurst: cfg.DispatchBurst,
		ProgramFormat: progFormat,
	}
	if err := engCfg.Validate(); err != nil {
		return withExitCode(exitInvalidConfig, err)
	}

	var opts []engine.Option

	if cfg.Trace {
		shutdown, err := tracing.Init(cmd.ErrOrStderr(), "compute", version)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to flush traces", "error", err)
			}
		}()
	}

	var registry *prometheus.Registry
	if cfg.MetricsFile != "" {
		registry = prometheus.NewRegistry()
		opts = append(opts, engine.WithMetrics(engine.NewMetrics(registry)))
	}

	if cfg.DBPath != "" {
		s, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()
		opts = append(opts, engine.WithStore(s))
	}

	reg := payload.NewDefaultRegistry(payload.StubOptions{StepDelay: cfg.StepDelay})
	ctrl, err := engine.New(engCfg, reg, logger, opts...)
	if err != nil {
		return withExitCode(exitInvalidConfig, err)
	}
	defer ctrl.Close()

	src, closeSrc, err := openProgram(cmd, path)
	if err != nil {
		return err
	}
	defer closeSrc()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	unsubscribe := func() {}
	if cfg.Progress {
		var results <-chan model.Result
		results, unsubscribe = ctrl.Subscribe()
		wg.Go(func() { printProgress(cmd.ErrOrStderr(), results) })
	}

	rep, runErr := ctrl.Run(ctx, src)
	unsubscribe()
	wg.Wait()

	if registry != nil {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, registry); err != nil {
			logger.Error("failed to write metrics file", "path", cfg.MetricsFile, "error", err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, program.ErrMalformedProgram) {
			return withExitCode(exitLoadFailure, runErr)
		}
		if rep == nil {
			return runErr
		}
	}

	if rep.Aborted {
		logger.Warn("run aborted", "run_id", rep.RunID, "not_run", rep.NotRun)
	}
	if err := report.Write(cmd.OutOrStdout(), rep, outFormat); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return runErr
}

// openProgram opens path, or stdin when path is empty.
func openProgram(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, withExitCode(exitLoadFailure, fmt.Errorf("open program: %w", err))
	}
	return f, func() { f.Close() }, nil
}

func printProgress(w io.Writer, results <-chan model.Result) {
	for r := range results {
		switch r.Status {
		case model.StatusSucceeded:
			fmt.Fprintf(w, "task %d %s %s on worker %d: %s\n", r.TaskID, r.Kind, r.Status, r.WorkerID, r.Output)
		default:
			fmt.Fprintf(w, "task %d %s %s: %s\n", r.TaskID, r.Kind, r.Status, r.Reason)
		}
	}
}
