package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/torosent/echobench/internal/baseline"
	"github.com/torosent/echobench/internal/bench"
	"github.com/torosent/echobench/internal/clock"
	"github.com/torosent/echobench/internal/config"
	"github.com/torosent/echobench/internal/dashboard"
	"github.com/torosent/echobench/internal/logging"
	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/output"
	"github.com/torosent/echobench/internal/runner"
	"github.com/torosent/echobench/internal/threshold"
	"github.com/torosent/echobench/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func runSuite(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	var base *baseline.Baseline
	if cfg.Baseline != "" {
		b, err := baseline.Load(cfg.Baseline)
		if err != nil {
			return err
		}
		base = &b
	}

	src, err := clock.New(string(cfg.Clock))
	if err != nil {
		return err
	}

	suiteID := output.NewRunID()
	tp, err := tracing.Init(ctx, cfg.Tracing, tracing.Suite{
		ID:        suiteID,
		Transport: string(cfg.Transport),
		Endpoint:  cfg.Endpoint,
		Clock:     string(cfg.Clock),
		Sizes:     cfg.Sizes,
		Samples:   cfg.Samples,
		Rate:      cfg.Rate,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			logging.Warnf("tracing shutdown: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	participant, closeParticipant, err := openSuite(ctx, cfg, tp.ShouldPropagate())
	if err != nil {
		return err
	}
	defer closeParticipant()

	seed := cfg.Arrival.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	pacer := runner.NewPacer(runner.PacerOptions{
		RatePerSecond: cfg.Rate,
		Model:         runner.ArrivalModel(cfg.Arrival.Model),
		RandomSeed:    seed,
	})

	collector := metrics.NewCollector()
	h, err := bench.New(ctx, bench.Options{
		Participant:      participant,
		OutboundTopic:    cfg.OutboundTopic,
		InboundTopic:     cfg.InboundTopic,
		Clock:            src,
		CalibrationReads: cfg.CalibrationReads,
		MatchTimeout:     cfg.MatchTimeout,
		ReplyTimeout:     cfg.ReplyTimeout,
		Pacer:            pacer,
		Collector:        collector,
		Tracer:           tp.Tracer(),
	})
	if err != nil {
		return err
	}
	defer h.Close()
	logging.Infof("%s transport ready, clock overhead %s", cfg.Transport, h.Overhead())

	stopUI := func() {}
	if cfg.Dashboard {
		dash, err := dashboard.New(collector, h.History, dashboardSettings(cfg), cancel)
		if err != nil {
			return err
		}
		dash.Start()
		stopUI = dash.Stop
	} else if cfg.Progress {
		progress := output.NewProgressReporter(collector, progressInterval, stderr)
		progress.Start()
		stopUI = progress.Stop
	}

	// CSV lines go out as each size completes, unless the dashboard owns the terminal.
	stream := cfg.Output == config.OutputCSV && !cfg.Dashboard
	var streamErr error
	if stream {
		if _, err := io.WriteString(stdout, output.Header+"\n"); err != nil {
			stopUI()
			return err
		}
	}

	r := runner.New(runner.Options{
		Sizes:     cfg.Sizes,
		Samples:   cfg.Samples,
		Duration:  cfg.Duration,
		FailFast:  cfg.FailFast,
		Benchmark: runner.WithLogging(h, runner.LogrusFailureLogger),
		OnRun: func(run runner.RunResult) {
			if run.Err != nil {
				return
			}
			line := output.FormatLine(run.Stats)
			logging.Debugf("%dB run finished in %s: %s", run.Size, run.Duration.Round(time.Millisecond), line)
			if stream && streamErr == nil {
				_, streamErr = io.WriteString(stdout, line+"\n")
			}
		},
	})
	result := r.Run(ctx)
	stopUI()
	if streamErr != nil {
		return streamErr
	}

	report := buildReport(suiteID, cfg, result, h)
	if m, ok := participant.(metered); ok {
		report.Client = m.Metrics()
	}
	if len(thresholds) > 0 {
		report.Thresholds = threshold.NewEvaluator(thresholds).Evaluate(threshold.Suite{
			Runs:   report.Runs,
			Failed: len(report.Failures),
		})
	}
	if base != nil {
		report.Baseline = base.Compare(report.Runs, cfg.MaxRegression)
	}

	if !stream {
		if err := output.Write(stdout, string(cfg.Output), report); err != nil {
			return err
		}
	}
	if cfg.HTMLOutput != "" {
		if err := writeHTML(cfg.HTMLOutput, report); err != nil {
			return err
		}
	}
	if cfg.HistoryFile != "" {
		entries := output.HistoryEntries(suiteID, string(cfg.Transport), cfg.Samples, report.Runs, report.GeneratedAt)
		if err := output.AppendHistory(cfg.HistoryFile, entries); err != nil {
			return err
		}
	}

	return suiteError(result, report)
}

// buildReport collects everything the suite produced.
func buildReport(suiteID string, cfg *config.Config, result runner.Result, h *bench.Harness) output.Report {
	report := output.Report{
		RunID:         suiteID,
		GeneratedAt:   time.Now().UTC(),
		Transport:     string(cfg.Transport),
		Samples:       cfg.Samples,
		ClockOverhead: h.Overhead(),
		Duration:      result.Duration,
		Runs:          result.Stats(),
		Distributions: h.Distributions(),
		Skipped:       result.Skipped,
		Strays:        h.Strays(),
	}
	for _, run := range result.Failures() {
		report.Failures = append(report.Failures, failureOf(run))
	}
	return report
}

func failureOf(run runner.RunResult) output.Failure {
	f := output.Failure{
		Size:  run.Size,
		Kind:  bench.Kind(run.Err),
		Error: run.Err.Error(),
	}
	var re *bench.RunError
	if errors.As(run.Err, &re) {
		f.Sample = re.Sample
	}
	return f
}

// suiteError explains why the suite did not pass, or returns nil.
func suiteError(result runner.Result, report output.Report) error {
	var problems []string
	if n := len(report.Failures); n > 0 {
		problems = append(problems, fmt.Sprintf("%d runs failed", n))
	}
	if n := len(result.Skipped); n > 0 {
		problems = append(problems, fmt.Sprintf("%d sizes skipped", n))
	}
	if !threshold.Passed(report.Thresholds) {
		failed := 0
		for _, r := range report.Thresholds {
			if !r.Pass {
				failed++
			}
		}
		problems = append(problems, fmt.Sprintf("%d threshold checks failed", failed))
	}
	if n := baseline.Regressions(report.Baseline); n > 0 {
		problems = append(problems, fmt.Sprintf("%d sizes regressed against the baseline", n))
	}
	if result.Stopped != nil {
		problems = append(problems, "stopped: "+result.Stopped.Error())
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

func writeHTML(path string, report output.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	if err := output.GenerateHTMLReport(f, report); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func dashboardSettings(cfg *config.Config) dashboard.Settings {
	return dashboard.Settings{
		Transport:    string(cfg.Transport),
		Endpoint:     cfg.Endpoint,
		Sizes:        cfg.Sizes,
		Samples:      cfg.Samples,
		Rate:         cfg.Rate,
		ReplyTimeout: cfg.ReplyTimeout,
		Clock:        string(cfg.Clock),
		ConfigFile:   cfg.ConfigFile,
	}
}
