package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/config"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/events"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/history"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/ledger"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/metrics"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/mutate"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/orchestrator"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/policy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/uptime"
)

// #region run-cmd
var (
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one or more self-healing cycles",
		Args:  cobra.NoArgs,
		RunE:  runCycles,
	}
	runOpts runFlags
)

type runFlags struct {
	dataset      string
	failType     string
	forceAnomaly bool
	planner      string
	train        bool
	rater        string
	cycles       int
	every        time.Duration
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.dataset, "dataset", "", "dataset to mutate and monitor (overrides paths.dataset)")
	f.StringVar(&runOpts.failType, "fail-type", "", "inject a deployment failure: crash|latency")
	f.BoolVar(&runOpts.forceAnomaly, "force-anomaly", false, "append anomalous rows instead of normal ones")
	f.StringVar(&runOpts.planner, "policy", "random", "remediation planner: random|learned")
	f.BoolVar(&runOpts.train, "train", false, "try every untried action of a state before exploiting (learned only)")
	f.StringVar(&runOpts.rater, "rater", string(feedback.KindSimulated), "feedback rater: simulated|terminal|deferred (deferred learns from outcomes; selfheal feedback adds one late rating)")
	f.IntVar(&runOpts.cycles, "cycles", 1, "number of cycles; with --every, 0 runs until interrupted")
	f.DurationVar(&runOpts.every, "every", 0, "run on a schedule (cron @every); cycles never overlap")
}

func runCycles(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if runOpts.dataset != "" {
		cfg.Paths.Dataset = runOpts.dataset
	}
	failType, err := deploy.ParseFailureMode(runOpts.failType)
	if err != nil {
		return err
	}
	sc := orchestrator.Scenario{Dataset: cfg.Paths.Dataset, FailType: failType, ForceAnomaly: runOpts.forceAnomaly}

	p, err := buildPipeline(ctx, cfg, runOpts, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	if runOpts.every <= 0 {
		for i := 0; i < max(runOpts.cycles, 1); i++ {
			rep, err := p.orch.RunCycle(ctx, sc)
			printReport(out, rep)
			if err != nil {
				return err
			}
		}
		return nil
	}

	cycles := runOpts.cycles
	if !cmd.Flags().Changed("cycles") {
		cycles = 0
	}
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(c *config.Config) {
				p.orch.SetThresholds(failure.ThresholdsFromMap(c.Thresholds, logger))
			}, logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("config watch stopped", "err", err)
			}
		}()
	}
	return schedule(ctx, p.orch, sc, runOpts.every, cycles, out, logger)
}

// schedule runs a cycle every interval until ctx ends or limit cycles completed (0 = no limit).
func schedule(ctx context.Context, orch *orchestrator.Orchestrator, sc orchestrator.Scenario, every time.Duration, limit int, out io.Writer, logger *slog.Logger) error {
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))

	var (
		ran  atomic.Int64
		once sync.Once
		done = make(chan struct{})
	)
	_, err := c.AddFunc("@every "+every.String(), func() {
		rep, err := orch.RunCycle(ctx, sc)
		printReport(out, rep)
		if err != nil {
			logger.Warn("cycle interrupted", "err", err)
			return
		}
		if limit > 0 && ran.Add(1) >= int64(limit) {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return fmt.Errorf("schedule every %s: %w", every, err)
	}

	logger.Info("scheduler started", "every", every.String(), "cycles", limit)
	c.Start()
	select {
	case <-ctx.Done():
	case <-done:
	}
	<-c.Stop().Done()
	logger.Info("scheduler stopped", "cycles", ran.Load())
	return nil
}

// #endregion run-cmd

// #region pipeline

// pipeline owns everything a run opens.
type pipeline struct {
	orch    *orchestrator.Orchestrator
	closers []io.Closer
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i].Close()
	}
}

func buildPipeline(ctx context.Context, cfg *config.Config, fl runFlags, logger *slog.Logger) (*pipeline, error) {
	p := &pipeline{}
	rng := newRand(cfg.Policy.Seed)

	simCfg := deploy.SimulatedConfig{
		Timeout:        cfg.Deploy.Timeout,
		CrashDelay:     cfg.Deploy.CrashDelay,
		LatencyPenalty: cfg.Deploy.LatencyPenalty,
		SimulateDelays: cfg.Deploy.SimulateDelays,
	}
	var trigger deploy.Trigger = deploy.NewSimulated(simCfg)
	if cfg.Deploy.ProbeAddr != "" {
		probe, err := deploy.NewHealthProbe(cfg.Deploy.ProbeAddr, cfg.Deploy.ProbeService, simCfg)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, probe)
		trigger = probe
		logger.Info("deploying through grpc health probe", "addr", cfg.Deploy.ProbeAddr, "service", cfg.Deploy.ProbeService)
	}

	ledgers := ledger.Open(cfg.Paths.LogDir)
	mon, err := uptime.Open(ledgers.Uptime, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	planner, pending, err := buildPlanner(cfg, fl, rng, ledgers, logger)
	if err != nil {
		p.Close()
		return nil, err
	}

	kind, err := feedback.ParseKind(fl.rater)
	if err != nil {
		p.Close()
		return nil, err
	}

	pub, err := buildEvents(cfg, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.closers = append(p.closers, pub)

	var store *history.Store
	if cfg.Paths.History != "" {
		store, err = history.NewStore(ctx, cfg.Paths.History)
		if err != nil {
			logger.Warn("audit history unavailable, continuing without it", "path", cfg.Paths.History, "err", err)
			store = nil
		} else {
			p.closers = append(p.closers, store)
		}
	}

	opts := orchestrator.Options{
		Classifier:      failure.NewClassifier(failure.ThresholdsFromMap(cfg.Thresholds, logger)),
		Catalog:         remediation.NewCatalog(trigger, ledgers.Healing, logger),
		Trigger:         trigger,
		Planner:         planner,
		Ledgers:         ledgers,
		Uptime:          mon,
		Mutator:         mutate.New(newRand(cfg.Policy.Seed+1), logger),
		Rater:           feedback.New(kind),
		Events:          pub,
		Metrics:         metrics.New(),
		QTablePath:      cfg.Paths.QTable,
		MetricsTextfile: cfg.Paths.MetricsTextfile,
		Logger:          logger,
	}
	if pending != nil {
		opts.Pending = pending
	}
	if store != nil {
		opts.History = store
	}
	orch, err := orchestrator.New(opts)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.orch = orch
	return p, nil
}

// buildPlanner returns the planner and, for the learned policy, the late-feedback channel.
func buildPlanner(cfg *config.Config, fl runFlags, rng *rand.Rand, ledgers *ledger.Set, logger *slog.Logger) (policy.Planner, *feedback.Channel, error) {
	switch fl.planner {
	case "random":
		if fl.train {
			logger.Warn("--train only applies to --policy learned")
		}
		return policy.NewRandomPlanner(rng), nil, nil
	case "learned":
	default:
		return nil, nil, fmt.Errorf("unknown policy %q (want random|learned)", fl.planner)
	}

	mode, err := policy.ParseMode(cfg.Policy.Mode)
	if err != nil {
		return nil, nil, err
	}
	table, err := policy.LoadQTable(cfg.Paths.QTable, failure.Keys(), remediation.Actions)
	if err != nil {
		logger.Error("q-table partially unreadable, defaults substituted", "path", cfg.Paths.QTable, "err", err)
	}
	pcfg := policy.Config{
		Alpha:     cfg.Policy.Alpha,
		Epsilon:   cfg.Policy.Epsilon,
		Gamma:     cfg.Policy.Gamma,
		Mode:      mode,
		TrainMode: fl.train,
	}
	logger.Info("learned policy ready",
		"qtable", cfg.Paths.QTable,
		"states", len(table.States()),
		"mode", string(mode),
		"train", fl.train,
	)
	engine := policy.NewEngine(table, pcfg, rng, ledgers.Performance, logger)
	return engine, feedback.NewChannel(cfg.Paths.Feedback), nil
}

func buildEvents(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	switch cfg.Events.Sink {
	case "mqtt":
		return events.NewMQTT(events.MQTTConfig{
			Broker:   cfg.Events.Broker,
			ClientID: cfg.Events.ClientID,
			Username: cfg.Events.Username,
			Password: cfg.Events.Password,
			Prefix:   cfg.Events.Topic,
		}, logger)
	case "none":
		return events.Nop{}, nil
	}
	return events.NewFile(cfg.Paths.EventsFile), nil
}

// newRand seeds from seed, or from the clock when seed is 0.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}

// #endregion pipeline

// #region report
func printReport(w io.Writer, rep orchestrator.CycleReport) {
	fmt.Fprintf(w, "cycle %s: %d row(s) added, deployment %s (%.2f ms), %d incident(s), final status %s\n",
		shortID(rep.CycleID), rep.RowsAdded, rep.Deployment.Status, rep.Deployment.ResponseTimeMs,
		len(rep.Incidents), rep.FinalStatus)
	if rep.Pending != nil && rep.PendingStep != nil {
		fmt.Fprintf(w, "  late feedback %s for %s/%s (reward %+g)\n",
			rep.Pending.Value, rep.Pending.State, rep.Pending.Action, rep.PendingStep.Reward)
	}
	for _, in := range rep.Incidents {
		fmt.Fprintf(w, "  [%s] %s: %s -> %s (%s) %s in %.2f ms",
			in.Phase, in.Key, in.Reason, in.Action, in.Selection, in.Result.Outcome, in.Result.ResponseTimeMs)
		if in.Step != nil {
			fmt.Fprintf(w, ", Q %.4f -> %.4f", in.Step.Before, in.Step.After)
		}
		fmt.Fprintln(w)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion report
