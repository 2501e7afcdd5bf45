package orchestrator

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/deploy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/events"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/feedback"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/history"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/ledger"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/metrics"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/mutate"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/policy"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/remediation"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/uptime"
)

// #endregion

// #region options

// Options wires an Orchestrator. Fields marked optional may be left nil.
type Options struct {
	Classifier *failure.Classifier
	Catalog    *remediation.Catalog
	Trigger    deploy.Trigger
	Planner    policy.Planner
	Ledgers    *ledger.Set
	Uptime     *uptime.Monitor

	Mutator *mutate.Mutator      // optional: nil skips the data change
	Rater   feedback.Rater       // optional: nil behaves like feedback.Deferred
	Pending policy.PendingSource // optional: late feedback channel
	History *history.Store       // optional
	Events  events.Publisher     // optional
	Metrics *metrics.Recorder    // optional

	QTablePath      string // empty = table is not persisted
	MetricsTextfile string // empty = no textfile export
	Logger          *slog.Logger
}

// #endregion

// #region orchestrator-struct

// Orchestrator drives one self-healing cycle at a time.
type Orchestrator struct {
	opts    Options
	engine  *policy.Engine // nil when the planner does not learn
	events  events.Publisher
	rater   feedback.Rater
	logger  *slog.Logger
	nextTh  atomic.Pointer[failure.Thresholds]
	planner string
}

// New validates opts and creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Classifier == nil:
		return nil, errors.New("orchestrator: classifier is required")
	case opts.Catalog == nil:
		return nil, errors.New("orchestrator: remediation catalog is required")
	case opts.Trigger == nil:
		return nil, errors.New("orchestrator: deployment trigger is required")
	case opts.Planner == nil:
		return nil, errors.New("orchestrator: planner is required")
	case opts.Ledgers == nil:
		return nil, errors.New("orchestrator: ledgers are required")
	case opts.Uptime == nil:
		return nil, errors.New("orchestrator: uptime monitor is required")
	}

	o := &Orchestrator{opts: opts, events: opts.Events, rater: opts.Rater, logger: opts.Logger}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.events == nil {
		o.events = events.Nop{}
	}
	if o.rater == nil {
		o.rater = feedback.Deferred{}
	}
	o.planner = "random"
	if e, ok := opts.Planner.(*policy.Engine); ok && e.Learns() {
		o.engine = e
		o.planner = "learned"
	}
	return o, nil
}

// SetThresholds schedules new classifier thresholds for the next cycle.
// Safe to call from another goroutine while a cycle runs.
func (o *Orchestrator) SetThresholds(th failure.Thresholds) {
	o.nextTh.Store(&th)
}

// #endregion

// #region run-cycle

// cycle carries per-cycle state through the steps.
type cycle struct {
	rep   *CycleReport
	ctx   context.Context
	open  *openUpdate // chained mode: rated incident waiting for its successor
	store bool        // history cycle row exists
}

// openUpdate is a rated incident whose update is not yet applied.
type openUpdate struct {
	idx    int
	reward float64
}

// RunCycle runs mutate, classify, heal, deploy, classify, heal, uptime and persist.
// Step failures are logged and the cycle continues. The only returned error is a done context.
func (o *Orchestrator) RunCycle(ctx context.Context, sc Scenario) (CycleReport, error) {
	rep := CycleReport{Scenario: sc, StartedAt: time.Now()}
	c := &cycle{rep: &rep, ctx: ctx}

	if th := o.nextTh.Swap(nil); th != nil {
		o.opts.Classifier.SetThresholds(*th)
		o.logger.Info("thresholds reloaded", "thresholds", th.Map())
	}
	o.beginHistory(c)
	o.logger.Info("cycle started",
		"cycle", rep.CycleID,
		"dataset", sc.Dataset,
		"fail_type", string(sc.FailType),
		"force_anomaly", sc.ForceAnomaly,
		"planner", o.planner,
	)

	// 1. late feedback
	o.applyPending(c)

	// 2. data change
	if o.opts.Mutator != nil {
		n, err := o.opts.Mutator.Apply(sc.Dataset, sc.ForceAnomaly)
		if err != nil {
			o.logger.Error("dataset mutation failed", "dataset", sc.Dataset, "err", err)
		}
		rep.RowsAdded = n
	}
	if err := ctx.Err(); err != nil {
		return o.abort(c, err)
	}

	// 3. pre-deployment data quality
	pre := o.opts.Classifier.DataQualityFile(sc.Dataset)
	if pre.State.IsIncident() {
		o.heal(c, pre)
	} else {
		o.logger.Info("data quality check passed", "reason", pre.Reason)
	}
	if err := ctx.Err(); err != nil {
		return o.abort(c, err)
	}

	// 4. deployment
	rep.Deployment = o.opts.Trigger.Deploy(ctx, sc.request())
	if err := o.opts.Ledgers.Deployments.Log(sc.Dataset, rep.Deployment, ledger.ActionDeploy); err != nil {
		o.logger.Error("deployment ledger append failed", "err", err)
	}
	o.publish(ctx, events.AgentDeployer, events.StatusDeployed, map[string]any{
		"dataset":          sc.Dataset,
		"status":           string(rep.Deployment.Status),
		"response_time_ms": rep.Deployment.ResponseTimeMs,
	})
	o.logger.Info("deployment finished",
		"status", string(rep.Deployment.Status),
		"response_ms", rep.Deployment.ResponseTimeMs,
	)
	if err := ctx.Err(); err != nil {
		return o.abort(c, err)
	}

	// 5. post-deployment check against the ledger
	last, err := o.opts.Ledgers.Deployments.Last()
	if err != nil || last == nil {
		o.logger.Warn("deployment ledger unreadable, classifying the in-memory record", "err", err)
		d := rep.Deployment
		last = &d
	}
	post := o.opts.Classifier.Deployment(last)
	if post.State.IsIncident() {
		o.heal(c, post)
	} else {
		// 6. healthy deployment
		o.logger.Info("no post-deployment issues", "reason", post.Reason)
		o.setUptime(c, failure.UptimeUp, "Successful deployment")
	}

	// 7. persist
	o.settle(c, "")
	o.persist(c)
	return o.finish(c), nil
}

// #endregion

// #region heal

// heal handles one incident: record, mark down, choose, execute, rate, learn, log, recover.
func (o *Orchestrator) heal(c *cycle, res failure.Result) {
	ctx := c.ctx
	uptimeBefore := o.opts.Uptime.Status()
	key := failure.Key(res.State, uptimeBefore)

	o.logger.Warn("incident detected",
		"phase", string(res.Phase),
		"state", string(res.State),
		"key", key,
		"reason", res.Reason,
	)
	if err := o.opts.Ledgers.Issues.Log(res.State, res.Reason); err != nil {
		o.logger.Error("issue ledger append failed", "err", err)
	}
	o.publish(ctx, events.AgentIssueDetector, events.StatusDetected, map[string]any{
		"phase":  string(res.Phase),
		"state":  string(res.State),
		"key":    key,
		"reason": res.Reason,
	})
	if o.opts.Metrics != nil {
		o.opts.Metrics.Incident(key)
	}

	// The successor of a pending chained update is now known.
	o.settle(c, key)

	o.setUptime(c, failure.UptimeDown, res.Reason)

	action, sel := o.opts.Planner.Choose(key)
	result := o.opts.Catalog.Execute(ctx, action, remediation.Context{DatasetPath: c.rep.Scenario.Dataset})
	if o.opts.Metrics != nil {
		o.opts.Metrics.Remediation(string(action), string(result.Outcome), result.ResponseTimeMs)
	}

	in := IncidentReport{
		Phase:     res.Phase,
		State:     res.State,
		Key:       key,
		Reason:    res.Reason,
		Action:    action,
		Selection: sel,
		Result:    result,
	}
	c.rep.Incidents = append(c.rep.Incidents, in)
	idx := len(c.rep.Incidents) - 1

	if o.engine != nil {
		o.rate(c, idx)
	}

	if err := o.opts.Ledgers.Deployments.Log(c.rep.Scenario.Dataset,
		deploy.Record{Status: result.Outcome, ResponseTimeMs: result.ResponseTimeMs},
		string(result.HealType),
	); err != nil {
		o.logger.Error("deployment ledger append failed", "err", err)
	}

	status := events.StatusUnresolved
	if result.Succeeded() {
		status = events.StatusResolved
		o.setUptime(c, failure.UptimeUp, "Recovery successful via "+string(result.HealType))
	} else {
		o.logger.Warn("healing attempt failed, service remains down", "key", key, "action", string(action))
	}
	o.publish(ctx, events.AgentHealer, status, map[string]any{
		"key":              key,
		"action":           string(action),
		"selection":        string(sel),
		"outcome":          string(result.Outcome),
		"response_time_ms": result.ResponseTimeMs,
		"heal_type":        string(result.HealType),
	})
}

// rate asks the rater about incident idx and learns from the answer.
func (o *Orchestrator) rate(c *cycle, idx int) {
	in := &c.rep.Incidents[idx]
	rec, ok, err := o.rater.Rate(c.ctx, in.Key, in.Action, in.Result.Outcome)
	if err != nil {
		o.logger.Error("rating failed, leaving incident unrated", "key", in.Key, "err", err)
		return
	}
	// an unrated incident still learns from its outcome; late feedback lands as an extra update
	reward := policy.BaseReward(in.Result.Outcome)
	if ok {
		in.Feedback = &rec
		if err := o.opts.Ledgers.UserFeedback.Log(rec.State, string(rec.Action), rec.Outcome, string(rec.Source), string(rec.Value)); err != nil {
			o.logger.Error("user feedback ledger append failed", "err", err)
		}
		reward = policy.ShapeReward(in.Result.Outcome, rec.Value)
	} else {
		o.logger.Info("rating deferred to the feedback channel, learning from the outcome alone",
			"key", in.Key,
			"action", string(in.Action),
			"outcome", string(in.Result.Outcome),
		)
	}
	if o.engine.Config().Mode == policy.ModeChained {
		c.open = &openUpdate{idx: idx, reward: reward}
		return
	}
	o.apply(c, idx, reward, "")
}

// settle applies a deferred chained update with next as its successor.
func (o *Orchestrator) settle(c *cycle, next string) {
	if c.open == nil {
		return
	}
	open := c.open
	c.open = nil
	o.apply(c, open.idx, open.reward, next)
}

func (o *Orchestrator) apply(c *cycle, idx int, reward float64, next string) {
	in := &c.rep.Incidents[idx]
	step := o.engine.Apply(in.Key, in.Action, reward, next)
	in.Step = &step
	if o.opts.Metrics != nil {
		o.opts.Metrics.Reward(reward)
	}
	o.publish(c.ctx, events.AgentPolicy, events.StatusUpdated, map[string]any{
		"key":      step.State,
		"action":   string(step.Action),
		"reward":   step.Reward,
		"next":     step.Next,
		"q_before": step.Before,
		"q_after":  step.After,
	})
}

// #endregion

// #region steps

// applyPending consumes feedback that arrived after an earlier cycle.
func (o *Orchestrator) applyPending(c *cycle) {
	if o.engine == nil || o.opts.Pending == nil {
		return
	}
	rec, step, err := o.engine.ApplyPending(o.opts.Pending)
	if err != nil {
		o.logger.Error("pending feedback discarded", "err", err)
		return
	}
	if rec == nil {
		return
	}
	c.rep.Pending, c.rep.PendingStep = rec, &step
	if err := o.opts.Ledgers.UserFeedback.Log(rec.State, string(rec.Action), rec.Outcome, string(rec.Source), string(rec.Value)); err != nil {
		o.logger.Error("user feedback ledger append failed", "err", err)
	}
	if o.opts.Metrics != nil {
		o.opts.Metrics.Reward(step.Reward)
	}
	o.logger.Info("pending feedback applied",
		"key", rec.State,
		"action", string(rec.Action),
		"value", string(rec.Value),
		"reward", step.Reward,
	)
}

func (o *Orchestrator) setUptime(c *cycle, status failure.Uptime, event string) {
	changed, err := o.opts.Uptime.Set(status, event)
	if err != nil {
		o.logger.Error("uptime timeline append failed", "err", err)
		return
	}
	if changed {
		o.publish(c.ctx, events.AgentUptime, events.StatusUpdated, map[string]any{
			"status": string(status),
			"event":  event,
		})
	}
}

func (o *Orchestrator) publish(ctx context.Context, agent, status string, data map[string]any) {
	if err := o.events.Publish(ctx, events.Event{Agent: agent, Status: status, Data: data}); err != nil {
		o.logger.Warn("event publish failed", "agent", agent, "status", status, "err", err)
	}
}

// #endregion

// #region persist

func (o *Orchestrator) beginHistory(c *cycle) {
	if o.opts.History != nil {
		cy, err := o.opts.History.BeginCycle(c.ctx, c.rep.Scenario.Dataset, o.planner)
		if err == nil {
			c.rep.CycleID, c.store = cy.ID, true
			return
		}
		o.logger.Error("history: begin cycle failed", "err", err)
	}
	c.rep.CycleID = uuid.NewString()
}

// persist saves the table, records history and flushes metrics.
func (o *Orchestrator) persist(c *cycle) {
	if o.engine != nil && o.opts.QTablePath != "" {
		if err := o.engine.Table().Save(o.opts.QTablePath); err != nil {
			o.logger.Error("q-table save failed", "path", o.opts.QTablePath, "err", err)
		} else {
			o.logger.Info("q-table saved", "path", o.opts.QTablePath)
		}
	}

	if c.store {
		ctx := context.WithoutCancel(c.ctx)
		for _, in := range c.rep.Incidents {
			if _, err := o.opts.History.RecordIncident(ctx, toHistory(c.rep.CycleID, in)); err != nil {
				o.logger.Error("history: record incident failed", "key", in.Key, "err", err)
			}
		}
	}

	if m := o.opts.Metrics; m != nil {
		m.CycleDone()
		if o.engine != nil {
			t := o.engine.Table()
			for _, s := range t.States() {
				for _, a := range t.Actions() {
					m.QValue(s, string(a), t.Get(s, a))
				}
			}
		}
		if o.opts.MetricsTextfile != "" {
			if err := m.WriteTextfile(o.opts.MetricsTextfile); err != nil {
				o.logger.Error("metrics textfile export failed", "err", err)
			}
		}
	}
}

// abort persists what the cycle learned before it was cancelled.
func (o *Orchestrator) abort(c *cycle, err error) (CycleReport, error) {
	o.settle(c, "")
	o.persist(c)
	return o.finish(c), fmt.Errorf("cycle cancelled: %w", err)
}

// finish stamps the report and closes the history row.
func (o *Orchestrator) finish(c *cycle) CycleReport {
	c.rep.FinalStatus = o.opts.Uptime.Status()
	c.rep.FinishedAt = time.Now()
	if c.store {
		if err := o.opts.History.FinishCycle(context.WithoutCancel(c.ctx), c.rep.CycleID, string(c.rep.FinalStatus)); err != nil {
			o.logger.Error("history: finish cycle failed", "err", err)
		}
	}
	o.logger.Info("cycle finished",
		"cycle", c.rep.CycleID,
		"incidents", len(c.rep.Incidents),
		"status", string(c.rep.FinalStatus),
		"took", c.rep.FinishedAt.Sub(c.rep.StartedAt).Round(time.Millisecond),
	)
	return *c.rep
}

func toHistory(cycleID string, in IncidentReport) history.Incident {
	h := history.Incident{
		CycleID:        cycleID,
		Phase:          string(in.Phase),
		State:          in.Key,
		Reason:         in.Reason,
		Action:         string(in.Action),
		Selection:      string(in.Selection),
		Outcome:        string(in.Result.Outcome),
		ResponseTimeMs: in.Result.ResponseTimeMs,
	}
	if in.Step != nil {
		r, b, a := in.Step.Reward, in.Step.Before, in.Step.After
		h.Reward, h.QBefore, h.QAfter = &r, &b, &a
	}
	if in.Feedback != nil {
		h.FeedbackSource = string(in.Feedback.Source)
		h.FeedbackValue = string(in.Feedback.Value)
	}
	return h
}

// #endregion
