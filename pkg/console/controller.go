/*
 * Copyright 2025 ThreatLens Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package console owns the reconciled dashboard state. Every mutation from
// the stream, the local simulation, operator actions, and resolving analysis
// calls flows through one serialized command loop, so last-write-wins across
// competing sources is an explicit policy instead of a callback-ordering
// accident.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/threatlens/threatlens/pkg/analysis"
	"github.com/threatlens/threatlens/pkg/ledger"
	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/models"
	"github.com/threatlens/threatlens/pkg/playbook"
	"github.com/threatlens/threatlens/pkg/risk"
	"github.com/threatlens/threatlens/pkg/scenario"
	"github.com/threatlens/threatlens/pkg/stream"
)

const (
	// epsWindow is the trailing window for the events-per-second gauge.
	epsWindow = time.Second

	// latencyHistoryMax bounds the displayed detection-latency history.
	latencyHistoryMax = 15

	commandBuffer = 128
)

// ErrStopped is returned by operations invoked after the controller's run
// loop has exited.
var ErrStopped = errors.New("console: controller stopped")

// StreamClient is the push-channel surface the controller drives.
// *stream.Client satisfies it. Connect and Disconnect must return without
// waiting on the network; the controller calls them from its command loop.
type StreamClient interface {
	Connect()
	Disconnect()
	SendHandshake(epoch int64) error
	RequestState() error
	OnMessage(handler stream.MessageHandler) func()
	OnStatus(handler stream.StatusHandler) func()
	Status() stream.Status
}

// EventSubmitter posts simulated events to the backend. *scenario.Submitter
// satisfies it.
type EventSubmitter interface {
	Submit(ctx context.Context, event models.SimulatedEvent) error
}

// Controller is the single-actor reconciler. It exclusively owns the ledger,
// the risk engine, the displayed reasoning, and the aggregate stats; other
// components receive immutable snapshots.
type Controller struct {
	logger logger.Logger
	config Config

	stream    StreamClient
	analyzer  analysis.Analyzer
	submitter EventSubmitter

	ledger    *ledger.Ledger
	risk      *risk.Engine
	scenarios *scenario.Controller
	generator *scenario.Generator
	trigger   *analysis.Trigger
	playbook  *playbook.Runner

	reasoning models.AIReasoning
	stats     models.DashboardStats
	recent    []time.Time

	commands chan func()
	stopped  chan struct{}
	runCtx   context.Context

	tick          *time.Timer
	rng           *rand.Rand
	now           func() time.Time
	connectedOnce bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRand injects the randomness source, for tests.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// WithPlaybookTiming shortens the mitigation playbook dwell times, for tests.
func WithPlaybookTiming(stepDwell, verifiedHold time.Duration) Option {
	return func(c *Controller) {
		c.playbook = playbook.NewRunner(c.logger, playbook.WithTiming(stepDwell, verifiedHold))
	}
}

// NewController creates the reconciler. The stream client and analyzer are
// constructed once by the caller and injected; the controller never creates
// its own channel to the backend.
func NewController(config Config, client StreamClient, analyzer analysis.Analyzer, submitter EventSubmitter, log logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		logger:    log,
		config:    config,
		stream:    client,
		analyzer:  analyzer,
		submitter: submitter,
		ledger:    ledger.New(),
		generator: scenario.NewGenerator(),
		playbook:  playbook.NewRunner(log),
		reasoning: models.BaselineReasoning(),
		stats:     models.BaselineStats(),
		commands:  make(chan func(), commandBuffer),
		stopped:   make(chan struct{}),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.scenarios = scenario.NewControllerWithNow(c.now)

	riskOpts := []risk.Option{risk.WithNow(c.now)}
	if config.TimelineFromStream {
		riskOpts = append(riskOpts, risk.WithPushTimeline())
	}

	if c.rng != nil {
		riskOpts = append(riskOpts, risk.WithRand(c.rng))
		c.generator = scenario.NewGeneratorWith(c.rng, c.now)
	}

	c.risk = risk.NewEngine(riskOpts...)
	c.trigger = analysis.NewTrigger(analyzer, c.applyReasoning, log, analysis.WithNow(c.now))

	return c
}

// Run drives the command loop until ctx is cancelled. It connects the stream
// on entry and disconnects on exit.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	c.runCtx = ctx

	unsubMsg := c.stream.OnMessage(func(msg models.WireMessage) {
		c.enqueue(func() { c.handleMessage(msg) })
	})
	defer unsubMsg()

	unsubStatus := c.stream.OnStatus(func(status stream.Status) {
		c.enqueue(func() { c.handleStatus(status) })
	})
	defer unsubStatus()

	c.stream.Connect()
	defer c.stream.Disconnect()

	c.tick = time.NewTimer(c.tickInterval())
	defer c.tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-c.commands:
			fn()
		case <-c.tick.C:
			c.simTick()
			c.tick.Reset(c.tickInterval())
		}
	}
}

// enqueue submits a command to the actor loop. Returns false when the loop
// has exited.
func (c *Controller) enqueue(fn func()) bool {
	select {
	case <-c.stopped:
		return false
	case c.commands <- fn:
		return true
	}
}

// call runs fn on the actor loop and waits for it to complete.
func (c *Controller) call(fn func()) error {
	done := make(chan struct{})

	if !c.enqueue(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	}
}

func (c *Controller) tickInterval() time.Duration {
	if c.scenarios.Scenario().Attack() {
		return c.config.AttackTick()
	}

	return c.config.NormalTick()
}

// handleMessage reconciles one inbound stream message. Runs on the actor.
func (c *Controller) handleMessage(msg models.WireMessage) {
	switch msg.Type {
	case models.MessageInitialState:
		var state models.InitialState
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed initial_state payload")
			return
		}

		c.applyInitialState(&state)

	case models.MessageNewThreat:
		var threat models.Threat
		if err := json.Unmarshal(msg.Data, &threat); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed new_threat payload")
			return
		}

		c.applyThreat(&threat)

	case models.MessageNewAlert:
		var alert models.Alert
		if err := json.Unmarshal(msg.Data, &alert); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed new_alert payload")
			return
		}

		c.logger.Info().
			Str("alert_id", alert.ID).
			Str("severity", alert.Severity).
			Str("priority", alert.Priority).
			Msg("Backend alert observed")

	case models.MessageMetricsUpdate:
		var stats models.DashboardStats
		if err := json.Unmarshal(msg.Data, &stats); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed metrics_update payload")
			return
		}

		c.stats = stats

	case models.MessageRiskUpdate:
		var update struct {
			Value float64 `json:"value"`
		}
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed risk_update payload")
			return
		}

		c.risk.Set(update.Value)
		c.reconcile()

	case models.MessageRiskTimelineUpdate:
		if !c.config.TimelineFromStream {
			c.logger.Debug().Msg("Ignoring pushed timeline sample, local sampling active")
			return
		}

		var update models.TimelineUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed risk_timeline_update payload")
			return
		}

		c.risk.AppendSample(models.TimelinePoint{Time: update.Time, Risk: update.Risk})

	default:
		c.logger.Debug().Str("type", string(msg.Type)).Msg("Ignoring unknown stream message type")
	}
}

// applyInitialState bulk-seeds the ledger, stats, risk score, and timeline.
// The payload lists threats newest-first; they are ingested oldest-first so
// the ledger's front insertion reproduces the given order.
func (c *Controller) applyInitialState(state *models.InitialState) {
	c.ledger.Reset()

	for i := len(state.Threats) - 1; i >= 0; i-- {
		event := models.MapThreat(&state.Threats[i])
		if c.ledger.Ingest(event) {
			eventsIngested.WithLabelValues("stream").Inc()
		}
	}

	if state.Stats.LatencyHistory != nil || state.Stats.Processed > 0 {
		c.stats = state.Stats
	}

	for _, alert := range state.Alerts {
		c.logger.Debug().Str("alert_id", alert.ID).Msg("Seed alert observed")
	}

	c.risk.Set(state.RiskIndex.Value)

	if c.config.TimelineFromStream {
		for _, point := range state.RiskTimeline {
			c.risk.AppendSample(point)
		}
	}

	c.logger.Info().
		Int("threats", len(state.Threats)).
		Float64("risk", state.RiskIndex.Value).
		Msg("Initial state applied")

	c.reconcile()
}

func (c *Controller) applyThreat(threat *models.Threat) {
	event := models.MapThreat(threat)

	if c.ledger.Ingest(event) {
		eventsIngested.WithLabelValues("stream").Inc()
		c.recordIngest(&event)
	} else {
		eventsDeduplicated.Inc()
		c.logger.Debug().Str("id", event.ID).Msg("Duplicate threat dropped")
	}

	// A pushed threat carrying its own composite score overrides the
	// locally drifted value; whichever source wrote last wins.
	if threat.RiskScore > 0 {
		c.risk.Set(threat.RiskScore)
	}

	c.reconcile()
}

// handleStatus reacts to stream lifecycle transitions. Runs on the actor.
func (c *Controller) handleStatus(status stream.Status) {
	switch status {
	case stream.StatusConnected:
		if err := c.stream.SendHandshake(c.scenarios.Epoch()); err != nil {
			c.logger.Warn().Err(err).Msg("Handshake send failed")
		}

		if err := c.stream.RequestState(); err != nil {
			c.logger.Warn().Err(err).Msg("State request failed")
		}

		if c.connectedOnce {
			streamReconnects.Inc()
		}

		c.connectedOnce = true

	case stream.StatusDisconnected:
		c.logger.Info().Msg("Stream disconnected")

	case stream.StatusError:
		c.logger.Warn().Msg("Stream error")

	case stream.StatusConnecting:
		c.logger.Debug().Msg("Stream connecting")
	}
}

// simTick emits one locally simulated event, drifts the risk score, and
// reconciles. Runs on the actor.
func (c *Controller) simTick() {
	active := c.scenarios.Scenario()

	event := c.generator.Next(active)
	if c.ledger.Ingest(event) {
		eventsIngested.WithLabelValues("simulation").Inc()
		c.recordIngest(&event)
	}

	if c.submitter != nil {
		submission := c.generator.Submission(active, c.scenarios.Epoch())

		// Fire and forget; the submitter logs its own failures.
		go func() {
			_ = c.submitter.Submit(c.runCtx, submission)
		}()
	}

	c.risk.Drift(active.Attack(), c.playbook.MitigationActive())
	c.reconcile()
}

// reconcile derives the threat level and drives the analysis trigger.
// On return to Normal the reasoning resets to baseline and the mitigation
// flag clears. Runs on the actor.
func (c *Controller) reconcile() {
	riskScore.Set(c.risk.Score())

	level := c.risk.Level()

	if level == models.LevelNormal {
		if !c.reasoning.IsBaseline() {
			c.reasoning = models.BaselineReasoning()
			c.playbook.ClearMitigation()
			c.trigger.Reset()
			c.logger.Info().Msg("Threat level normal, reasoning reset to baseline")
		}

		return
	}

	events := c.ledger.TopBySeverity(models.SeverityHigh, analysis.MaxEvents)

	if c.trigger.Evaluate(c.runCtx, level, events) {
		analysesStarted.WithLabelValues(string(level)).Inc()
		c.logger.Info().Str("level", string(level)).Int("events", len(events)).Msg("Threat analysis started")
	}
}

// applyReasoning receives completed analysis results. Called from the
// trigger's goroutine, so it re-enters through the command loop.
func (c *Controller) applyReasoning(reasoning models.AIReasoning) {
	c.enqueue(func() {
		c.reasoning = reasoning
		c.logger.Info().Str("summary", reasoning.Summary).Msg("Reasoning updated")
	})
}

// recordIngest updates the aggregate stats and the EPS window for one
// accepted event. Runs on the actor.
func (c *Controller) recordIngest(event *models.SecurityEvent) {
	c.stats.Processed++

	if event.Status == models.StatusBlocked {
		c.stats.Blocked++
	}

	if event.Severity == models.SeverityCritical {
		c.stats.Critical++
	}

	c.driftLatency()

	now := c.now()
	c.recent = append(c.recent, now)
	c.pruneRecent(now)
	eventsPerSecond.Set(float64(len(c.recent)))
}

// driftLatency walks the displayed average detection time inside [80, 180]
// and appends it to the bounded history window.
func (c *Controller) driftLatency() {
	step := int(c.randFloat()*20) - 10

	avg := c.stats.AvgDetectTime + step
	if avg < 80 {
		avg = 80
	} else if avg > 180 {
		avg = 180
	}

	c.stats.AvgDetectTime = avg

	c.stats.LatencyHistory = append(c.stats.LatencyHistory, avg)
	if len(c.stats.LatencyHistory) > latencyHistoryMax {
		c.stats.LatencyHistory = c.stats.LatencyHistory[len(c.stats.LatencyHistory)-latencyHistoryMax:]
	}
}

func (c *Controller) randFloat() float64 {
	if c.rng != nil {
		return c.rng.Float64()
	}

	return rand.Float64()
}

func (c *Controller) pruneRecent(now time.Time) {
	cutoff := now.Add(-epsWindow)

	keep := c.recent[:0]
	for _, t := range c.recent {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}

	c.recent = keep
}

// SetScenario switches the active simulated-attack scenario. Minting a new
// epoch, pruning on return to normal, and the handshake send all happen on
// the actor so they serialize with inbound messages.
func (c *Controller) SetScenario(s scenario.Scenario) error {
	if !s.Valid() {
		return fmt.Errorf("unknown scenario %q", s)
	}

	return c.call(func() {
		epoch, changed := c.scenarios.SetScenario(s)
		if !changed {
			return
		}

		scenarioChanges.WithLabelValues(string(s)).Inc()

		if s == scenario.Normal {
			// Keep a few entries for a smooth visual transition.
			c.ledger.PruneTo(3)
		}

		if c.stream.Status() == stream.StatusConnected {
			if err := c.stream.SendHandshake(epoch); err != nil {
				c.logger.Warn().Err(err).Msg("Scenario handshake send failed")
			}
		}

		if c.tick != nil {
			c.tick.Reset(c.tickInterval())
		}

		c.logger.Info().Str("scenario", string(s)).Int64("epoch", epoch).Msg("Scenario changed")
	})
}

// ExecutePlaybook starts the mitigation playbook. Re-entrant calls return
// playbook.ErrAlreadyActive.
func (c *Controller) ExecutePlaybook() error {
	if err := c.playbook.Execute(); err != nil {
		return err
	}

	playbookRuns.Inc()

	return nil
}

// Reset restores the baseline state, fences any in-flight analysis, and
// cycles the stream connection.
func (c *Controller) Reset() error {
	return c.call(func() {
		c.ledger.Reset()
		c.risk.Reset()
		c.stats = models.BaselineStats()
		c.reasoning = models.BaselineReasoning()
		c.recent = nil
		c.trigger.Reset()
		c.playbook.ClearMitigation()
		c.scenarios.SetScenario(scenario.Normal)

		c.stream.Disconnect()
		c.stream.Connect()

		riskScore.Set(c.risk.Score())
		eventsPerSecond.Set(0)

		c.logger.Info().Msg("System reset")
	})
}

// ForensicReport generates a forensic report for one ledger event. The
// lookup runs on the actor; the external call does not.
func (c *Controller) ForensicReport(ctx context.Context, eventID string) (models.ForensicReport, error) {
	var (
		event models.SecurityEvent
		found bool
	)

	err := c.call(func() {
		for _, e := range c.ledger.Events() {
			if e.ID == eventID {
				event = e
				found = true

				return
			}
		}
	})
	if err != nil {
		return models.ForensicReport{}, err
	}

	if !found {
		return models.ForensicReport{}, fmt.Errorf("event %q not found", eventID)
	}

	return c.analyzer.GenerateForensicReport(ctx, event)
}
