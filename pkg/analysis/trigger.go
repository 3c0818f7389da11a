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

package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/models"
)

// DefaultCooldown rate-limits repeat analyses while the threat level holds
// at Suspicious. Entry into Critical is never cooldown-gated.
const DefaultCooldown = 120 * time.Second

// MaxEvents is the number of qualifying events sent per analysis.
const MaxEvents = 5

// ResultFunc receives the reasoning from a completed, non-stale analysis.
type ResultFunc func(reasoning models.AIReasoning)

// Trigger decides when to invoke the external analysis call. It holds the
// idle/analyzing state, enforces the asymmetric cooldown, and fences every
// invocation with a generation counter so a response resolving after a
// system reset is discarded instead of corrupting fresh state.
type Trigger struct {
	analyzer Analyzer
	onResult ResultFunc
	logger   logger.Logger
	cooldown time.Duration
	now      func() time.Time

	mu         sync.Mutex
	inFlight   bool
	lastStart  time.Time
	lastLevel  models.ThreatLevel
	generation uint64
}

// TriggerOption configures a Trigger.
type TriggerOption func(*Trigger)

// WithCooldown overrides the repeat-analysis cooldown.
func WithCooldown(d time.Duration) TriggerOption {
	return func(t *Trigger) { t.cooldown = d }
}

// WithNow injects the clock, for tests.
func WithNow(now func() time.Time) TriggerOption {
	return func(t *Trigger) { t.now = now }
}

// NewTrigger creates an analysis trigger. onResult is invoked off the
// caller's goroutine for every completed analysis that is still current.
func NewTrigger(analyzer Analyzer, onResult ResultFunc, log logger.Logger, opts ...TriggerOption) *Trigger {
	t := &Trigger{
		analyzer: analyzer,
		onResult: onResult,
		logger:   log,
		cooldown: DefaultCooldown,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Evaluate considers firing an analysis for the current threat level and
// the qualifying events (most recent Critical/High, at most MaxEvents).
// Returns whether an analysis was started.
func (t *Trigger) Evaluate(ctx context.Context, level models.ThreatLevel, events []models.SecurityEvent) bool {
	if len(events) > MaxEvents {
		events = events[:MaxEvents]
	}

	t.mu.Lock()

	if !t.shouldFireLocked(level, events) {
		t.mu.Unlock()
		return false
	}

	t.inFlight = true
	t.lastStart = t.now()
	t.lastLevel = level
	gen := t.generation
	t.mu.Unlock()

	t.logger.Info().
		Str("level", string(level)).
		Int("events", len(events)).
		Msg("Starting AI threat analysis")

	go t.run(ctx, gen, events)

	return true
}

// shouldFireLocked applies the firing conditions. Caller holds t.mu.
func (t *Trigger) shouldFireLocked(level models.ThreatLevel, events []models.SecurityEvent) bool {
	if level == models.LevelNormal {
		return false
	}

	if t.inFlight {
		return false
	}

	if len(events) == 0 {
		return false
	}

	if level != t.lastLevel {
		// A level transition always warrants a fresh analysis.
		return true
	}

	// Sustained at the same level: only a non-critical level re-analyzes,
	// and only after the cooldown.
	return level != models.LevelCritical && t.now().Sub(t.lastStart) >= t.cooldown
}

func (t *Trigger) run(ctx context.Context, gen uint64, events []models.SecurityEvent) {
	reasoning, err := t.analyzer.AnalyzeThreat(ctx, events)

	t.mu.Lock()

	if gen != t.generation {
		// The system was reset while this call was in flight; its result
		// belongs to a previous generation of state.
		t.mu.Unlock()
		t.logger.Debug().Uint64("generation", gen).Msg("Discarding stale analysis result")

		return
	}

	t.inFlight = false
	t.mu.Unlock()

	if err != nil {
		// Prior reasoning stays on screen; nothing to surface.
		t.logger.Error().Err(err).Msg("Threat analysis did not complete")
		return
	}

	t.onResult(reasoning)
}

// Analyzing reports whether an analysis call is in flight.
func (t *Trigger) Analyzing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.inFlight
}

// Reset advances the generation so any in-flight result is discarded, and
// clears the transition memory. Called on system reset and when the threat
// level returns to Normal.
func (t *Trigger) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.generation++
	t.inFlight = false
	t.lastLevel = ""
	t.lastStart = time.Time{}
}
