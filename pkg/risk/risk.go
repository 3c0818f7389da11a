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

// Package risk derives the discrete threat level from the continuous risk
// score and maintains the trailing risk-trend window.
package risk

import (
	"math/rand"
	"sync"
	"time"

	"github.com/threatlens/threatlens/pkg/models"
)

const (
	// BaselineScore is the score the system starts from and resets to.
	BaselineScore = 12

	// Threshold boundaries. No hysteresis: a score oscillating around a
	// boundary flaps the level.
	suspiciousAbove = 35
	criticalAbove   = 65

	// mitigationFloor is the lowest the score drifts to while a
	// mitigation playbook is active.
	mitigationFloor = 8

	// timelineWindow bounds the trend chart sample count.
	timelineWindow = 30
)

// DeriveLevel returns the threat level for a risk score. It is a pure
// function of the score; no other state participates.
func DeriveLevel(score float64) models.ThreatLevel {
	switch {
	case score > criticalAbove:
		return models.LevelCritical
	case score > suspiciousAbove:
		return models.LevelSuspicious
	default:
		return models.LevelNormal
	}
}

// Engine owns the risk score and its timeline. Every recomputation appends
// a timeline sample unless the engine is configured to take samples from
// pushed risk_timeline_update messages instead; the two paths are mutually
// exclusive.
type Engine struct {
	mu           sync.RWMutex
	score        float64
	timeline     []models.TimelinePoint
	pushTimeline bool
	rng          *rand.Rand
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithPushTimeline sources timeline samples from the push channel instead
// of local recomputation.
func WithPushTimeline() Option {
	return func(e *Engine) { e.pushTimeline = true }
}

// WithRand sets the random source used by Drift.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithNow sets the clock used for timeline sample labels.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a risk engine at the baseline score.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		score: BaselineScore,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // simulation, not crypto
		now:   time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Set overwrites the score with an absolute value, clamped to [0,100], and
// returns the derived level.
func (e *Engine) Set(score float64) models.ThreatLevel {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.score = clamp(score)
	e.sampleLocked()

	return DeriveLevel(e.score)
}

// Drift advances the score one simulated tick. During an active attack the
// walk is biased upward; while mitigation is running it steps down 1.5 per
// tick toward the mitigation floor; otherwise it wanders near baseline.
func (e *Engine) Drift(attack, mitigation bool) models.ThreatLevel {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case mitigation:
		e.score -= 1.5
		if e.score < mitigationFloor {
			e.score = mitigationFloor
		}
	case attack:
		e.score = clamp(e.score + e.rng.Float64()*12)
	default:
		e.score = clamp(e.score + e.rng.Float64()*2 - 1.5)
	}

	e.sampleLocked()

	return DeriveLevel(e.score)
}

// AppendSample records one pushed timeline sample. Ignored unless the
// engine was built with WithPushTimeline.
func (e *Engine) AppendSample(point models.TimelinePoint) {
	if !e.pushTimeline {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.appendLocked(point)
}

// Reset returns the score to baseline and clears the timeline.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.score = BaselineScore
	e.timeline = nil
}

// Score returns the current risk score.
func (e *Engine) Score() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.score
}

// Level returns the threat level derived from the current score.
func (e *Engine) Level() models.ThreatLevel {
	return DeriveLevel(e.Score())
}

// Timeline returns a copy of the trailing trend window, oldest first.
func (e *Engine) Timeline() []models.TimelinePoint {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.TimelinePoint, len(e.timeline))
	copy(out, e.timeline)

	return out
}

func (e *Engine) sampleLocked() {
	if e.pushTimeline {
		return
	}

	e.appendLocked(models.TimelinePoint{
		Time: e.now().Format("15:04:05"),
		Risk: e.score,
	})
}

func (e *Engine) appendLocked(point models.TimelinePoint) {
	e.timeline = append(e.timeline, point)
	if len(e.timeline) > timelineWindow {
		e.timeline = e.timeline[len(e.timeline)-timelineWindow:]
	}
}

func clamp(score float64) float64 {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}
