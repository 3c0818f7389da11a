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

// Package playbook runs the simulated automated-remediation sequence.
package playbook

import (
	"errors"
	"sync"
	"time"

	"github.com/threatlens/threatlens/pkg/logger"
)

// ErrAlreadyActive is returned when Execute is called while a mitigation is
// already in progress.
var ErrAlreadyActive = errors.New("mitigation playbook already active")

const (
	defaultStepDwell    = 1200 * time.Millisecond
	defaultVerifiedHold = 3 * time.Second

	// VerifiedStep is the terminal step shown after the sequence completes.
	VerifiedStep = "PROTECTION_VERIFIED"
)

// Steps is the fixed remediation sequence, advanced one step per dwell.
var Steps = []string{
	"ISOLATING_TARGET_SEGMENTS",
	"ENACTING_ACL_OVERRIDE",
	"RESETTING_SESSION_HANDSHAKES",
	"DEPLOYING_IP_QUARANTINE",
}

// Runner executes the mitigation playbook. A run, once started, cannot be
// cancelled; it advances on its own timers while the rest of the system
// stays responsive. The mitigation flag outlives the step display: it keeps
// biasing the risk drift downward until the threat level returns to Normal
// and the owner clears it.
type Runner struct {
	mu         sync.Mutex
	mitigation bool
	running    bool
	step       string

	stepDwell    time.Duration
	verifiedHold time.Duration
	logger       logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTiming overrides the per-step dwell and verified hold, for tests.
func WithTiming(stepDwell, verifiedHold time.Duration) Option {
	return func(r *Runner) {
		r.stepDwell = stepDwell
		r.verifiedHold = verifiedHold
	}
}

// NewRunner creates a playbook runner.
func NewRunner(log logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		stepDwell:    defaultStepDwell,
		verifiedHold: defaultVerifiedHold,
		logger:       log,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Execute starts the playbook. It is rejected while a mitigation is active
// so the sequence can never be restarted or duplicated mid-flight.
func (r *Runner) Execute() error {
	r.mu.Lock()

	if r.mitigation || r.running {
		r.mu.Unlock()
		return ErrAlreadyActive
	}

	r.mitigation = true
	r.running = true
	r.mu.Unlock()

	r.logger.Info().Msg("Mitigation playbook started")

	go r.run()

	return nil
}

func (r *Runner) run() {
	for _, step := range Steps {
		r.setStep(step)
		time.Sleep(r.stepDwell)
	}

	r.setStep(VerifiedStep)
	time.Sleep(r.verifiedHold)

	r.mu.Lock()
	r.step = ""
	r.running = false
	r.mu.Unlock()

	r.logger.Info().Msg("Mitigation playbook completed")
}

func (r *Runner) setStep(step string) {
	r.mu.Lock()
	r.step = step
	r.mu.Unlock()

	r.logger.Debug().Str("step", step).Msg("Playbook step")
}

// MitigationActive reports whether the downward risk bias is in effect.
func (r *Runner) MitigationActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.mitigation
}

// ClearMitigation drops the mitigation flag. Called by the owner when the
// threat level returns to Normal or the system resets. The step sequence,
// if still in flight, runs to completion regardless.
func (r *Runner) ClearMitigation() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mitigation = false
}

// Running reports whether the step sequence is still advancing.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.running
}

// CurrentStep returns the displayed step, or "" when no run is showing.
func (r *Runner) CurrentStep() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.step
}
