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

// Package scenario owns the active demo scenario, its epoch token, and the
// synthetic event generator.
package scenario

import (
	"sync"
	"time"
)

// Scenario identifies the active simulated-attack scenario.
type Scenario string

const (
	Normal       Scenario = "normal"
	BruteForce   Scenario = "brute_force"
	SQLInjection Scenario = "sql_injection"
	DDoS         Scenario = "ddos"
	Ransomware   Scenario = "ransomware"
)

// Valid reports whether s names a known scenario.
func (s Scenario) Valid() bool {
	switch s {
	case Normal, BruteForce, SQLInjection, DDoS, Ransomware:
		return true
	default:
		return false
	}
}

// Attack reports whether s is an attack scenario.
func (s Scenario) Attack() bool {
	return s != Normal && s != ""
}

// Controller tracks the active scenario and mints a fresh epoch on every
// change. Epochs are wall-clock milliseconds forced strictly increasing, so
// the backend can distinguish current-scenario traffic from stale traffic
// of a previous generation.
type Controller struct {
	mu       sync.RWMutex
	scenario Scenario
	epoch    int64
	now      func() time.Time
}

// NewController starts in the normal scenario with an initial epoch.
func NewController() *Controller {
	return NewControllerWithNow(time.Now)
}

// NewControllerWithNow injects the clock, for tests.
func NewControllerWithNow(now func() time.Time) *Controller {
	c := &Controller{scenario: Normal, now: now}
	c.epoch = now().UnixMilli()

	return c
}

// SetScenario switches the active scenario and mints a new epoch. The
// returned epoch is the one to propagate in handshakes and simulated-event
// metadata. changed is false when s is already active; no epoch is minted
// in that case.
func (c *Controller) SetScenario(s Scenario) (epoch int64, changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s == c.scenario {
		return c.epoch, false
	}

	c.scenario = s
	c.epoch = c.mint()

	return c.epoch, true
}

// Scenario returns the active scenario.
func (c *Controller) Scenario() Scenario {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.scenario
}

// Epoch returns the current epoch token.
func (c *Controller) Epoch() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.epoch
}

// mint returns wall-clock milliseconds, bumped past the previous epoch when
// two changes land in the same millisecond.
func (c *Controller) mint() int64 {
	e := c.now().UnixMilli()
	if e <= c.epoch {
		e = c.epoch + 1
	}

	return e
}
