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

package console

import (
	"time"

	"github.com/threatlens/threatlens/pkg/analysis"
	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/stream"
)

const (
	defaultListenAddr = ":8090"
	defaultAttackTick = 400 * time.Millisecond
	defaultNormalTick = 1200 * time.Millisecond
)

// Config is the console service configuration.
type Config struct {
	// ListenAddr is the HTTP bind address for /api and /metrics.
	ListenAddr string `json:"listen_addr"`

	// SimulateURL, when set, is the backend base URL for fire-and-forget
	// simulated-event submissions.
	SimulateURL string `json:"simulate_url,omitempty"`

	// AttackTickMS and NormalTickMS pace the local simulation loop.
	AttackTickMS int `json:"attack_tick_ms"`
	NormalTickMS int `json:"normal_tick_ms"`

	// TimelineFromStream sources risk-trend samples from pushed
	// risk_timeline_update messages instead of local recomputation.
	// The two paths are mutually exclusive.
	TimelineFromStream bool `json:"timeline_from_stream"`

	Stream   stream.Config         `json:"stream"`
	Analysis analysis.ClientConfig `json:"analysis"`
	Logging  *logger.Config        `json:"logging,omitempty"`
}

// Validate fills defaults and checks the nested configs.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	if c.AttackTickMS <= 0 {
		c.AttackTickMS = int(defaultAttackTick / time.Millisecond)
	}

	if c.NormalTickMS <= 0 {
		c.NormalTickMS = int(defaultNormalTick / time.Millisecond)
	}

	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	if err := c.Stream.Validate(); err != nil {
		return err
	}

	return c.Analysis.Validate()
}

// AttackTick returns the simulation interval during an attack scenario.
func (c *Config) AttackTick() time.Duration {
	return time.Duration(c.AttackTickMS) * time.Millisecond
}

// NormalTick returns the simulation interval during the normal scenario.
func (c *Config) NormalTick() time.Duration {
	return time.Duration(c.NormalTickMS) * time.Millisecond
}
