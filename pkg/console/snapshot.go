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

	"github.com/threatlens/threatlens/pkg/models"
	"github.com/threatlens/threatlens/pkg/scenario"
	"github.com/threatlens/threatlens/pkg/stream"
)

// Snapshot is an immutable view of the reconciled state. Presentation
// consumers read snapshots; they never mutate controller state.
type Snapshot struct {
	Timestamp        time.Time               `json:"timestamp"`
	StreamStatus     stream.Status           `json:"stream_status"`
	Scenario         scenario.Scenario       `json:"scenario"`
	Epoch            int64                   `json:"epoch"`
	RiskScore        float64                 `json:"risk_score"`
	ThreatLevel      models.ThreatLevel      `json:"threat_level"`
	Events           []models.SecurityEvent  `json:"events"`
	Timeline         []models.TimelinePoint  `json:"timeline"`
	Reasoning        models.AIReasoning      `json:"reasoning"`
	Analyzing        bool                    `json:"analyzing"`
	MitigationActive bool                    `json:"mitigation_active"`
	PlaybookStep     string                  `json:"playbook_step,omitempty"`
	Stats            models.DashboardStats   `json:"stats"`
	EventsPerSecond  float64                 `json:"events_per_second"`
}

// Snapshot builds a point-in-time view on the actor loop, so it is
// internally consistent across the ledger, risk state, and reasoning.
func (c *Controller) Snapshot() (Snapshot, error) {
	var snap Snapshot

	err := c.call(func() {
		now := c.now()
		c.pruneRecent(now)

		snap = Snapshot{
			Timestamp:        now,
			StreamStatus:     c.stream.Status(),
			Scenario:         c.scenarios.Scenario(),
			Epoch:            c.scenarios.Epoch(),
			RiskScore:        c.risk.Score(),
			ThreatLevel:      c.risk.Level(),
			Events:           c.ledger.Events(),
			Timeline:         c.risk.Timeline(),
			Reasoning:        c.reasoning,
			Analyzing:        c.trigger.Analyzing(),
			MitigationActive: c.playbook.MitigationActive(),
			PlaybookStep:     c.playbook.CurrentStep(),
			Stats:            c.statsCopy(),
			EventsPerSecond:  float64(len(c.recent)),
		}
	})

	return snap, err
}

// statsCopy deep-copies the latency slice so snapshot readers cannot see
// later in-place mutation.
func (c *Controller) statsCopy() models.DashboardStats {
	out := c.stats
	out.LatencyHistory = append([]int(nil), c.stats.LatencyHistory...)

	return out
}
