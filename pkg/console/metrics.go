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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// eventsIngested counts events accepted into the ledger.
	// Labels: source (stream, simulation)
	eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threatlens",
		Subsystem: "console",
		Name:      "events_ingested_total",
		Help:      "Events accepted into the ledger",
	}, []string{"source"})

	// eventsDeduplicated counts events rejected as duplicates.
	eventsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "threatlens",
		Subsystem: "console",
		Name:      "events_deduplicated_total",
		Help:      "Events rejected by ledger deduplication",
	})

	// riskScore mirrors the current composite risk score.
	riskScore = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "threatlens",
		Subsystem: "console",
		Name:      "risk_score",
		Help:      "Current composite risk score",
	})

	// streamReconnects counts successful reconnects after the first connect.
	streamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "threatlens",
		Subsystem: "console",
		Name:      "stream_reconnects_total",
		Help:      "Successful stream reconnects",
	})

	// analysesStarted counts threat analyses dispatched to the model.
	// Labels: level (suspicious, critical)
	analysesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threatlens",
		Subsystem: "console",
		Name:      "analyses_started_total",
		Help:      "Threat analyses dispatched",
	}, []string{"level"})

	// scenarioChanges counts operator scenario switches.
	// Labels: scenario
	scenarioChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "threatlens",
		Subsystem: "console",
		Name:      "scenario_changes_total",
		Help:      "Operator scenario switches",
	}, []string{"scenario"})

	// playbookRuns counts mitigation playbook executions.
	playbookRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "threatlens",
		Subsystem: "console",
		Name:      "playbook_runs_total",
		Help:      "Mitigation playbook executions",
	})

	// eventsPerSecond is the trailing one second ingest rate.
	eventsPerSecond = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "threatlens",
		Subsystem: "console",
		Name:      "events_per_second",
		Help:      "Trailing one second event ingest rate",
	})
)
