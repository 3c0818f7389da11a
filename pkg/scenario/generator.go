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

package scenario

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/threatlens/threatlens/pkg/models"
)

var (
	normalCountries = []string{"US", "DE", "GB", "IN", "BR"}
	attackCountries = []string{"RU", "CN", "KP", "IR"}

	normalEventTypes = []models.EventType{
		models.EventLogin,
		models.EventAPIRequest,
		models.EventFirewall,
		models.EventAuth,
	}
)

// attackProfile describes how one attack scenario presents in the ledger.
type attackProfile struct {
	eventType   models.EventType
	description string
	mitre       string
}

var attackProfiles = map[Scenario]attackProfile{
	BruteForce: {
		eventType:   models.EventBruteForce,
		description: "Massive authentication failures detected on management interface.",
		mitre:       "T1110",
	},
	SQLInjection: {
		eventType:   models.EventSQLInj,
		description: "WAF Alert: SQL Injection pattern detected in query parameters.",
		mitre:       "T1190",
	},
	DDoS: {
		eventType:   models.EventDDoS,
		description: "Anomaly: Unexpected spike in UDP traffic from distributed sources.",
		mitre:       "T1498",
	},
	Ransomware: {
		eventType:   models.EventRansomware,
		description: "File System: Bulk encryption pattern detected in shared volumes.",
		mitre:       "T1486",
	},
}

// Generator produces synthetic security events and the matching backend
// submission payloads for the active scenario.
type Generator struct {
	counter atomic.Uint64
	rng     *rand.Rand
	now     func() time.Time
}

// NewGenerator creates a generator with its own random source.
func NewGenerator() *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // simulation, not crypto
		now: time.Now,
	}
}

// NewGeneratorWith injects the random source and clock, for tests.
func NewGeneratorWith(rng *rand.Rand, now func() time.Time) *Generator {
	return &Generator{rng: rng, now: now}
}

// Next produces one ledger event for the given scenario. Attack scenarios
// emit mostly suspicious traffic with a residual slice of normal noise.
func (g *Generator) Next(s Scenario) models.SecurityEvent {
	suspicious := s.Attack() && g.rng.Float64() > 0.2

	var country string
	if suspicious {
		country = attackCountries[g.rng.Intn(len(attackCountries))]
	} else {
		country = normalCountries[g.rng.Intn(len(normalCountries))]
	}

	eventType := normalEventTypes[g.rng.Intn(len(normalEventTypes))]
	description := "Standard transaction processed via edge gateway."
	mitre := ""

	if suspicious {
		if profile, ok := attackProfiles[s]; ok {
			eventType = profile.eventType
			description = profile.description
			mitre = profile.mitre
		}
	}

	status := models.StatusSuccess
	severity := models.SeverityInfo
	sourceIP := fmt.Sprintf("10.0.0.%d", g.rng.Intn(255))
	userID := fmt.Sprintf("user_%d", g.rng.Intn(1000))

	if suspicious {
		status = models.StatusSuspicious
		severity = models.SeverityCritical
		sourceIP = g.randomPublicIP()
		userID = "sys_admin_vulnerable"
	} else {
		if g.rng.Float64() > 0.95 {
			status = models.StatusFailure
		}

		if g.rng.Float64() > 0.8 {
			severity = models.SeverityMedium
		}
	}

	return models.SecurityEvent{
		ID:          fmt.Sprintf("TX-%d", g.counter.Add(1)),
		Timestamp:   g.now(),
		Type:        eventType,
		SourceIP:    sourceIP,
		UserID:      userID,
		Status:      status,
		Description: description,
		Severity:    severity,
		Country:     country,
		Coordinates: models.CoordinatesFor(country),
		Mitre:       mitre,
	}
}

// Submission builds the backend simulate-event payload for the given
// scenario, tagged with the scenario name and epoch in metadata.
func (g *Generator) Submission(s Scenario, epoch int64) models.SimulatedEvent {
	ev := models.SimulatedEvent{
		EventID:   fmt.Sprintf("SIM-%s", uuid.NewString()),
		Timestamp: g.now().UTC().Format(time.RFC3339),
		Metadata: map[string]interface{}{
			"scenario": string(s),
			"epoch":    epoch,
		},
	}

	switch s {
	case BruteForce:
		ev.EventType = "brute_force"
		ev.SourceIP = g.randomPublicIP()
		ev.DestinationIP = "10.0.0.100"
		ev.DestinationPort = 22
		ev.Protocol = "TCP"
		ev.Payload = map[string]interface{}{"attempts": g.rng.Intn(200) + 50}
	case SQLInjection:
		ev.EventType = "sql_injection"
		ev.SourceIP = g.randomPublicIP()
		ev.DestinationIP = "10.0.0.200"
		ev.DestinationPort = 443
		ev.Protocol = "HTTPS"
		ev.Payload = map[string]interface{}{"query": "' OR '1'='1' --"}
	case DDoS:
		ev.EventType = "ddos"
		ev.SourceIP = g.randomPublicIP()
		ev.DestinationIP = "10.0.0.1"
		ev.DestinationPort = 80
		ev.Protocol = "UDP"
		ev.Payload = map[string]interface{}{"packets_per_sec": g.rng.Intn(10000) + 5000}
	case Ransomware:
		ev.EventType = "ransomware"
		ev.SourceIP = fmt.Sprintf("10.0.0.%d", g.rng.Intn(255))
		ev.DestinationIP = "10.0.0.250"
		ev.DestinationPort = 445
		ev.Protocol = "SMB"
		ev.Payload = map[string]interface{}{"encrypted_files": g.rng.Intn(1000) + 100}
	default:
		normalTypes := []string{"api_request", "login_attempt", "firewall_event", "normal_traffic", "data_access", "network_traffic"}
		ports := []int{80, 443, 22, 3306, 5432, 8080}
		protocols := []string{"HTTPS", "HTTP", "SSH", "TCP", "UDP"}

		ev.EventType = normalTypes[g.rng.Intn(len(normalTypes))]
		ev.SourceIP = fmt.Sprintf("10.0.%d.%d", g.rng.Intn(10), g.rng.Intn(255))
		ev.DestinationIP = fmt.Sprintf("10.0.%d.%d", g.rng.Intn(10), g.rng.Intn(255))
		ev.DestinationPort = ports[g.rng.Intn(len(ports))]
		ev.Protocol = protocols[g.rng.Intn(len(protocols))]
		ev.Payload = map[string]interface{}{"bytes": g.rng.Intn(5000) + 100}
	}

	return ev
}

func (g *Generator) randomPublicIP() string {
	return fmt.Sprintf("%d.%d.%d.%d",
		g.rng.Intn(255), g.rng.Intn(255), g.rng.Intn(255), g.rng.Intn(255))
}
