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

package models

import (
	"encoding/json"
	"time"
)

// MessageType tags the push-channel message envelope.
type MessageType string

const (
	MessageInitialState       MessageType = "initial_state"
	MessageNewThreat          MessageType = "new_threat"
	MessageNewAlert           MessageType = "new_alert"
	MessageMetricsUpdate      MessageType = "metrics_update"
	MessageRiskUpdate         MessageType = "risk_update"
	MessageRiskTimelineUpdate MessageType = "risk_timeline_update"
	MessageHeartbeat          MessageType = "heartbeat"
)

// WireMessage is the tagged-union envelope for inbound push-channel
// messages. Data stays raw until the handler knows the concrete shape.
type WireMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// WireSeverity is the backend's severity scale.
type WireSeverity string

const (
	WireSeverityCritical WireSeverity = "CRITICAL"
	WireSeverityHigh     WireSeverity = "HIGH"
	WireSeverityMedium   WireSeverity = "MEDIUM"
	WireSeverityLow      WireSeverity = "LOW"
	WireSeverityInfo     WireSeverity = "INFO"
)

// WireThreatType is the backend's threat taxonomy.
type WireThreatType string

const (
	WireThreatMalware          WireThreatType = "MALWARE"
	WireThreatPhishing         WireThreatType = "PHISHING"
	WireThreatDDoS             WireThreatType = "DDOS"
	WireThreatBruteForce       WireThreatType = "BRUTE_FORCE"
	WireThreatDataExfiltration WireThreatType = "DATA_EXFILTRATION"
	WireThreatRansomware       WireThreatType = "RANSOMWARE"
	WireThreatAuthentication   WireThreatType = "AUTHENTICATION"
	WireThreatNetworkAnomaly   WireThreatType = "NETWORK_ANOMALY"
	WireThreatSuspicious       WireThreatType = "SUSPICIOUS_ACTIVITY"
)

// Threat is a backend-detected threat record.
type Threat struct {
	ID                  string         `json:"id"`
	EventID             string         `json:"event_id"`
	Timestamp           time.Time      `json:"timestamp"`
	Severity            WireSeverity   `json:"severity"`
	ThreatType          WireThreatType `json:"threat_type"`
	RiskScore           float64        `json:"risk_score"`
	SourceIP            string         `json:"source_ip"`
	SourceCountry       string         `json:"source_country,omitempty"`
	SourceCountryCode   string         `json:"source_country_code,omitempty"`
	DestinationIP       string         `json:"destination_ip,omitempty"`
	DestinationPort     int            `json:"destination_port,omitempty"`
	Confidence          float64        `json:"confidence"`
	Description         string         `json:"description"`
	ContextualAnalysis  string         `json:"contextual_analysis,omitempty"`
	ContributingSignals []string       `json:"contributing_signals,omitempty"`
	MitreAttackID       string         `json:"mitre_attack_id,omitempty"`
	MitreAttackName     string         `json:"mitre_attack_name,omitempty"`
	RecommendedActions  []string       `json:"recommended_actions,omitempty"`
	AutoBlocked         bool           `json:"auto_blocked"`
	ProcessingTimeMs    float64        `json:"processing_time_ms,omitempty"`
}

// Alert is a backend-raised alert record; the console only observes these.
type Alert struct {
	ID          string    `json:"id"`
	ThreatID    string    `json:"threat_id"`
	Severity    string    `json:"severity"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// InitialState is the bulk seed payload sent once per connection.
type InitialState struct {
	Threats      []Threat        `json:"threats"`
	Alerts       []Alert         `json:"alerts"`
	RiskIndex    RiskIndex       `json:"risk_index"`
	Stats        DashboardStats  `json:"stats"`
	RiskTimeline []TimelinePoint `json:"risk_timeline,omitempty"`
}

// TimelineUpdate is one pushed risk-timeline sample.
type TimelineUpdate struct {
	Time      string  `json:"time"`
	Risk      float64 `json:"risk"`
	Timestamp string  `json:"timestamp"`
}

// Handshake is the outbound message announcing the current scenario epoch,
// sent on connect and on every scenario change while connected.
type Handshake struct {
	Type  string `json:"type"`
	Epoch int64  `json:"epoch"`
}

// NewHandshake builds a handshake message for the given epoch.
func NewHandshake(epoch int64) Handshake {
	return Handshake{Type: "handshake", Epoch: epoch}
}

// RequestState asks the backend to resend the full initial state.
type RequestState struct {
	Type string `json:"type"`
}

// NewRequestState builds a request_state message.
func NewRequestState() RequestState {
	return RequestState{Type: "request_state"}
}

// SimulatedEvent is the REST submission payload for one synthetic event.
// Metadata carries the active scenario name and epoch so the backend can
// fence traffic from a previous scenario generation.
type SimulatedEvent struct {
	EventID         string                 `json:"event_id"`
	Timestamp       string                 `json:"timestamp"`
	EventType       string                 `json:"event_type"`
	SourceIP        string                 `json:"source_ip"`
	DestinationIP   string                 `json:"destination_ip"`
	DestinationPort int                    `json:"destination_port"`
	Protocol        string                 `json:"protocol"`
	Payload         map[string]interface{} `json:"payload"`
	Metadata        map[string]interface{} `json:"metadata"`
}
