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

// Package models defines the canonical and wire data model for the console.
package models

import "time"

// EventStatus is the disposition of a security event.
type EventStatus string

const (
	StatusSuccess    EventStatus = "success"
	StatusFailure    EventStatus = "failure"
	StatusSuspicious EventStatus = "suspicious"
	StatusBlocked    EventStatus = "blocked"
)

// EventType categorizes a security event.
type EventType string

const (
	EventLogin      EventType = "Login Attempt"
	EventAPIRequest EventType = "API Request"
	EventFirewall   EventType = "Firewall Event"
	EventAuth       EventType = "Authentication"
	EventFileAccess EventType = "File Access"
	EventSQLInj     EventType = "SQL Injection"
	EventBruteForce EventType = "Brute Force"
	EventDDoS       EventType = "DDoS Attack"
	EventRansomware EventType = "Ransomware Signal"
)

// Severity is an ordered severity scale.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// AtLeast reports whether s is at or above min on the severity scale.
// Unknown severities rank below info.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// ThreatLevel is the discrete level derived from the continuous risk score.
type ThreatLevel string

const (
	LevelNormal     ThreatLevel = "Normal"
	LevelSuspicious ThreatLevel = "Suspicious"
	LevelCritical   ThreatLevel = "Critical"
)

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SecurityEvent is one observed or simulated security occurrence. Events
// are immutable once created; ID is the deduplication key.
type SecurityEvent struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	Type        EventType   `json:"type"`
	SourceIP    string      `json:"source_ip"`
	UserID      string      `json:"user_id"`
	Status      EventStatus `json:"status"`
	Description string      `json:"description"`
	Severity    Severity    `json:"severity"`
	Country     string      `json:"country"`
	Coordinates Coordinates `json:"coordinates"`
	Mitre       string      `json:"mitre,omitempty"`
}
