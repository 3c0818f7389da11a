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

import "fmt"

// countryCoords maps country codes to map-marker coordinates.
var countryCoords = map[string]Coordinates{
	"US": {Lat: 37.0902, Lng: -95.7129},
	"CN": {Lat: 35.8617, Lng: 104.1954},
	"RU": {Lat: 61.5240, Lng: 105.3188},
	"DE": {Lat: 51.1657, Lng: 10.4515},
	"GB": {Lat: 55.3781, Lng: -3.4360},
	"IN": {Lat: 20.5937, Lng: 78.9629},
	"BR": {Lat: -14.2350, Lng: -51.9253},
	"KP": {Lat: 40.3399, Lng: 127.5101},
	"IR": {Lat: 32.4279, Lng: 53.6880},
}

// CoordinatesFor returns map coordinates for a country code, or the origin
// when the country is unknown.
func CoordinatesFor(countryCode string) Coordinates {
	return countryCoords[countryCode]
}

// MapSeverity converts a backend severity to the canonical scale.
func MapSeverity(s WireSeverity) Severity {
	switch s {
	case WireSeverityCritical:
		return SeverityCritical
	case WireSeverityHigh:
		return SeverityHigh
	case WireSeverityMedium:
		return SeverityMedium
	case WireSeverityLow:
		return SeverityLow
	case WireSeverityInfo:
		return SeverityInfo
	default:
		return SeverityInfo
	}
}

// MapThreatType converts a backend threat type to the canonical event type.
func MapThreatType(t WireThreatType) EventType {
	switch t {
	case WireThreatBruteForce:
		return EventBruteForce
	case WireThreatDDoS:
		return EventDDoS
	case WireThreatRansomware:
		return EventRansomware
	case WireThreatPhishing, WireThreatMalware:
		return EventFileAccess
	case WireThreatAuthentication:
		return EventAuth
	case WireThreatNetworkAnomaly:
		return EventFirewall
	case WireThreatDataExfiltration:
		return EventAPIRequest
	default:
		return EventAPIRequest
	}
}

// mapThreatStatus derives the event disposition from blocking and severity.
func mapThreatStatus(t *Threat) EventStatus {
	switch {
	case t.AutoBlocked:
		return StatusBlocked
	case t.Severity == WireSeverityCritical || t.Severity == WireSeverityHigh:
		return StatusSuspicious
	case t.Severity == WireSeverityMedium:
		return StatusFailure
	default:
		return StatusSuccess
	}
}

// MapThreat converts a backend threat record into a canonical SecurityEvent.
func MapThreat(t *Threat) SecurityEvent {
	country := t.SourceCountryCode
	if country == "" {
		country = t.SourceCountry
	}

	if country == "" {
		country = "Unknown"
	}

	userID := t.ID
	if len(userID) > 8 {
		userID = userID[len(userID)-8:]
	}

	return SecurityEvent{
		ID:          t.ID,
		Timestamp:   t.Timestamp,
		Type:        MapThreatType(t.ThreatType),
		SourceIP:    t.SourceIP,
		UserID:      fmt.Sprintf("threat_%s", userID),
		Status:      mapThreatStatus(t),
		Description: t.Description,
		Severity:    MapSeverity(t.Severity),
		Country:     country,
		Coordinates: CoordinatesFor(t.SourceCountryCode),
		Mitre:       t.MitreAttackID,
	}
}
