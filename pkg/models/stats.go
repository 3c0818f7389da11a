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

// TimelinePoint is one sample on the trailing risk-trend window.
type TimelinePoint struct {
	Time string  `json:"time"`
	Risk float64 `json:"risk"`
}

// DashboardStats is the aggregate counter block on the stats bar.
type DashboardStats struct {
	Processed      int   `json:"processed"`
	Blocked        int   `json:"blocked"`
	Critical       int   `json:"critical"`
	AvgDetectTime  int   `json:"avg_detect_time"`
	LatencyHistory []int `json:"latency_history"`
}

// BaselineStats returns the stats block the console starts from and resets to.
func BaselineStats() DashboardStats {
	return DashboardStats{
		Processed:      12847,
		Blocked:        234,
		Critical:       0,
		AvgDetectTime:  127,
		LatencyHistory: []int{130, 125, 128, 122, 127, 120, 115, 118, 110, 105},
	}
}

// RiskIndex is the backend's composite risk summary.
type RiskIndex struct {
	Value float64 `json:"value"`
	Level string  `json:"level"`
	Trend string  `json:"trend"`
}
