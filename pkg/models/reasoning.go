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

// Confidence is the analyst-facing confidence label on AI output.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// AIReasoning is the natural-language threat explanation shown in the
// reasoning panel. It always reflects the most recent completed analysis.
type AIReasoning struct {
	Explanation        string     `json:"explanation"`
	Factors            []string   `json:"factors"`
	Confidence         Confidence `json:"confidence"`
	Summary            string     `json:"summary"`
	MitreAttack        string     `json:"mitreAttack,omitempty"`
	RecommendedActions []string   `json:"recommendedActions"`
}

// ForensicReport is the deep-dive investigation report for a single event.
type ForensicReport struct {
	Summary          string   `json:"summary"`
	TechnicalDetails string   `json:"technicalDetails"`
	Timeline         []string `json:"timeline"`
	RiskAssessment   string   `json:"riskAssessment"`
	RemediationSteps []string `json:"remediationSteps"`
}

// BaselineReasoning returns the fixed healthy-baseline reasoning displayed
// when the threat level is Normal.
func BaselineReasoning() AIReasoning {
	return AIReasoning{
		Explanation: "System telemetry indicates healthy operation. No significant deviations " +
			"from established behavioral baselines detected in the current stream window.",
		Factors:            []string{"Normal packet frequency", "Authorized endpoint access", "Known geo-distribution"},
		Confidence:         ConfidenceHigh,
		Summary:            "Infrastructure operating within normal parameters.",
		MitreAttack:        "N/A - Healthy Baseline",
		RecommendedActions: []string{"Maintain monitoring", "Run routine log rotation"},
	}
}

// IsBaseline reports whether r is the healthy-baseline reasoning. The
// summary string is the identity key, matching how the reset path decides
// whether a reset is needed.
func (r *AIReasoning) IsBaseline() bool {
	return r.Summary == BaselineReasoning().Summary
}
