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

// Package analysis invokes the external AI analysis service and decides
// when an analysis should run.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/models"
)

const (
	defaultModel         = "gpt-4o-mini"
	defaultForensicModel = "gpt-4o"
	defaultMaxRetries    = 2
	retryBaseDelay       = 2 * time.Second

	systemPrompt = "You are an AI Security Expert. Return strictly valid JSON. " +
		"Map patterns to MITRE techniques (e.g., T1110 for Brute Force)."
)

var errEmptyCompletion = errors.New("analysis service returned no choices")

// Analyzer produces threat explanations and forensic reports. AnalyzeThreat
// fails closed: implementations must return a usable fallback reasoning
// rather than propagate service errors.
type Analyzer interface {
	AnalyzeThreat(ctx context.Context, events []models.SecurityEvent) (models.AIReasoning, error)
	GenerateForensicReport(ctx context.Context, event models.SecurityEvent) (models.ForensicReport, error)
}

// ClientConfig configures the OpenAI-compatible analysis client. BaseURL
// points at the backend AI proxy; the key never ships to the browser.
type ClientConfig struct {
	BaseURL       string `json:"base_url"`
	APIKey        string `json:"-"`
	Model         string `json:"model"`
	ForensicModel string `json:"forensic_model"`
	MaxRetries    int    `json:"max_retries"`
}

// Validate fills config defaults.
func (c *ClientConfig) Validate() error {
	if c.Model == "" {
		c.Model = defaultModel
	}

	if c.ForensicModel == "" {
		c.ForensicModel = defaultForensicModel
	}

	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}

	return nil
}

// completionClient is the slice of the OpenAI API the analyzer uses,
// abstracted for tests.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client calls an OpenAI-compatible chat-completion endpoint for threat
// analysis and forensic report generation.
type Client struct {
	api        completionClient
	config     ClientConfig
	logger     logger.Logger
	retryDelay time.Duration
}

// NewClient creates the analysis client.
func NewClient(config ClientConfig, log logger.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		apiConfig.BaseURL = config.BaseURL
	}

	return &Client{
		api:        openai.NewClientWithConfig(apiConfig),
		config:     config,
		logger:     log,
		retryDelay: retryBaseDelay,
	}, nil
}

// eventContext is the trimmed event view sent to the model.
type eventContext struct {
	Time     string `json:"time"`
	Type     string `json:"type"`
	IP       string `json:"ip"`
	User     string `json:"user"`
	Status   string `json:"status"`
	Severity string `json:"severity"`
	Desc     string `json:"desc"`
	Country  string `json:"country"`
	Mitre    string `json:"mitre,omitempty"`
}

func buildEventContext(events []models.SecurityEvent) []eventContext {
	out := make([]eventContext, 0, len(events))

	for i := range events {
		e := &events[i]
		out = append(out, eventContext{
			Time:     e.Timestamp.UTC().Format(time.RFC3339),
			Type:     string(e.Type),
			IP:       e.SourceIP,
			User:     e.UserID,
			Status:   string(e.Status),
			Severity: string(e.Severity),
			Desc:     e.Description,
			Country:  e.Country,
			Mitre:    e.Mitre,
		})
	}

	return out
}

// AnalyzeThreat asks the model to explain up to 5 high-priority events.
// Rate limits are retried with exponential backoff; after the retry budget
// is spent, or on any other failure, a canned fallback reasoning is
// returned so the caller never sees a raw error.
func (c *Client) AnalyzeThreat(ctx context.Context, events []models.SecurityEvent) (models.AIReasoning, error) {
	eventJSON, err := json.MarshalIndent(buildEventContext(events), "", "  ")
	if err != nil {
		return fallbackReasoning(), nil
	}

	prompt := fmt.Sprintf(`Act as an elite Tier 3 SOC Analyst. Analyze these high-priority security events and map them to the MITRE ATT&CK framework.
Provide a detailed technical justification, specific contributing factors, and prioritized remediation steps.
Respond with a JSON object with keys: explanation (string), factors (string array), confidence (Low|Medium|High), summary (string), mitreAttack (string), recommendedActions (string array).

Events to analyze:
%s`, eventJSON)

	for attempt := 0; ; attempt++ {
		reasoning, err := c.analyzeOnce(ctx, prompt)
		if err == nil {
			return reasoning, nil
		}

		if ctx.Err() != nil {
			return fallbackReasoning(), ctx.Err()
		}

		if !isRateLimited(err) || attempt >= c.config.MaxRetries {
			c.logger.Error().Err(err).Int("attempt", attempt).Msg("Threat analysis failed, using fallback reasoning")
			return fallbackReasoning(), nil
		}

		delay := c.retryDelay * time.Duration(1<<attempt)
		c.logger.Warn().Dur("delay", delay).Int("attempt", attempt).Msg("Analysis rate limited, backing off")

		select {
		case <-ctx.Done():
			return fallbackReasoning(), ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) analyzeOnce(ctx context.Context, prompt string) (models.AIReasoning, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return models.AIReasoning{}, fmt.Errorf("analysis call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return models.AIReasoning{}, errEmptyCompletion
	}

	var reasoning models.AIReasoning

	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reasoning); err != nil {
		return models.AIReasoning{}, fmt.Errorf("analysis response is not valid JSON: %w", err)
	}

	return reasoning, nil
}

// GenerateForensicReport produces the deep-dive report for one event.
// Unlike AnalyzeThreat, failures propagate; the caller decides how to
// present them.
func (c *Client) GenerateForensicReport(ctx context.Context, event models.SecurityEvent) (models.ForensicReport, error) {
	prompt := fmt.Sprintf(`Generate a comprehensive forensic investigation report for the following security incident:
ID: %s
Type: %s
Source IP: %s
User: %s
Description: %s
Country: %s
Severity: %s
Timestamp: %s

The report should be structured for executive and technical stakeholders.
Respond with a JSON object with keys: summary, technicalDetails, timeline (string array), riskAssessment, remediationSteps (string array).`,
		event.ID, event.Type, event.SourceIP, event.UserID, event.Description,
		event.Country, event.Severity, event.Timestamp.UTC().Format(time.RFC3339))

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.config.ForensicModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return models.ForensicReport{}, fmt.Errorf("forensic generation failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return models.ForensicReport{}, errEmptyCompletion
	}

	var report models.ForensicReport

	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &report); err != nil {
		return models.ForensicReport{}, fmt.Errorf("forensic response is not valid JSON: %w", err)
	}

	return report, nil
}

// isRateLimited reports whether err is an HTTP 429 from the API.
func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}

	return false
}

// fallbackReasoning is shown when the analysis service is unavailable or
// throttled. Confidence is deliberately lowered.
func fallbackReasoning() models.AIReasoning {
	return models.AIReasoning{
		Explanation: "Analysis engine is currently cooling down due to high traffic volume. " +
			"Heuristic patterns still suggest active lateral movement.",
		Factors:            []string{"Rate limit threshold reached"},
		Confidence:         models.ConfidenceMedium,
		Summary:            "AI Analysis Throttled - Manual Review Recommended",
		MitreAttack:        "T1110 - Brute Force (Predicted)",
		RecommendedActions: []string{"Check API Quota", "Verify source IP blocklists"},
	}
}
