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

package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/models"
)

type fakeCompletionClient struct {
	responses []fakeResponse
	calls     int
	requests  []openai.ChatCompletionRequest
}

type fakeResponse struct {
	content string
	err     error
}

func (f *fakeCompletionClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)

	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}

	f.calls++
	r := f.responses[idx]

	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}

	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: r.content}},
		},
	}, nil
}

func newTestAnalysisClient(t *testing.T, fake *fakeCompletionClient) *Client {
	t.Helper()

	cfg := ClientConfig{}
	require.NoError(t, cfg.Validate())

	return &Client{
		api:        fake,
		config:     cfg,
		logger:     logger.NewTestLogger(),
		retryDelay: time.Millisecond,
	}
}

func sampleEvents() []models.SecurityEvent {
	return []models.SecurityEvent{
		{
			ID:          "TX-1",
			Timestamp:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			Type:        models.EventBruteForce,
			SourceIP:    "203.0.113.9",
			UserID:      "sys_admin_vulnerable",
			Status:      models.StatusSuspicious,
			Severity:    models.SeverityCritical,
			Description: "Massive authentication failures detected on management interface.",
			Country:     "RU",
			Mitre:       "T1110",
		},
	}
}

const validReasoningJSON = `{
	"explanation": "Coordinated brute force against the management plane.",
	"factors": ["Credential spraying cadence", "Hostile source geography"],
	"confidence": "High",
	"summary": "Active brute force campaign",
	"mitreAttack": "T1110 - Brute Force",
	"recommendedActions": ["Lock affected accounts", "Block source ranges"]
}`

func TestAnalyzeThreatSuccess(t *testing.T) {
	fake := &fakeCompletionClient{responses: []fakeResponse{{content: validReasoningJSON}}}
	c := newTestAnalysisClient(t, fake)

	reasoning, err := c.AnalyzeThreat(context.Background(), sampleEvents())
	require.NoError(t, err)
	assert.Equal(t, "Active brute force campaign", reasoning.Summary)
	assert.Equal(t, models.ConfidenceHigh, reasoning.Confidence)
	assert.Len(t, reasoning.Factors, 2)
	assert.Equal(t, 1, fake.calls)

	// The event context reaches the prompt.
	require.Len(t, fake.requests, 1)
	require.Len(t, fake.requests[0].Messages, 2)
	assert.Contains(t, fake.requests[0].Messages[1].Content, "203.0.113.9")
	assert.Contains(t, fake.requests[0].Messages[1].Content, "T1110")
}

func TestAnalyzeThreatRetriesRateLimit(t *testing.T) {
	rateLimit := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}
	fake := &fakeCompletionClient{responses: []fakeResponse{
		{err: rateLimit},
		{content: validReasoningJSON},
	}}
	c := newTestAnalysisClient(t, fake)

	reasoning, err := c.AnalyzeThreat(context.Background(), sampleEvents())
	require.NoError(t, err)
	assert.Equal(t, "Active brute force campaign", reasoning.Summary)
	assert.Equal(t, 2, fake.calls)
}

func TestAnalyzeThreatFallbackAfterRetryBudget(t *testing.T) {
	rateLimit := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}
	fake := &fakeCompletionClient{responses: []fakeResponse{{err: rateLimit}}}
	c := newTestAnalysisClient(t, fake)

	reasoning, err := c.AnalyzeThreat(context.Background(), sampleEvents())
	require.NoError(t, err, "rate limiting must fail closed, not propagate")
	assert.Equal(t, models.ConfidenceMedium, reasoning.Confidence)
	assert.Equal(t, "AI Analysis Throttled - Manual Review Recommended", reasoning.Summary)
	assert.Equal(t, 1+defaultMaxRetries, fake.calls)
}

func TestAnalyzeThreatFallbackOnHardFailure(t *testing.T) {
	fake := &fakeCompletionClient{responses: []fakeResponse{{err: errors.New("connection refused")}}}
	c := newTestAnalysisClient(t, fake)

	reasoning, err := c.AnalyzeThreat(context.Background(), sampleEvents())
	require.NoError(t, err)
	assert.Equal(t, models.ConfidenceMedium, reasoning.Confidence)
	assert.Equal(t, 1, fake.calls, "non-rate-limit errors are not retried")
}

func TestAnalyzeThreatFallbackOnMalformedResponse(t *testing.T) {
	fake := &fakeCompletionClient{responses: []fakeResponse{{content: "not json at all"}}}
	c := newTestAnalysisClient(t, fake)

	reasoning, err := c.AnalyzeThreat(context.Background(), sampleEvents())
	require.NoError(t, err)
	assert.Equal(t, "AI Analysis Throttled - Manual Review Recommended", reasoning.Summary)
}

func TestGenerateForensicReport(t *testing.T) {
	fake := &fakeCompletionClient{responses: []fakeResponse{{content: `{
		"summary": "Targeted brute force incident",
		"technicalDetails": "Repeated SSH authentication failures",
		"timeline": ["10:00 first failure", "10:05 lockout threshold"],
		"riskAssessment": "High",
		"remediationSteps": ["Rotate credentials"]
	}`}}}
	c := newTestAnalysisClient(t, fake)

	report, err := c.GenerateForensicReport(context.Background(), sampleEvents()[0])
	require.NoError(t, err)
	assert.Equal(t, "Targeted brute force incident", report.Summary)
	assert.Len(t, report.Timeline, 2)
}

func TestGenerateForensicReportPropagatesErrors(t *testing.T) {
	fake := &fakeCompletionClient{responses: []fakeResponse{{err: errors.New("boom")}}}
	c := newTestAnalysisClient(t, fake)

	_, err := c.GenerateForensicReport(context.Background(), sampleEvents()[0])
	assert.Error(t, err)
}

func TestClientConfigDefaults(t *testing.T) {
	cfg := ClientConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, defaultModel, cfg.Model)
	assert.Equal(t, defaultForensicModel, cfg.ForensicModel)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
}
