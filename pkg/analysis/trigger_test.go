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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/models"
)

// blockingAnalyzer holds every AnalyzeThreat call until released, so tests
// control exactly when an in-flight analysis resolves.
type blockingAnalyzer struct {
	mu      sync.Mutex
	calls   int
	gate    chan struct{}
	result  models.AIReasoning
	err     error
	lastLen int
}

func newBlockingAnalyzer() *blockingAnalyzer {
	return &blockingAnalyzer{
		gate:   make(chan struct{}),
		result: models.AIReasoning{Summary: "live analysis"},
	}
}

func (b *blockingAnalyzer) AnalyzeThreat(_ context.Context, events []models.SecurityEvent) (models.AIReasoning, error) {
	b.mu.Lock()
	b.calls++
	b.lastLen = len(events)
	gate := b.gate
	b.mu.Unlock()

	<-gate

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.result, b.err
}

func (b *blockingAnalyzer) GenerateForensicReport(context.Context, models.SecurityEvent) (models.ForensicReport, error) {
	return models.ForensicReport{}, errors.New("not implemented")
}

func (b *blockingAnalyzer) release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	close(b.gate)
}

func (b *blockingAnalyzer) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.calls
}

// resultCollector captures onResult invocations.
type resultCollector struct {
	mu      sync.Mutex
	results []models.AIReasoning
	notify  chan struct{}
}

func newResultCollector() *resultCollector {
	return &resultCollector{notify: make(chan struct{}, 16)}
}

func (r *resultCollector) collect(reasoning models.AIReasoning) {
	r.mu.Lock()
	r.results = append(r.results, reasoning)
	r.mu.Unlock()

	r.notify <- struct{}{}
}

func (r *resultCollector) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.results)
}

func (r *resultCollector) waitForResult(t *testing.T) {
	t.Helper()

	select {
	case <-r.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for analysis result")
	}
}

func criticalEvents(n int) []models.SecurityEvent {
	events := make([]models.SecurityEvent, n)
	for i := range events {
		events[i] = models.SecurityEvent{
			ID:       "TX-" + string(rune('a'+i)),
			Severity: models.SeverityCritical,
			Type:     models.EventBruteForce,
		}
	}

	return events
}

func waitForIdle(t *testing.T, trig *Trigger) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for trig.Analyzing() {
		if time.Now().After(deadline) {
			t.Fatal("trigger never returned to idle")
		}

		time.Sleep(time.Millisecond)
	}
}

func TestTriggerFiresOnLevelTransition(t *testing.T) {
	fake := newBlockingAnalyzer()
	collector := newResultCollector()
	trig := NewTrigger(fake, collector.collect, logger.NewTestLogger())

	fired := trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(3))
	require.True(t, fired)
	assert.True(t, trig.Analyzing())

	fake.release()
	collector.waitForResult(t)
	waitForIdle(t, trig)

	assert.Equal(t, 1, collector.count())
	assert.Equal(t, "live analysis", collector.results[0].Summary)
}

func TestTriggerDoesNotFireConcurrently(t *testing.T) {
	fake := newBlockingAnalyzer()
	collector := newResultCollector()
	trig := NewTrigger(fake, collector.collect, logger.NewTestLogger())

	require.True(t, trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(2)))

	// A second evaluation while the first is unresolved must be a no-op,
	// even across a level transition.
	assert.False(t, trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(2)))
	assert.False(t, trig.Evaluate(context.Background(), models.LevelSuspicious, criticalEvents(2)))
	assert.Equal(t, 1, fake.callCount())

	fake.release()
	collector.waitForResult(t)
}

func TestTriggerNeverFiresAtNormalOrWithoutEvents(t *testing.T) {
	fake := newBlockingAnalyzer()
	trig := NewTrigger(fake, func(models.AIReasoning) {}, logger.NewTestLogger())

	assert.False(t, trig.Evaluate(context.Background(), models.LevelNormal, criticalEvents(5)))
	assert.False(t, trig.Evaluate(context.Background(), models.LevelCritical, nil))
	assert.Equal(t, 0, fake.callCount())
}

func TestTriggerTruncatesEventWindow(t *testing.T) {
	fake := newBlockingAnalyzer()
	collector := newResultCollector()
	trig := NewTrigger(fake, collector.collect, logger.NewTestLogger())

	require.True(t, trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(9)))
	fake.release()
	collector.waitForResult(t)

	assert.Equal(t, MaxEvents, fake.lastLen)
}

func TestTriggerSustainedCriticalDoesNotRefire(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := newBlockingAnalyzer()
	collector := newResultCollector()
	trig := NewTrigger(fake, collector.collect, logger.NewTestLogger(),
		WithNow(func() time.Time { return now }))

	require.True(t, trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(2)))
	fake.release()
	collector.waitForResult(t)
	waitForIdle(t, trig)

	// Well past the cooldown, still Critical: no repeat call.
	now = now.Add(10 * time.Minute)
	assert.False(t, trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(2)))
	assert.Equal(t, 1, fake.callCount())
}

func TestTriggerSustainedSuspiciousHonorsCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := newBlockingAnalyzer()
	collector := newResultCollector()
	trig := NewTrigger(fake, collector.collect, logger.NewTestLogger(),
		WithNow(func() time.Time { return now }))

	require.True(t, trig.Evaluate(context.Background(), models.LevelSuspicious, criticalEvents(2)))
	fake.release()
	collector.waitForResult(t)
	waitForIdle(t, trig)

	// Inside the cooldown window: suppressed.
	now = now.Add(30 * time.Second)
	assert.False(t, trig.Evaluate(context.Background(), models.LevelSuspicious, criticalEvents(2)))

	// At the cooldown boundary: fires again.
	now = now.Add(90 * time.Second)

	fake.mu.Lock()
	fake.gate = make(chan struct{})
	fake.mu.Unlock()

	require.True(t, trig.Evaluate(context.Background(), models.LevelSuspicious, criticalEvents(2)))
	fake.release()
	collector.waitForResult(t)

	assert.Equal(t, 2, fake.callCount())
}

func TestTriggerLevelChangeBypassesCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := newBlockingAnalyzer()
	collector := newResultCollector()
	trig := NewTrigger(fake, collector.collect, logger.NewTestLogger(),
		WithNow(func() time.Time { return now }))

	require.True(t, trig.Evaluate(context.Background(), models.LevelSuspicious, criticalEvents(2)))
	fake.release()
	collector.waitForResult(t)
	waitForIdle(t, trig)

	// One second later the level escalates; the cooldown does not apply.
	now = now.Add(time.Second)

	fake.mu.Lock()
	fake.gate = make(chan struct{})
	fake.mu.Unlock()

	require.True(t, trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(2)))
	fake.release()
	collector.waitForResult(t)

	assert.Equal(t, 2, fake.callCount())
}

func TestTriggerResetFencesInFlightResult(t *testing.T) {
	fake := newBlockingAnalyzer()
	collector := newResultCollector()
	trig := NewTrigger(fake, collector.collect, logger.NewTestLogger())

	require.True(t, trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(2)))

	// Reset while the call is unresolved; its eventual result is stale.
	trig.Reset()
	assert.False(t, trig.Analyzing())

	fake.release()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, collector.count(), "stale result must be discarded")

	// The trigger is usable again immediately after reset.
	fake.mu.Lock()
	fake.gate = make(chan struct{})
	fake.mu.Unlock()

	require.True(t, trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(2)))
	fake.release()
	collector.waitForResult(t)
	assert.Equal(t, 1, collector.count())
}

func TestTriggerKeepsPriorReasoningOnFailure(t *testing.T) {
	fake := newBlockingAnalyzer()
	fake.err = errors.New("upstream unavailable")
	collector := newResultCollector()
	trig := NewTrigger(fake, collector.collect, logger.NewTestLogger())

	require.True(t, trig.Evaluate(context.Background(), models.LevelCritical, criticalEvents(2)))
	fake.release()
	waitForIdle(t, trig)

	assert.Equal(t, 0, collector.count())

	// Failure clears the in-flight flag so a later transition can retry.
	fake.mu.Lock()
	fake.err = nil
	fake.gate = make(chan struct{})
	fake.mu.Unlock()

	require.True(t, trig.Evaluate(context.Background(), models.LevelSuspicious, criticalEvents(2)))
	fake.release()
	collector.waitForResult(t)
	assert.Equal(t, 1, collector.count())
}
