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

package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatlens/threatlens/pkg/models"
)

func makeEvent(id string, severity models.Severity) models.SecurityEvent {
	return models.SecurityEvent{
		ID:        id,
		Timestamp: time.Now(),
		Type:      models.EventAPIRequest,
		Severity:  severity,
		Status:    models.StatusSuccess,
	}
}

func TestIngestNewestFirst(t *testing.T) {
	l := New()

	require.True(t, l.Ingest(makeEvent("a", models.SeverityInfo)))
	require.True(t, l.Ingest(makeEvent("b", models.SeverityInfo)))
	require.True(t, l.Ingest(makeEvent("c", models.SeverityInfo)))

	events := l.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
	assert.Equal(t, "a", events[2].ID)
}

func TestIngestRejectsDuplicateID(t *testing.T) {
	l := New()

	require.True(t, l.Ingest(makeEvent("dup", models.SeverityHigh)))

	before := l.Events()
	assert.False(t, l.Ingest(makeEvent("dup", models.SeverityLow)))
	assert.Equal(t, before, l.Events(), "second ingest with same id must be a no-op")
}

func TestCapacityBound(t *testing.T) {
	l := New()

	for i := 0; i < DefaultCapacity*3; i++ {
		l.Ingest(makeEvent(fmt.Sprintf("ev-%d", i), models.SeverityInfo))
	}

	events := l.Events()
	require.Len(t, events, DefaultCapacity)

	// Newest survive, oldest are evicted.
	assert.Equal(t, fmt.Sprintf("ev-%d", DefaultCapacity*3-1), events[0].ID)

	seen := make(map[string]bool, len(events))
	for _, ev := range events {
		assert.False(t, seen[ev.ID], "duplicate id %s in ledger", ev.ID)
		seen[ev.ID] = true
	}
}

func TestDedupeSurvivesEviction(t *testing.T) {
	l := NewWithCapacity(2)

	require.True(t, l.Ingest(makeEvent("old", models.SeverityInfo)))
	require.True(t, l.Ingest(makeEvent("x", models.SeverityInfo)))
	require.True(t, l.Ingest(makeEvent("y", models.SeverityInfo)))

	// "old" has scrolled off the display window but its id is remembered.
	assert.Equal(t, 2, l.Len())
	assert.False(t, l.Ingest(makeEvent("old", models.SeverityInfo)))
}

func TestReset(t *testing.T) {
	l := New()

	l.Ingest(makeEvent("a", models.SeverityInfo))
	l.Reset()

	assert.Equal(t, 0, l.Len())

	// Reset also forgets dedup state so a fresh session can replay ids.
	assert.True(t, l.Ingest(makeEvent("a", models.SeverityInfo)))
}

func TestPruneTo(t *testing.T) {
	l := New()

	for i := 0; i < 10; i++ {
		l.Ingest(makeEvent(fmt.Sprintf("ev-%d", i), models.SeverityInfo))
	}

	l.PruneTo(3)

	events := l.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "ev-9", events[0].ID)
	assert.Equal(t, "ev-7", events[2].ID)

	l.PruneTo(-1)
	assert.Equal(t, 0, l.Len())
}

func TestTopBySeverity(t *testing.T) {
	l := New()

	l.Ingest(makeEvent("info1", models.SeverityInfo))
	l.Ingest(makeEvent("high1", models.SeverityHigh))
	l.Ingest(makeEvent("med1", models.SeverityMedium))
	l.Ingest(makeEvent("crit1", models.SeverityCritical))
	l.Ingest(makeEvent("high2", models.SeverityHigh))

	top := l.TopBySeverity(models.SeverityHigh, 5)
	require.Len(t, top, 3)
	assert.Equal(t, "high2", top[0].ID)
	assert.Equal(t, "crit1", top[1].ID)
	assert.Equal(t, "high1", top[2].ID)

	limited := l.TopBySeverity(models.SeverityHigh, 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "high2", limited[0].ID)
}
