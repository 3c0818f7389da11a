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

// Package ledger maintains the bounded, deduplicated, newest-first list of
// displayed security events.
package ledger

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/threatlens/threatlens/pkg/models"
)

const (
	// DefaultCapacity is the number of events kept for display.
	DefaultCapacity = 50

	// dedupeCapacity is how many event IDs are remembered for
	// deduplication. It outlives display eviction so a replayed event
	// that already scrolled off the window is still rejected.
	dedupeCapacity = 512
)

// Ledger is the bounded event collection merged from all update sources.
// Both push-channel threats and local simulation funnel through Ingest so
// deduplication is uniform.
type Ledger struct {
	mu       sync.RWMutex
	events   []models.SecurityEvent
	seen     *lru.Cache[string, struct{}]
	capacity int
}

// New creates a ledger with the default display capacity.
func New() *Ledger {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a ledger holding at most capacity events.
func NewWithCapacity(capacity int) *Ledger {
	seen, _ := lru.New[string, struct{}](dedupeCapacity)

	return &Ledger{
		events:   make([]models.SecurityEvent, 0, capacity),
		seen:     seen,
		capacity: capacity,
	}
}

// Ingest inserts an event at the front of the ledger. Events whose ID has
// been seen before are rejected. Returns whether the event was added.
func (l *Ledger) Ingest(event models.SecurityEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen.Get(event.ID); dup {
		return false
	}

	l.seen.Add(event.ID, struct{}{})

	l.events = append([]models.SecurityEvent{event}, l.events...)
	if len(l.events) > l.capacity {
		l.events = l.events[:l.capacity]
	}

	return true
}

// Reset clears the ledger and its deduplication memory.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = l.events[:0]
	l.seen.Purge()
}

// PruneTo keeps only the n most recent events. Used on the transition back
// to the normal scenario so the display empties gradually instead of
// snapping to blank.
func (l *Ledger) PruneTo(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n < 0 {
		n = 0
	}

	if len(l.events) > n {
		l.events = l.events[:n]
	}
}

// Len returns the current event count.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.events)
}

// Events returns a copy of the ledger, newest first.
func (l *Ledger) Events() []models.SecurityEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.SecurityEvent, len(l.events))
	copy(out, l.events)

	return out
}

// TopBySeverity returns up to n of the most recent events at or above the
// given severity. It is a pure query over the stored sequence.
func (l *Ledger) TopBySeverity(min models.Severity, n int) []models.SecurityEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.SecurityEvent, 0, n)

	for i := range l.events {
		if len(out) == n {
			break
		}

		if l.events[i].Severity.AtLeast(min) {
			out = append(out, l.events[i])
		}
	}

	return out
}
