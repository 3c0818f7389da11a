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

package playbook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threatlens/threatlens/pkg/logger"
)

func newFastRunner(t *testing.T) *Runner {
	t.Helper()
	return NewRunner(logger.NewTestLogger(), WithTiming(5*time.Millisecond, 10*time.Millisecond))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(time.Millisecond)
	}

	t.Fatal(msg)
}

func TestExecuteRunsFullSequence(t *testing.T) {
	r := newFastRunner(t)

	require.NoError(t, r.Execute())
	assert.True(t, r.MitigationActive())

	seen := make(map[string]bool)

	waitFor(t, func() bool {
		if step := r.CurrentStep(); step != "" {
			seen[step] = true
		}

		return !r.Running()
	}, "playbook never completed")

	for _, step := range Steps {
		assert.True(t, seen[step], "step %s was never displayed", step)
	}

	assert.True(t, seen[VerifiedStep], "verified step was never displayed")
	assert.Empty(t, r.CurrentStep(), "step display clears after the verified hold")

	// Completion does not clear the mitigation bias; the owner does.
	assert.True(t, r.MitigationActive())
}

func TestExecuteRejectedWhileActive(t *testing.T) {
	r := newFastRunner(t)

	require.NoError(t, r.Execute())

	err := r.Execute()
	assert.ErrorIs(t, err, ErrAlreadyActive)

	waitFor(t, func() bool { return !r.Running() }, "playbook never completed")

	// Still rejected: mitigation stays active until cleared by the owner.
	assert.ErrorIs(t, r.Execute(), ErrAlreadyActive)
}

func TestClearMitigationAllowsNewRun(t *testing.T) {
	r := newFastRunner(t)

	require.NoError(t, r.Execute())
	waitFor(t, func() bool { return !r.Running() }, "playbook never completed")

	r.ClearMitigation()
	assert.False(t, r.MitigationActive())
	require.NoError(t, r.Execute())
}

func TestClearMitigationDoesNotStopSequence(t *testing.T) {
	r := NewRunner(logger.NewTestLogger(), WithTiming(20*time.Millisecond, 20*time.Millisecond))

	require.NoError(t, r.Execute())
	waitFor(t, func() bool { return r.CurrentStep() != "" }, "run never started")

	r.ClearMitigation()

	// The sequence is not cancellable; it keeps advancing to completion.
	assert.True(t, r.Running())
	waitFor(t, func() bool { return !r.Running() }, "playbook never completed")
}
