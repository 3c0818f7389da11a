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

package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/threatlens/threatlens/pkg/logger"
	"github.com/threatlens/threatlens/pkg/models"
)

const submitTimeout = 5 * time.Second

// Submitter posts simulated events to the backend's simulate endpoint.
// Submission is fire-and-forget: failures are logged and swallowed so a
// dead backend never disturbs the local simulation loop.
type Submitter struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

// NewSubmitter creates a submitter for the given backend base URL.
func NewSubmitter(baseURL string, log logger.Logger) *Submitter {
	return &Submitter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: submitTimeout},
		logger:  log,
	}
}

// Submit posts one simulated event. Errors are reported in the return value
// for tests but are already logged; callers may ignore them.
func (s *Submitter) Submit(ctx context.Context, event models.SimulatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode simulated event")
		return err
	}

	url := s.baseURL + "/api/simulate/event"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.logger.Error().Err(err).Str("url", url).Msg("Failed to build simulate request")
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", url).Msg("Simulated event submission failed")
		return err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		err = fmt.Errorf("simulate endpoint returned %s", resp.Status)
		s.logger.Debug().
			Int("status", resp.StatusCode).
			Str("event_id", event.EventID).
			Msg("Simulated event rejected by backend")

		return err
	}

	return nil
}
