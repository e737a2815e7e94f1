// Copyright 2026 VQ Technologies Ltd
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue is the client for the jobs-system REST surface: worker
// registration, claim polling, lease extension and the terminal
// complete/return calls.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
)

// StatusError is returned for any response outside the documented 2xx/204
// dispositions.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jobs system %s: unexpected status %d", e.Endpoint, e.Code)
}

// Client talks to the jobs system. Every request carries the API key and a
// User-Agent identifying the worker build.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	httpc     *http.Client
}

func NewClient(baseURL, apiKey, userAgent string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		userAgent: userAgent,
		httpc:     &http.Client{Timeout: timeout},
	}
}

func (c *Client) post(ctx context.Context, path string, query url.Values, in, out any) (int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("jobs system %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return res.StatusCode, nil
	}
	if res.StatusCode/100 != 2 {
		return res.StatusCode, &StatusError{Endpoint: path, Code: res.StatusCode}
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return res.StatusCode, fmt.Errorf("jobs system %s: decoding response: %w", path, err)
		}
	}
	return res.StatusCode, nil
}

// Register announces this worker to the jobs system and returns the granted
// identity.
func (c *Client) Register(ctx context.Context, reg WorkerRegistration) (*Worker, error) {
	if reg.Channel == "" {
		reg.Channel = "generic"
	}

	var w Worker
	if _, err := c.post(ctx, "/api/v1/jobs/register", nil, reg, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Deactivate deregisters the worker.
func (c *Client) Deactivate(ctx context.Context, workerID uuid.UUID) error {
	_, err := c.post(ctx, "/api/v1/jobs/"+workerID.String()+"/deactivate", nil, nil, nil)
	return err
}

// Poll attempts to claim a job for the given worker. A nil Claim with a nil
// error means no job was available (the documented 204).
func (c *Client) Poll(ctx context.Context, workerID uuid.UUID, claimDuration time.Duration) (*Claim, error) {
	query := url.Values{"claimDuration": {seconds(claimDuration)}}

	var claim Claim
	code, err := c.post(ctx, "/api/v1/jobs/"+workerID.String()+"/poll", query, nil, &claim)
	if err != nil {
		return nil, err
	}
	if code == http.StatusNoContent {
		return nil, nil
	}
	return &claim, nil
}

// ExtendClaim is the heartbeat: it pushes the lease expiry out by the given
// extension and reports the claim's current status.
func (c *Client) ExtendClaim(ctx context.Context, taskID, workerID, claimID uuid.UUID, extension time.Duration) (ClaimStatus, error) {
	query := url.Values{
		"workerUuid": {workerID.String()},
		"claimUuid":  {claimID.String()},
		"extension":  {seconds(extension)},
	}

	var out struct {
		Status ClaimStatus `json:"status"`
	}
	if _, err := c.post(ctx, "/api/v1/jobs/tasks/"+taskID.String()+"/poll", query, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// Complete reports the task as finished successfully, releasing the claim.
func (c *Client) Complete(ctx context.Context, workerID, taskID, claimID uuid.UUID) error {
	query := url.Values{"claimUuid": {claimID.String()}}
	_, err := c.post(ctx, "/api/v1/jobs/"+workerID.String()+"/complete/"+taskID.String(), query, nil, nil)
	return err
}

// Return hands the task back to the pool after a failure or interruption so
// another worker can pick it up.
func (c *Client) Return(ctx context.Context, workerID, taskID, claimID uuid.UUID) error {
	query := url.Values{"claimUuid": {claimID.String()}}
	_, err := c.post(ctx, "/api/v1/jobs/"+workerID.String()+"/return/"+taskID.String(), query, nil, nil)
	return err
}

// The jobs system expresses durations as whole seconds in query strings.
func seconds(d time.Duration) string {
	return strconv.Itoa(int(d / time.Second))
}
