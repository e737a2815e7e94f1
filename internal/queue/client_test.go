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

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestRegisterSendsIdentityHeaders(t *testing.T) {
	workerID := uuid.Must(uuid.NewV4())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/jobs/register", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		require.Equal(t, "pdf-merge/test", r.Header.Get("User-Agent"))

		var reg WorkerRegistration
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		require.Equal(t, "pdf-merge", reg.ServiceName)
		require.Equal(t, "generic", reg.Channel, "empty channel must default")

		json.NewEncoder(w).Encode(Worker{
			UUID:   workerID,
			Active: true,
			Service: Service{
				Name:         reg.ServiceName,
				MajorVersion: reg.MajorVersion,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "pdf-merge/test", time.Second)
	w, err := c.Register(context.Background(), WorkerRegistration{
		ServiceName:  "pdf-merge",
		MajorVersion: 0, MinorVersion: 1, PatchVersion: 0,
	})
	require.NoError(t, err)
	require.Equal(t, workerID, w.UUID)
	require.True(t, w.Active)
}

func TestPollNoContentMeansNoJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "600", r.URL.Query().Get("claimDuration"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "ua", time.Second)
	claim, err := c.Poll(context.Background(), uuid.Must(uuid.NewV4()), 10*time.Minute)
	require.NoError(t, err)
	require.Nil(t, claim)
}

func TestPollDecodesClaim(t *testing.T) {
	workerID := uuid.Must(uuid.NewV4())
	claimID := uuid.Must(uuid.NewV4())
	taskID := uuid.Must(uuid.NewV4())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/jobs/"+workerID.String()+"/poll", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"claimUuid":         claimID,
			"claimExpires":      time.Now().Add(10 * time.Minute),
			"taskUuid":          taskID,
			"taskToken":         "tok",
			"taskConfiguration": map[string]any{"outputName": "merged.pdf"},
			"taskRetries":       3,
			"taskRetryCount":    1,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "ua", time.Second)
	claim, err := c.Poll(context.Background(), workerID, 10*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claim)
	require.Equal(t, claimID, claim.ClaimUUID)
	require.Equal(t, taskID, claim.TaskUUID)
	require.Equal(t, "tok", claim.TaskToken)
	require.JSONEq(t, `{"outputName":"merged.pdf"}`, string(claim.TaskConfiguration))
}

func TestExtendClaimQueryAndStatus(t *testing.T) {
	workerID := uuid.Must(uuid.NewV4())
	claimID := uuid.Must(uuid.NewV4())
	taskID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name   string
		status string
		want   ClaimStatus
	}{
		{name: "in progress", status: "in progress", want: StatusInProgress},
		{name: "cancelled", status: "cancelled", want: StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/api/v1/jobs/tasks/"+taskID.String()+"/poll", r.URL.Path)
				q := r.URL.Query()
				require.Equal(t, workerID.String(), q.Get("workerUuid"))
				require.Equal(t, claimID.String(), q.Get("claimUuid"))
				require.Equal(t, "600", q.Get("extension"))
				json.NewEncoder(w).Encode(map[string]string{"status": tt.status})
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "k", "ua", time.Second)
			status, err := c.ExtendClaim(context.Background(), taskID, workerID, claimID, 10*time.Minute)
			require.NoError(t, err)
			require.Equal(t, tt.want, status)
		})
	}
}

func TestNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "ua", time.Second)
	_, err := c.Poll(context.Background(), uuid.Must(uuid.NewV4()), time.Minute)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadGateway, se.Code)
}

func TestCompleteAndReturnPaths(t *testing.T) {
	workerID := uuid.Must(uuid.NewV4())
	claimID := uuid.Must(uuid.NewV4())
	taskID := uuid.Must(uuid.NewV4())

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, claimID.String(), r.URL.Query().Get("claimUuid"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "ua", time.Second)

	require.NoError(t, c.Complete(context.Background(), workerID, taskID, claimID))
	require.Equal(t, "/api/v1/jobs/"+workerID.String()+"/complete/"+taskID.String(), gotPath)

	require.NoError(t, c.Return(context.Background(), workerID, taskID, claimID))
	require.Equal(t, "/api/v1/jobs/"+workerID.String()+"/return/"+taskID.String(), gotPath)
}
