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

package worker

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/vqhq/mergeworker/internal/queue"
)

type extendResult struct {
	status queue.ClaimStatus
	err    error
}

type pollResult struct {
	claim *queue.Claim
	err   error
}

// fakeClient scripts the jobs-system responses and records every call in
// order so tests can assert on sequencing (e.g. no extension after the
// terminal notification).
type fakeClient struct {
	mu sync.Mutex

	polls   []pollResult   // consumed one per Poll; empty = no job
	extends []extendResult // consumed one per ExtendClaim; last repeats

	returnFailures int // fail this many Return calls before succeeding
	completeErr    error

	extendBlock chan struct{} // if set, ExtendClaim blocks on it

	calls       []string
	pollCount   int
	extendCount int
	completes   int
	returns     int
}

func (f *fakeClient) record(name string) {
	f.calls = append(f.calls, name)
}

func (f *fakeClient) Register(ctx context.Context, reg queue.WorkerRegistration) (*queue.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("register")
	return &queue.Worker{
		UUID:   uuid.Must(uuid.NewV4()),
		Active: true,
		Service: queue.Service{
			Name:         reg.ServiceName,
			MajorVersion: reg.MajorVersion,
			MinorVersion: reg.MinorVersion,
			PatchVersion: reg.PatchVersion,
		},
	}, nil
}

func (f *fakeClient) Deactivate(ctx context.Context, workerID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("deactivate")
	return nil
}

func (f *fakeClient) Poll(ctx context.Context, workerID uuid.UUID, claimDuration time.Duration) (*queue.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("poll")
	f.pollCount++

	if len(f.polls) == 0 {
		return nil, nil
	}
	next := f.polls[0]
	f.polls = f.polls[1:]
	return next.claim, next.err
}

func (f *fakeClient) ExtendClaim(ctx context.Context, taskID, workerID, claimID uuid.UUID, extension time.Duration) (queue.ClaimStatus, error) {
	f.mu.Lock()
	block := f.extendBlock
	f.record("extend")
	f.extendCount++

	var next extendResult
	switch {
	case len(f.extends) == 0:
		next = extendResult{status: queue.StatusInProgress}
	case len(f.extends) == 1:
		next = f.extends[0]
	default:
		next = f.extends[0]
		f.extends = f.extends[1:]
	}
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return next.status, next.err
}

func (f *fakeClient) Complete(ctx context.Context, workerID, taskID, claimID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("complete")
	f.completes++
	return f.completeErr
}

func (f *fakeClient) Return(ctx context.Context, workerID, taskID, claimID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("return")
	f.returns++
	if f.returnFailures > 0 {
		f.returnFailures--
		return &queue.StatusError{Endpoint: "/return", Code: 502}
	}
	return nil
}

func (f *fakeClient) snapshotCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.calls...)
}

func (f *fakeClient) counts() (polls, extends, completes, returns int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCount, f.extendCount, f.completes, f.returns
}

func testClaim() *queue.Claim {
	return &queue.Claim{
		ClaimUUID:         uuid.Must(uuid.NewV4()),
		ClaimExpires:      time.Now().Add(10 * time.Minute),
		TaskUUID:          uuid.Must(uuid.NewV4()),
		TaskToken:         "tok",
		TaskConfiguration: []byte(`{"filesToMerge":["b502e7d8-4ef6-4f7a-9b6e-3c1a2d4e5f60"],"destinationFolder":"c613f8e9-5fa7-4b8b-8c7f-4d2b3e5f6a71","outputName":"merged.pdf"}`),
	}
}

func testIdentity() *queue.Worker {
	return &queue.Worker{UUID: uuid.Must(uuid.NewV4()), Active: true}
}
