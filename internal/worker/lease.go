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
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
)

// LeaseState tracks a held claim from grant to its single terminal
// transition.
type LeaseState int

const (
	LeaseHeld LeaseState = iota
	// LeaseCompleted - success reported to the jobs system
	LeaseCompleted
	// LeaseReturned - handed back to the pool after failure or interruption
	LeaseReturned
	// LeaseVoided - the jobs system cancelled the claim itself; no
	// notification is owed (or permitted)
	LeaseVoided
)

func (s LeaseState) String() string {
	switch s {
	case LeaseHeld:
		return "held"
	case LeaseCompleted:
		return "completed"
	case LeaseReturned:
		return "returned"
	case LeaseVoided:
		return "voided"
	default:
		return "unknown"
	}
}

// ErrLeaseResolved is returned by a terminal transition on an already
// resolved lease.
var ErrLeaseResolved = errors.New("lease already resolved")

// Lease is the (task, claim) pair a session exclusively owns. Exactly one of
// Complete, Return or Void may succeed, which keeps the "one terminal
// notification per claim" rule mechanically checked rather than implied.
type Lease struct {
	taskID  uuid.UUID
	claimID uuid.UUID
	state   LeaseState
}

// HoldLease records a freshly granted claim.
func HoldLease(taskID, claimID uuid.UUID) *Lease {
	return &Lease{taskID: taskID, claimID: claimID, state: LeaseHeld}
}

func (l *Lease) TaskID() uuid.UUID  { return l.taskID }
func (l *Lease) ClaimID() uuid.UUID { return l.claimID }
func (l *Lease) State() LeaseState  { return l.state }

// Resolved reports whether a terminal transition has happened.
func (l *Lease) Resolved() bool { return l.state != LeaseHeld }

func (l *Lease) transition(to LeaseState) error {
	if l.state != LeaseHeld {
		return fmt.Errorf("%w: task %s is %s, cannot move to %s",
			ErrLeaseResolved, l.taskID, l.state, to)
	}
	l.state = to
	return nil
}

// Complete marks the lease successfully finished.
func (l *Lease) Complete() error { return l.transition(LeaseCompleted) }

// Return marks the lease handed back to the pool.
func (l *Lease) Return() error { return l.transition(LeaseReturned) }

// Void marks the lease cancelled by the jobs system itself.
func (l *Lease) Void() error { return l.transition(LeaseVoided) }
