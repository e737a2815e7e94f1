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
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// WorkerRegistration is the body sent to the register endpoint.
type WorkerRegistration struct {
	ServiceName  string `json:"serviceName"`
	Channel      string `json:"channel"`
	FriendlyName string `json:"friendlyName,omitempty"`
	MajorVersion int    `json:"majorVersion"`
	MinorVersion int    `json:"minorVersion"`
	PatchVersion int    `json:"patchVersion"`
}

// Service describes the registered service as the jobs system stores it.
type Service struct {
	UUID         uuid.UUID `json:"uuid"`
	Name         string    `json:"name"`
	MajorVersion int       `json:"majorVersion"`
	MinorVersion int       `json:"minorVersion"`
	PatchVersion int       `json:"patchVersion"`
}

// Worker is the identity granted at registration. The jobs system is the
// source of truth for whether it is still active.
type Worker struct {
	UUID         uuid.UUID `json:"uuid"`
	Service      Service   `json:"service"`
	Channel      string    `json:"channel"`
	FriendlyName string    `json:"friendlyName,omitempty"`
	LastPoll     time.Time `json:"lastPoll"`
	Active       bool      `json:"active"`
}

// Claim is granted by a successful poll. TaskConfiguration stays raw here;
// the job package gives it shape.
type Claim struct {
	ClaimUUID         uuid.UUID       `json:"claimUuid"`
	ClaimExpires      time.Time       `json:"claimExpires"`
	TaskUUID          uuid.UUID       `json:"taskUuid"`
	TaskToken         string          `json:"taskToken"`
	TaskConfiguration json.RawMessage `json:"taskConfiguration"`
	TaskRetries       int             `json:"taskRetries"`
	TaskRetryCount    int             `json:"taskRetryCount"`
}

// ClaimStatus is the jobs system's view of a held claim, as reported by the
// extension endpoint.
type ClaimStatus string

const (
	StatusInProgress ClaimStatus = "in progress"
	StatusCancelled  ClaimStatus = "cancelled"
)
