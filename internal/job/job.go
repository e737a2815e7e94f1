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

// Package job turns a raw claim into the descriptor the merge work runs on.
package job

import (
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/vqhq/mergeworker/internal/queue"
)

// Job is the unit of work behind one claim. Immutable after FromClaim.
type Job struct {
	TaskUUID          uuid.UUID
	FilesToMerge      []uuid.UUID
	DestinationFolder uuid.UUID
	OutputName        string
	OrganisationUUID  uuid.UUID

	// TaskToken authorises calls scoped to this task.
	TaskToken string
}

type taskConfiguration struct {
	FilesToMerge      []uuid.UUID `json:"filesToMerge"`
	DestinationFolder uuid.UUID   `json:"destinationFolder"`
	OutputName        string      `json:"outputName"`
	OrganisationUUID  uuid.UUID   `json:"organisationUuid"`
}

// FromClaim builds the descriptor from a granted claim's task configuration.
func FromClaim(claim *queue.Claim) (*Job, error) {
	var cfg taskConfiguration
	if err := json.Unmarshal(claim.TaskConfiguration, &cfg); err != nil {
		return nil, fmt.Errorf("task %s: parsing task configuration: %w", claim.TaskUUID, err)
	}

	if len(cfg.FilesToMerge) == 0 {
		return nil, fmt.Errorf("task %s: task configuration lists no files to merge", claim.TaskUUID)
	}
	if cfg.DestinationFolder.IsNil() {
		return nil, fmt.Errorf("task %s: task configuration has no destination folder", claim.TaskUUID)
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "merged.pdf"
	}

	return &Job{
		TaskUUID:          claim.TaskUUID,
		FilesToMerge:      cfg.FilesToMerge,
		DestinationFolder: cfg.DestinationFolder,
		OutputName:        cfg.OutputName,
		OrganisationUUID:  cfg.OrganisationUUID,
		TaskToken:         claim.TaskToken,
	}, nil
}
