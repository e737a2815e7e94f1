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

package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/gofrs/uuid/v5"
)

// Default configuration constants
const (
	// Jobs-system lease timing defaults
	DefaultHeartbeatInterval = 10 * time.Second
	DefaultClaimDuration     = 10 * time.Minute

	// Poll loop defaults
	DefaultPollSleep = 60 * time.Second

	// HTTP defaults
	DefaultRequestTimeout = 60 * time.Second
)

// Config holds the complete worker configuration
type Config struct {
	Service string `json:"service_name" env:"SERVICE_NAME" envDefault:"pdf-merge"`

	API    APIConfig    `json:"api"`
	Jobs   JobsConfig   `json:"jobs"`
	Logger LoggerConfig `json:"logger" envPrefix:"LOG_"`
}

// APIConfig holds the connection details for the VQ platform API.
type APIConfig struct {
	URL            string        `json:"url"             env:"VQ_URL"`
	Key            string        `json:"-"               env:"VQ_KEY"`
	Organisation   uuid.UUID     `json:"organisation"    env:"ORGANISATION_UUID"`
	RequestTimeout time.Duration `json:"request_timeout" env:"REQUEST_TIMEOUT"`
}

// JobsConfig holds the lease and poll-loop tuning knobs.
type JobsConfig struct {
	// Continuous keeps the worker polling for further jobs instead of
	// exiting after the first one.
	Continuous bool `json:"continuous" env:"CONTINUOUS" envDefault:"false"`

	// PollSleep is how long to wait between polls when no job is available
	// in continuous mode.
	PollSleep time.Duration `json:"poll_sleep" env:"SLEEP_TIME"`

	// HeartbeatInterval is the delay between lease extension calls.
	HeartbeatInterval time.Duration `json:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`

	// ClaimDuration is both the initial claim length and the extension
	// requested by each heartbeat. It must comfortably exceed the
	// heartbeat interval so a missed beat or two cannot expire the lease.
	ClaimDuration time.Duration `json:"claim_duration" env:"CLAIM_DURATION"`
}

func LoadConfig() (*Config, error) {
	cfg := Config{
		API: APIConfig{
			RequestTimeout: DefaultRequestTimeout,
		},
		Jobs: JobsConfig{
			PollSleep:         DefaultPollSleep,
			HeartbeatInterval: DefaultHeartbeatInterval,
			ClaimDuration:     DefaultClaimDuration,
		},
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the invariants the rest of the worker relies on.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return errors.New("no VQ_URL available (check yaml?)")
	}
	if c.API.Key == "" {
		return errors.New("no VQ_KEY available (check secrets?)")
	}
	if c.API.Organisation.IsNil() {
		return errors.New("ORGANISATION_UUID must be set for read/write to VQ Files")
	}
	if c.Jobs.HeartbeatInterval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.Jobs.ClaimDuration <= 2*c.Jobs.HeartbeatInterval {
		return fmt.Errorf("claim duration %s too short for heartbeat interval %s",
			c.Jobs.ClaimDuration, c.Jobs.HeartbeatInterval)
	}
	return nil
}

func (c *Config) ServiceName() string {
	return c.Service
}
