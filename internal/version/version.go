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

// Package version exposes build identification for logs and the
// User-Agent header sent to the jobs system.
package version

import (
	"fmt"
	"runtime/debug"
	"time"
)

// Semantic version of the worker, reported at registration.
const (
	Major = 0
	Minor = 1
	Patch = 0
)

// Build returns "<date>-<shorthash>" from the embedded VCS info, or "dev"
// when the binary was built outside a checkout.
func Build() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}

	var revision, buildDate string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) >= 8 {
				revision = s.Value[:8]
			} else {
				revision = s.Value
			}
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				buildDate = t.Format("20060102")
			}
		}
	}

	if revision == "" {
		return "dev"
	}
	if buildDate == "" {
		return revision
	}
	return buildDate + "-" + revision
}

// UserAgent identifies this worker build on every outbound request.
func UserAgent() string {
	return fmt.Sprintf("pdf-merge/%s", Build())
}

// Semver returns the registration version string.
func Semver() string {
	return fmt.Sprintf("v%d.%d.%d", Major, Minor, Patch)
}
