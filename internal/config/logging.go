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
	"io"
	"log/slog"
	"os"
	"strings"
)

type LoggerConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`   // debug|info|warn|error
	Format string `env:"FORMAT" envDefault:"pretty"` // pretty|json
	Output string `env:"OUTPUT" envDefault:"stdout"` // stdout|stderr|file:/path

	// OTELExporter enables shipping logs to an OTLP endpoint: none|otlp-http
	OTELExporter string `env:"OTEL_EXPORTER" envDefault:"none"`
}

// Writer resolves the configured log destination. Unknown values fall back
// to stdout with a warning.
func (lc *LoggerConfig) Writer() io.Writer {
	out := strings.TrimSpace(lc.Output)
	switch {
	case out == "" || strings.EqualFold(out, "stdout"):
		return os.Stdout
	case strings.EqualFold(out, "stderr"):
		return os.Stderr
	case strings.HasPrefix(strings.ToLower(out), "file:"):
		path := out[len("file:"):]
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			slog.Warn("cannot open file for log output", "path", path, "error", err)
			return os.Stdout
		}
		return f
	default:
		slog.Warn("unknown log output entry", "entry", out)
		return os.Stdout
	}
}

func (lc *LoggerConfig) ParseLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Pretty reports whether the human-readable colored handler should be used.
func (lc *LoggerConfig) Pretty() bool {
	return !strings.EqualFold(lc.Format, "json")
}
