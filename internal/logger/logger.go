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

package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	color "github.com/fatih/color"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/vqhq/mergeworker/internal/config"
	"github.com/vqhq/mergeworker/internal/version"
)

type Logger struct {
	Slogger *slog.Logger
	*sdklog.LoggerProvider
}

func NewLogger(ctx context.Context, cfg *config.Config) (*Logger, error) {
	w := cfg.Logger.Writer()
	level := cfg.Logger.ParseLevel()

	handlers := make([]slog.Handler, 0, 2)
	var provider *sdklog.LoggerProvider

	if cfg.Logger.Pretty() {
		handlers = append(handlers, &PrettyHandler{
			out:   w,
			level: level,
		})
	} else {
		handlers = append(handlers, slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		}))
	}

	if strings.EqualFold(cfg.Logger.OTELExporter, "otlp-http") {
		res, err := resource.Merge(
			resource.Default(),
			resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(cfg.ServiceName()),
				semconv.ServiceVersion(version.Semver()),
			),
		)
		if err != nil {
			return nil, err
		}

		exporter, err := otlploghttp.New(ctx)
		if err != nil {
			return nil, err
		}

		provider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter, nil)),
			sdklog.WithResource(res),
		)

		handlers = append(handlers, otelslog.NewHandler(
			cfg.ServiceName(), otelslog.WithLoggerProvider(provider)))
	}

	return &Logger{
		Slogger:        slog.New(&MultiHandler{handlers}),
		LoggerProvider: provider,
	}, nil
}

type (
	// PrettyHandler writes colored single-line records for local runs.
	PrettyHandler struct {
		out   io.Writer
		level slog.Level
		attrs []slog.Attr
		mut   sync.Mutex
	}

	MultiHandler struct {
		handlers []slog.Handler
	}
)

var _ slog.Handler = (*PrettyHandler)(nil)

// Handle implements slog.Handler
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	h.mut.Lock()
	defer h.mut.Unlock()

	timeStr := color.New(color.FgHiBlack).Sprint(r.Time.Format("15:04:05"))
	attrs := append([]slog.Attr{}, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})

	entry := fmt.Sprintf("%s %s %s%s\n",
		timeStr,
		levelColor(r.Level),
		r.Message,
		formatAttributes(attrs),
	)

	_, err := h.out.Write([]byte(entry))
	return err
}

// WithAttrs implements slog.Handler
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &PrettyHandler{
		out:   h.out,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

// WithGroup implements slog.Handler
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	return h
}

// Enabled implements slog.Handler
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Enabled implements slog.Handler
func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler
func (m *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range m.handlers {
		// Best-effort handling: a failing handler must not starve the rest.
		if err := h.Handle(ctx, record); err != nil {
			slog.Error("error from slog handler", "error", err)
		}
	}
	return nil
}

// WithAttrs implements slog.Handler
func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

// WithGroup implements slog.Handler
func (m *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}

// levelColor returns a colored string representation of the log level.
func levelColor(level slog.Level) string {
	var bg, fg color.Attribute
	switch level {
	case slog.LevelDebug:
		bg, fg = color.BgMagenta, color.FgWhite
	case slog.LevelInfo:
		bg, fg = color.BgBlue, color.FgWhite
	case slog.LevelWarn:
		bg, fg = color.BgYellow, color.FgBlack
	case slog.LevelError:
		bg, fg = color.BgRed, color.FgWhite
	default:
		bg, fg = color.BgWhite, color.FgBlack
	}

	return color.New(bg, fg, color.Bold).Sprint(" " + strings.ToUpper(level.String()) + " ")
}

// formatAttributes formats a slice of attributes as a space-separated string.
func formatAttributes(attrs []slog.Attr) string {
	if len(attrs) == 0 {
		return ""
	}

	var parts []string
	for _, attr := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", attr.Key, formatAttrValue(attr.Value)))
	}

	return " " + strings.Join(parts, " ")
}

// formatAttrValue formats a slog.Value based on its kind.
func formatAttrValue(v slog.Value) string {
	if valuer, ok := v.Any().(slog.LogValuer); ok {
		return formatAttrValue(valuer.LogValue())
	}

	switch v.Kind() {
	case slog.KindString:
		return fmt.Sprintf("%q", v.String())
	case slog.KindInt64:
		return fmt.Sprintf("%d", v.Int64())
	case slog.KindUint64:
		return fmt.Sprintf("%d", v.Uint64())
	case slog.KindFloat64:
		return fmt.Sprintf("%f", v.Float64())
	case slog.KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v.Any())
	}
}
