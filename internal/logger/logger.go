// Copyright 2025 Google LLC
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

// Package logger implements the daemon's structured logging: a
// package-level *slog.Logger built from a loggerFactory{format, level},
// with Tracef/Debugf/Infof/Warnf/Errorf package functions. TRACE sits
// below slog's own Debug level, matching cfg.LogSeverity's six-level
// ranking.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/brokenfuse/brokenfuse/cfg"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace is below slog.LevelDebug (-4), giving cfg.TraceLogSeverity a
// distinct, more verbose rung than DEBUG.
const LevelTrace = slog.Level(-8)

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	// levelOff is above any real record's level, silencing output entirely.
	levelOff = slog.Level(1 << 20)
)

var severityToLevel = map[cfg.LogSeverity]slog.Level{
	cfg.TraceLogSeverity:   LevelTrace,
	cfg.DebugLogSeverity:   LevelDebug,
	cfg.InfoLogSeverity:    LevelInfo,
	cfg.WarningLogSeverity: LevelWarn,
	cfg.ErrorLogSeverity:   LevelError,
	cfg.OffLogSeverity:     levelOff,
}

var levelToSeverity = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

func severityName(level slog.Level) string {
	if name, ok := levelToSeverity[level]; ok {
		return name
	}
	return level.String()
}

var (
	mu            sync.RWMutex
	defaultLogger = slog.New(newTextHandler(os.Stderr, LevelInfo))
)

// loggerFactory builds the slog.Handler for a given format/level pair.
type loggerFactory struct {
	format string
	level  slog.Level
}

func (f loggerFactory) newHandler(w io.Writer) slog.Handler {
	if f.format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: f.level})
	}
	return newTextHandler(w, f.level)
}

// Init installs the default logger from a resolved logging config,
// rotating through lumberjack when a log file is configured.
func Init(c cfg.LoggingConfig) error {
	level, ok := severityToLevel[c.Severity]
	if !ok {
		return fmt.Errorf("logger: unknown severity %q", c.Severity)
	}

	var w io.Writer = os.Stderr
	if c.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   string(c.LogFile),
			MaxSize:    c.LogRotate.MaxFileSizeMb,
			MaxBackups: c.LogRotate.BackupFileCount,
			Compress:   c.LogRotate.Compress,
		}
	}

	factory := loggerFactory{format: c.Format, level: level}

	mu.Lock()
	defaultLogger = slog.New(factory.newHandler(w))
	mu.Unlock()
	return nil
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

func logf(level slog.Level, format string, args ...any) {
	l := get()
	if !l.Enabled(context.Background(), level) {
		return
	}
	l.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

func Trace(msg string) { logf(LevelTrace, "%s", msg) }
func Debug(msg string) { logf(LevelDebug, "%s", msg) }
func Info(msg string)  { logf(LevelInfo, "%s", msg) }
func Warn(msg string)  { logf(LevelWarn, "%s", msg) }
func Error(msg string) { logf(LevelError, "%s", msg) }

// levelWriter adapts a fixed slog level to io.Writer, letting jacobsa/fuse's
// *log.Logger-based ErrorLogger/DebugLogger hooks feed into the same
// structured logger (NewLegacyLogger below).
type levelWriter struct {
	level  slog.Level
	prefix string
}

func (w levelWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	msg = strings.TrimPrefix(msg, w.prefix)
	logf(w.level, "%s", msg)
	return len(p), nil
}

// NewLegacyLogger returns a standard library *log.Logger that forwards
// every line into the structured default logger at a fixed level,
// satisfying jacobsa/fuse's MountConfig.ErrorLogger and DebugLogger
// fields.
func NewLegacyLogger(level slog.Level, prefix string, fsName string) *log.Logger {
	tag := fmt.Sprintf("%s[%s] ", prefix, fsName)
	return log.New(levelWriter{level: level, prefix: prefix}, tag, 0)
}

// textHandler implements slog.Handler with a
// `time="..." severity=... message="..."` layout.
type textHandler struct {
	mu    sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

func newTextHandler(w io.Writer, level slog.Level) *textHandler {
	return &textHandler{w: w, level: level}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "time=%q severity=%s message=%q", r.Time.Format(time.RFC3339Nano), severityName(r.Level), r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	})
	_, err := fmt.Fprintln(h.w, b.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := &textHandler{w: h.w, level: h.level, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
	return out
}

func (h *textHandler) WithGroup(_ string) slog.Handler { return h }
