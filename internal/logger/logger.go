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

// Package logger provides the five-severity (TRACE/DEBUG/INFO/WARNING/
// ERROR, plus OFF) package-level logger the filesystem façade uses; the
// inode, directory, and cache layers do not log. It is a thin wrapper around log/slog so that callers write
// Tracef/Debugf/... instead of threading a *slog.Logger through every
// function signature.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/blockfs/blockfs/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// The five severities, plus an OFF sentinel above ERROR so that setting the
// level var to it silences every call site.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

func severityName(l slog.Level) string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return l.String()
	}
}

func setLoggingLevel(sev config.Severity, level *slog.LevelVar) {
	switch sev {
	case config.TRACE:
		level.Set(LevelTrace)
	case config.DEBUG:
		level.Set(LevelDebug)
	case config.INFO:
		level.Set(LevelInfo)
	case config.WARNING:
		level.Set(LevelWarn)
	case config.ERROR:
		level.Set(LevelError)
	default:
		level.Set(LevelOff)
	}
}

// severityHandler renders records as either "time=... severity=... message=..."
// (text) or a JSON object with a nested {seconds,nanos} timestamp (json),
// matching the two formats the façade's CLI accepts for --log-format.
type severityHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  *slog.LevelVar
	format string
}

func newSeverityHandler(w io.Writer, level *slog.LevelVar, format string) *severityHandler {
	return &severityHandler{mu: &sync.Mutex{}, w: w, level: level, format: format}
}

func (h *severityHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *severityHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.format == "text" {
		line := fmt.Sprintf("time=%q severity=%s message=%q\n",
			r.Time.Format("2006/01/02 15:04:05.000000"), severityName(r.Level), r.Message)
		_, err := io.WriteString(h.w, line)
		return err
	}

	entry := struct {
		Timestamp struct {
			Seconds int64 `json:"seconds"`
			Nanos   int   `json:"nanos"`
		} `json:"timestamp"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
	}{Severity: severityName(r.Level), Message: r.Message}
	entry.Timestamp.Seconds = r.Time.Unix()
	entry.Timestamp.Nanos = r.Time.Nanosecond()

	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = h.w.Write(b)
	return err
}

func (h *severityHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *severityHandler) WithGroup(string) slog.Handler      { return h }

// loggerFactory holds the mutable state SetLogFormat/Init rebuild the
// package-level logger from.
type loggerFactory struct {
	format          string
	level           config.Severity
	file            *AsyncLogger
	logRotateConfig config.LogRotateConfig
}

var (
	stateMu              sync.Mutex
	programLevel         = new(slog.LevelVar)
	defaultLoggerFactory = &loggerFactory{format: "text", level: config.INFO, logRotateConfig: config.DefaultLogRotateConfig()}
	currentOut           io.Writer = os.Stderr
	defaultLogger                 = slog.New(newSeverityHandler(os.Stderr, programLevel, "text"))
)

func rebuildLocked() {
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(newSeverityHandler(currentOut, programLevel, defaultLoggerFactory.format))
}

// Init configures the package-level logger from cfg: severity, format, and,
// when FilePath is set, a rotating file sink via lumberjack instead of
// stderr.
func Init(cfg config.LoggingConfig) error {
	stateMu.Lock()
	defer stateMu.Unlock()

	format := cfg.Format
	if format == "" {
		format = "json"
	}

	defaultLoggerFactory = &loggerFactory{
		format:          format,
		level:           cfg.Severity,
		logRotateConfig: cfg.LogRotate,
	}

	if cfg.FilePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.LogRotate.MaxFileSizeMB,
			MaxBackups: cfg.LogRotate.BackupFileCount,
			Compress:   cfg.LogRotate.Compress,
		}
		// The rotating sink sits behind an async writer so that a log call
		// never blocks on file I/O.
		al := NewAsyncLogger(lj, 1024)
		defaultLoggerFactory.file = al
		currentOut = al
	} else {
		currentOut = os.Stderr
	}

	rebuildLocked()
	return nil
}

// SetLogFormat switches the package-level logger's output format ("text" or
// "json", defaulting to "json" for anything else) without touching the
// configured severity or output sink.
func SetLogFormat(format string) {
	stateMu.Lock()
	defer stateMu.Unlock()

	if format == "" {
		format = "json"
	}
	defaultLoggerFactory.format = format
	rebuildLocked()
}

func logf(level slog.Level, format string, args ...any) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

// Close releases the rotating file sink, if one is configured.
func Close() error {
	stateMu.Lock()
	defer stateMu.Unlock()
	if defaultLoggerFactory.file != nil {
		return defaultLoggerFactory.file.Close()
	}
	return nil
}
