// Package telemetry records what happened during a race so it can be
// diagnosed afterwards: a bounded event log mirrored to zap, per-target
// latency statistics and static run metadata.
package telemetry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the severity of an event.
type Level string

const (
	LevelError Level = "ERROR"
	LevelWarn  Level = "WARN"
	LevelInfo  Level = "INFO"
	LevelDebug Level = "DEBUG"
)

// DefaultEventBuffer is the number of events kept when none is configured.
const DefaultEventBuffer = 256

// Entry is a single recorded event.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// EventLog keeps the most recent events of a run and writes every event to
// the structured logger as it arrives. Safe for concurrent use by attempts.
type EventLog struct {
	mu         sync.Mutex
	entries    []Entry
	maxEntries int
	log        *zap.Logger
}

// NewEventLog creates an event log. A nil logger discards the mirror output.
func NewEventLog(maxEntries int, log *zap.Logger) *EventLog {
	if maxEntries <= 0 {
		maxEntries = DefaultEventBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EventLog{
		entries:    make([]Entry, 0, maxEntries),
		maxEntries: maxEntries,
		log:        log,
	}
}

// Log records an event with structured fields.
func (l *EventLog) Log(level Level, message string, fields map[string]interface{}) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
	l.mu.Unlock()

	if ce := l.log.Check(zapLevel(level), message); ce != nil {
		ce.Write(zapFields(fields)...)
	}
}

func (l *EventLog) Error(message string, fields map[string]interface{}) {
	l.Log(LevelError, message, fields)
}

func (l *EventLog) Warn(message string, fields map[string]interface{}) {
	l.Log(LevelWarn, message, fields)
}

func (l *EventLog) Info(message string, fields map[string]interface{}) {
	l.Log(LevelInfo, message, fields)
}

func (l *EventLog) Debug(message string, fields map[string]interface{}) {
	l.Log(LevelDebug, message, fields)
}

// Entries returns a copy of the retained events, oldest first.
func (l *EventLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Counts returns the number of retained events per level.
func (l *EventLog) Counts() map[Level]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[Level]int)
	for _, e := range l.entries {
		counts[e.Level]++
	}
	return counts
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case LevelError:
		return zapcore.ErrorLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// zapFields converts fields in key order so log lines are stable.
func zapFields(fields map[string]interface{}) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
