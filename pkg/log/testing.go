package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// capture is the buffer shared by a TestLogger and every logger derived from
// it with With. Prediction workers log concurrently, so writes are serialized.
type capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *capture) write(line []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Write(line)
	c.buf.WriteByte('\n')
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// TestLogger records every call as one JSON line in memory so tests can check
// what loading, compilation and prediction reported. Field values go through
// encoding/json, so numbers read back as float64 and errors as their message.
type TestLogger struct {
	out    *capture
	level  Level
	fields map[string]any
}

// NewTestLogger returns a logger that keeps records at level and above, and
// the buffer it writes to.
//
//	logger, buf := log.NewTestLogger(log.LevelDebug)
//	m, _ := forestjit.Load(path, forestjit.WithLogger(logger))
//	// buf now holds the "Model loaded" record
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	out := &capture{}
	return &TestLogger{out: out, level: level, fields: map[string]any{}}, &out.buf
}

// Debug implements Logger.Debug.
func (t *TestLogger) Debug(msg string, fields ...any) { t.record(LevelDebug, "DEBUG", msg, fields) }

// Info implements Logger.Info.
func (t *TestLogger) Info(msg string, fields ...any) { t.record(LevelInfo, "INFO", msg, fields) }

// Warn implements Logger.Warn.
func (t *TestLogger) Warn(msg string, fields ...any) { t.record(LevelWarn, "WARN", msg, fields) }

// Error implements Logger.Error. A leading error argument is stored under ErrorKey.
func (t *TestLogger) Error(msg string, fields ...any) { t.record(LevelError, "ERROR", msg, fields) }

// With implements Logger.With. The derived logger shares the capture buffer.
func (t *TestLogger) With(fields ...any) Logger {
	merged := make(map[string]any, len(t.fields)+len(fields)/2)
	for k, v := range t.fields {
		merged[k] = v
	}
	addPairs(merged, fields)
	return &TestLogger{out: t.out, level: t.level, fields: merged}
}

// Enabled implements Logger.Enabled.
func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	return t.level <= level
}

func (t *TestLogger) record(level Level, name, msg string, fields []any) {
	if t.level > level {
		return
	}
	entry := make(map[string]any, len(t.fields)+len(fields)/2+2)
	for k, v := range t.fields {
		entry[k] = v
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			entry[ErrorKey] = err.Error()
			fields = fields[1:]
		}
	}
	addPairs(entry, fields)
	entry["level"] = name
	entry["message"] = msg

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"level":%q,"message":%q,"marshal_error":%q}`, name, msg, err))
	}
	t.out.write(line)
}

// addPairs copies key/value pairs into dst. Errors are stored as their message
// and a trailing key without a value is ignored.
func addPairs(dst map[string]any, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if err, ok := kv[i+1].(error); ok {
			dst[key] = err.Error()
			continue
		}
		dst[key] = kv[i+1]
	}
}

// Entries decodes every captured record, oldest first.
func (t *TestLogger) Entries() ([]map[string]any, error) {
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(t.out.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether any record mentions message.
func (t *TestLogger) ContainsMessage(message string) bool {
	return strings.Contains(t.out.String(), message)
}

// ContainsField reports whether some record has key set to value, compared
// after the JSON round trip (so pass 4.0, not 4, for numbers).
func (t *TestLogger) ContainsField(key string, value any) bool {
	entries, err := t.Entries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if v, ok := entry[key]; ok && v == value {
			return true
		}
	}
	return false
}

// TestLoggerProvider hands out TestLoggers that all write to one buffer.
type TestLoggerProvider struct {
	logger *TestLogger
}

// NewTestLoggerProvider returns a provider and the buffer its loggers share.
func NewTestLoggerProvider(level Level) (*TestLoggerProvider, *bytes.Buffer) {
	logger, buf := NewTestLogger(level)
	return &TestLoggerProvider{logger: logger}, buf
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *TestLoggerProvider) GetLogger() Logger { return p.logger }

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.logger.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel. Loggers already derived with
// With keep the level they were created with.
func (p *TestLoggerProvider) SetLevel(level Level) {
	p.logger.level = level
}
