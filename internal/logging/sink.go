package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorSink receives error reports and integrity signals with a stable
// code and arbitrary context. Implementations must never panic and never
// block the caller for long.
type ErrorSink interface {
	AddError(message, code string, fields ...zap.Field)
}

// logSink forwards sink reports to the process logger at error level.
type logSink struct {
	log *Logger
}

// NewLogSink returns a sink that records reports through l.
func NewLogSink(l *Logger) ErrorSink {
	return &logSink{log: l}
}

func (s *logSink) AddError(message, code string, fields ...zap.Field) {
	if s.log == nil || s.log.Logger == nil {
		return
	}
	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.String("flag", Flag), zap.String("code", code))
	all = append(all, fields...)
	s.log.Error(message, all...)
}

// SinkEntry is one captured report.
type SinkEntry struct {
	Message string
	Code    string
	Context map[string]any
}

// CollectingSink captures reports in memory. Tests use it to assert on
// codes and context without parsing log output.
type CollectingSink struct {
	mu      sync.Mutex
	entries []SinkEntry
}

// AddError records the report.
func (c *CollectingSink) AddError(message, code string, fields ...zap.Field) {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, SinkEntry{Message: message, Code: code, Context: enc.Fields})
}

// Entries returns a copy of everything captured so far.
func (c *CollectingSink) Entries() []SinkEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SinkEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Codes returns the captured codes in report order.
func (c *CollectingSink) Codes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := make([]string, len(c.entries))
	for i, e := range c.entries {
		codes[i] = e.Code
	}
	return codes
}

// Reset drops everything captured so far.
func (c *CollectingSink) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

var _ ErrorSink = (*CollectingSink)(nil)
var _ ErrorSink = (*logSink)(nil)
