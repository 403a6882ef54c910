// Package logging builds the process logger and the error sink the ledger
// reports integrity signals to. Both collaborators are best-effort: a
// failure to log never propagates into a caller's result.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Flag is attached to every ledger action event so token traffic can be
// isolated in shared log pipelines.
const Flag = "TOKENS"

// Logger wraps zap with the ledger's action-event convention.
type Logger struct {
	*zap.Logger
}

// New constructs the process logger. Level accepts the usual zap names
// (debug, info, warn, error). Development mode switches to the console
// encoder.
func New(level string, development bool) (*Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: z}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named returns a logger with the given name segment appended.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// Action logs one structured ledger event: the action verb, the TOKENS
// flag, and whatever context the caller attaches.
func (l *Logger) Action(action string, fields ...zap.Field) {
	if l == nil || l.Logger == nil {
		return
	}
	all := make([]zap.Field, 0, len(fields)+1)
	all = append(all, zap.String("flag", Flag))
	all = append(all, fields...)
	l.Info(action, all...)
}
