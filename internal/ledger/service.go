// Package ledger implements the token engine: transaction writes,
// balance projection, the free/paid split, the hold lifecycle with its
// optimistic-concurrency protocol, and the expiry and retention sweepers.
// The engine holds no locks of its own; the store's conditional update is
// the only interlock, and balance reads are eventually consistent.
package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/fanvault/tokend/internal/clock"
	"github.com/fanvault/tokend/internal/ident"
	"github.com/fanvault/tokend/internal/logging"
	"github.com/fanvault/tokend/internal/metrics"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/token"
)

// Hold timeout bounds in seconds.
const (
	MinHoldSeconds     = 300
	MaxHoldSeconds     = 3600
	DefaultHoldSeconds = 1800
)

// Archiver mirrors purged records into long-term storage. The retention
// sweeper calls it after the in-store archive write and before deletion.
type Archiver interface {
	ArchiveBatch(ctx context.Context, txs []*token.Transaction) error
}

// Service is the engine facade. Every public operation validates input,
// reads current state through the store gateway, computes the change and
// writes it back, reporting failures through the error taxonomy.
type Service struct {
	store    registry.Store
	table    string
	archive  string
	clock    clock.Clock
	ids      ident.Generator
	log      *logging.Logger
	sink     logging.ErrorSink
	metrics  *metrics.Metrics
	events   Events
	archiver Archiver
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock substitutes the time source.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithGenerator substitutes the ID generator.
func WithGenerator(g ident.Generator) ServiceOption {
	return func(s *Service) { s.ids = g }
}

// WithLogger sets the action logger.
func WithLogger(l *logging.Logger) ServiceOption {
	return func(s *Service) { s.log = l }
}

// WithSink sets the error sink.
func WithSink(sink logging.ErrorSink) ServiceOption {
	return func(s *Service) { s.sink = sink }
}

// WithMetrics sets the metrics instance.
func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithEvents sets the event publisher.
func WithEvents(e Events) ServiceOption {
	return func(s *Service) { s.events = e }
}

// WithTables overrides the live and archive table names.
func WithTables(live, archive string) ServiceOption {
	return func(s *Service) {
		s.table = live
		s.archive = archive
	}
}

// WithArchiver attaches the long-term archive sink used by the retention
// sweeper.
func WithArchiver(a Archiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// New constructs the engine over a store gateway. Unset collaborators
// default to production implementations (system clock, random IDs) or
// inert ones (nop logger, disabled metrics, no-op events).
func New(store registry.Store, options ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		table:   registry.TableRegistry,
		archive: registry.TableArchive,
		clock:   clock.System{},
		ids:     ident.Random{},
		events:  NoOpEvents{},
	}
	for _, option := range options {
		option(s)
	}
	if s.log == nil {
		s.log = logging.NewNop()
	}
	if s.sink == nil {
		s.sink = logging.NewLogSink(s.log)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(metrics.Config{})
	}
	return s
}

// Store exposes the underlying gateway, mainly for the server surfaces.
func (s *Service) Store() registry.Store { return s.store }

// fail reports an input or business error to the sink and returns it.
func (s *Service) fail(code Code, message string, fields ...zap.Field) *Error {
	s.sink.AddError(message, string(code), fields...)
	return newError(code, message)
}

// failWrap reports an infrastructure error and returns it with the cause
// in the wrap chain.
func (s *Service) failWrap(code Code, message string, err error, fields ...zap.Field) *Error {
	s.sink.AddError(message, string(code), append(fields, zap.Error(err))...)
	return wrapError(code, message, err)
}

// signal reports an integrity problem without failing the caller.
func (s *Service) signal(code Code, message string, fields ...zap.Field) {
	s.sink.AddError(message, string(code), fields...)
}
