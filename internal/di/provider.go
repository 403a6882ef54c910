package di

import (
	"context"

	"github.com/fanvault/tokend/internal/config"
	"github.com/fanvault/tokend/internal/ledger"
	"github.com/fanvault/tokend/internal/logging"
	"github.com/fanvault/tokend/internal/metrics"
	"github.com/fanvault/tokend/internal/registry"
	"github.com/fanvault/tokend/internal/registry/postgres"
	"github.com/fanvault/tokend/internal/rpc"
)

// Provider registers the node's services in a container according to
// the configuration.
type Provider struct {
	container *Container
	config    *config.Config
}

// NewProvider creates a provider over the container.
func NewProvider(container *Container, cfg *config.Config) *Provider {
	return &Provider{container: container, config: cfg}
}

// RegisterAll registers every service builder. Nothing is constructed
// until first use.
func (p *Provider) RegisterAll() error {
	p.container.Register(ServiceConfig, p.config)
	p.registerObservabilityBuilders()
	p.registerStorageBuilders()
	p.registerEngineBuilders()
	return nil
}

func (p *Provider) registerObservabilityBuilders() {
	p.container.RegisterBuilder(ServiceLogger, func(c *Container) (interface{}, error) {
		return logging.New(p.config.Logging.Level, p.config.Logging.Development)
	})

	p.container.RegisterBuilder(ServiceErrorSink, func(c *Container) (interface{}, error) {
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}
		return logging.NewLogSink(log), nil
	})

	p.container.RegisterBuilder(ServiceMetrics, func(c *Container) (interface{}, error) {
		return metrics.New(metrics.Config{
			Enabled: p.config.Metrics.Enabled,
			Address: p.config.Metrics.Address,
		}), nil
	})
}

func (p *Provider) registerStorageBuilders() {
	p.container.RegisterBuilder(ServiceStore, func(c *Container) (interface{}, error) {
		return registry.Open(registry.DefaultConfig(),
			registry.WithBackend(p.config.Storage.Backend),
			registry.WithPath(p.config.Storage.Path),
			registry.WithCacheSize(p.config.Storage.CacheSize),
			registry.WithCompressor(p.config.Storage.Compressor()))
	})

	p.container.RegisterBuilder(ServiceArchiver, func(c *Container) (interface{}, error) {
		if !p.config.Archive.PostgresEnabled {
			return nil, nil
		}
		return postgres.Open(context.Background(),
			postgres.DefaultConfig(p.config.Archive.PostgresDSN))
	})
}

func (p *Provider) registerEngineBuilders() {
	p.container.RegisterBuilder(ServiceSubscriptions, func(c *Container) (interface{}, error) {
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}
		m, err := p.metrics(c)
		if err != nil {
			return nil, err
		}
		return rpc.NewSubscriptionManager(log, m), nil
	})

	p.container.RegisterBuilder(ServicePublisher, func(c *Container) (interface{}, error) {
		subs, err := p.Subscriptions()
		if err != nil {
			return nil, err
		}
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}
		return rpc.NewPublisher(subs, log), nil
	})

	p.container.RegisterBuilder(ServiceLedger, func(c *Container) (interface{}, error) {
		store, err := c.Get(ServiceStore)
		if err != nil {
			return nil, err
		}
		log, err := p.logger(c)
		if err != nil {
			return nil, err
		}
		m, err := p.metrics(c)
		if err != nil {
			return nil, err
		}
		sink, err := c.Get(ServiceErrorSink)
		if err != nil {
			return nil, err
		}
		publisher, err := c.Get(ServicePublisher)
		if err != nil {
			return nil, err
		}

		options := []ledger.ServiceOption{
			ledger.WithLogger(log),
			ledger.WithMetrics(m),
			ledger.WithSink(sink.(logging.ErrorSink)),
			ledger.WithEvents(publisher.(ledger.Events)),
		}

		archiver, err := c.Get(ServiceArchiver)
		if err != nil {
			return nil, err
		}
		if archiver != nil {
			options = append(options, ledger.WithArchiver(archiver.(ledger.Archiver)))
		}

		return ledger.New(store.(registry.Store), options...), nil
	})
}

func (p *Provider) logger(c *Container) (*logging.Logger, error) {
	log, err := c.Get(ServiceLogger)
	if err != nil {
		return nil, err
	}
	return log.(*logging.Logger), nil
}

func (p *Provider) metrics(c *Container) (*metrics.Metrics, error) {
	m, err := c.Get(ServiceMetrics)
	if err != nil {
		return nil, err
	}
	return m.(*metrics.Metrics), nil
}

// Config returns the configuration.
func (p *Provider) Config() *config.Config { return p.config }

// Logger returns the shared logger.
func (p *Provider) Logger() (*logging.Logger, error) {
	return p.logger(p.container)
}

// Metrics returns the metrics instance.
func (p *Provider) Metrics() (*metrics.Metrics, error) {
	return p.metrics(p.container)
}

// Store returns the registry store.
func (p *Provider) Store() (registry.Store, error) {
	store, err := p.container.Get(ServiceStore)
	if err != nil {
		return nil, err
	}
	return store.(registry.Store), nil
}

// Ledger returns the token engine.
func (p *Provider) Ledger() (*ledger.Service, error) {
	svc, err := p.container.Get(ServiceLedger)
	if err != nil {
		return nil, err
	}
	return svc.(*ledger.Service), nil
}

// Subscriptions returns the WebSocket subscription manager.
func (p *Provider) Subscriptions() (*rpc.SubscriptionManager, error) {
	subs, err := p.container.Get(ServiceSubscriptions)
	if err != nil {
		return nil, err
	}
	return subs.(*rpc.SubscriptionManager), nil
}
