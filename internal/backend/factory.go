package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"expense/internal/amqp"
	"expense/internal/log"
	"expense/internal/memory"
	"expense/internal/metrics"
	"expense/internal/ports"
	"expense/internal/services"
	"expense/internal/storage"
)

// Publisher is an expense event sink that holds a broker connection.
type Publisher interface {
	metrics.Publisher
	io.Closer
}

// DialFunc connects an event publisher.
type DialFunc func(url, exchange, queue string) (Publisher, error)

// DialAMQP connects to RabbitMQ.
func DialAMQP(url, exchange, queue string) (Publisher, error) {
	client, err := amqp.NewClient(url, exchange, queue)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Factory builds backends from configuration.
type Factory struct {
	logger  *log.Logger
	metrics *metrics.Metrics
	dial    DialFunc
}

// NewFactory creates a new backend factory. m may be nil; dial defaults to
// DialAMQP.
func NewFactory(logger *log.Logger, m *metrics.Metrics, dial DialFunc) *Factory {
	if dial == nil {
		dial = DialAMQP
	}
	return &Factory{
		logger:  logger.WithComponent(log.ComponentBackend),
		metrics: m,
		dial:    dial,
	}
}

type store interface {
	ports.Store
	ports.Pinger
}

// Create opens the store, connects the optional publisher and wires the
// services on top. A broker that cannot be reached is logged and skipped;
// the server then runs without publishing events.
func (f *Factory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		st      store
		closers []io.Closer
	)
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		st = repo
		closers = append(closers, repo)
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		st = memory.NewFromFiles(dataDir)
		f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	var publisher metrics.Publisher
	if config.AMQPURL != "" {
		client, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			publisher = client
			closers = append(closers, client)
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}
	publishing := publisher != nil
	if f.metrics != nil {
		publisher = f.metrics.CountWrites(publisher)
	}

	var events services.EventPublisher
	if publisher != nil {
		events = publisher
	}

	return &Result{
		Categories: services.NewCategoryService(st, config.CacheTTL),
		Expenses:   services.NewExpenseService(st, events),
		Pinger:     st,
		Publishing: publishing,
		Cleanup:    closeAll(closers),
	}, nil
}

// closeAll closes in reverse order of opening.
func closeAll(closers []io.Closer) CleanupFunc {
	return func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
