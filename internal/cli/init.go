// Package cli provides the fintrack command tree and the initialization shared
// by its commands: config, logging, storage, event transport and services.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fintrack/internal/config"
	"fintrack/internal/events"
	"fintrack/internal/events/amqp"
	"fintrack/internal/events/kafka"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
	"fintrack/internal/sheets/google"
	sheetmem "fintrack/internal/sheets/memory"
	"fintrack/internal/storage"
	"fintrack/internal/storage/sqldb"
)

// SetupLogger builds the process logger from config.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = cfg.LogLevel
	lc.Format = cfg.LogFormat
	return log.New(lc)
}

// LoadAndValidateConfig loads .env, fintrack.yaml and the environment.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func storeOptions(cfg *config.Config) sqldb.Options {
	return sqldb.Options{
		Driver:      cfg.DBDriver,
		SQLitePath:  cfg.SQLiteDBPath,
		DatabaseURL: cfg.DatabaseURL,
	}
}

// OpenStore connects to the configured database and migrates it.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (*sqldb.Store, error) {
	store, err := sqldb.Open(ctx, storeOptions(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// NewPublisher returns the configured broker's publisher, or events.Nop when
// no broker is configured.
func NewPublisher(ctx context.Context, cfg *config.Config, logger *log.Logger) (events.Publisher, error) {
	switch cfg.EventsBroker {
	case config.BrokerAMQP:
		return amqp.Dial(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	case config.BrokerKafka:
		return kafka.NewPublisher(cfg.KafkaBrokerList(), cfg.KafkaTopic, logger), nil
	default:
		logger.Info("Event broker disabled, domain events are dropped")
		return events.Nop{}, nil
	}
}

var errNoBroker = errors.New("no event broker configured")

// NewSubscriber returns the configured broker's consumer.
func NewSubscriber(ctx context.Context, cfg *config.Config, logger *log.Logger) (events.Subscriber, error) {
	switch cfg.EventsBroker {
	case config.BrokerAMQP:
		return amqp.Dial(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	case config.BrokerKafka:
		return kafka.NewConsumer(cfg.KafkaBrokerList(), cfg.KafkaTopic, cfg.KafkaGroupID, logger), nil
	default:
		return nil, errNoBroker
	}
}

// NewReceiptSheet returns the Google Sheets mirror when a spreadsheet is
// configured and an in-process one otherwise.
func NewReceiptSheet(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.ReceiptMirror, error) {
	if !cfg.SheetsEnabled() {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, receipts are mirrored in memory only")
		return sheetmem.New(), nil
	}
	return google.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleReceiptsSheet, logger)
}

// App bundles the services every command works with.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Store     storage.Store
	Publisher events.Publisher

	Ledger      *services.LedgerService
	Recurrence  *services.RecurrenceService
	Obligations *services.ObligationService
	Aggregation *services.AggregationService
	Projector   *services.Projector
}

// NewApp wires the services onto store and publisher.
func NewApp(cfg *config.Config, logger *log.Logger, store storage.Store, pub events.Publisher, opts ...services.Option) *App {
	opts = append([]services.Option{services.WithPublisher(pub)}, opts...)
	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Publisher:   pub,
		Ledger:      services.NewLedgerService(store, logger, opts...),
		Recurrence:  services.NewRecurrenceService(store, logger, opts...),
		Obligations: services.NewObligationService(store, logger, opts...),
		Aggregation: services.NewAggregationService(store, logger, services.AggregationTarget{
			AccountID:  cfg.AggregationAccountID,
			CategoryID: cfg.AggregationCategoryID,
		}, opts...),
		Projector: services.NewProjector(store, logger, cfg.DueSoonDays, opts...),
	}
}

// Close releases the publisher and the store.
func (a *App) Close() error {
	return errors.Join(a.Publisher.Close(), a.Store.Close())
}

// openApp performs the full bootstrap for commands that touch the database.
func openApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	pub, err := NewPublisher(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("connect event broker: %w", err)
	}
	return NewApp(cfg, logger, store, pub), nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
