// Package app wires configuration into the collectors, the catalog index,
// the harvest controller and the supporting services.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/qepting91/wb-harvester/internal/catalog"
	"github.com/qepting91/wb-harvester/internal/collector"
	"github.com/qepting91/wb-harvester/internal/config"
	"github.com/qepting91/wb-harvester/internal/dashboard"
	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/enricher"
	"github.com/qepting91/wb-harvester/internal/harvest"
	"github.com/qepting91/wb-harvester/internal/metrics"
	"github.com/qepting91/wb-harvester/internal/report"
	"github.com/qepting91/wb-harvester/internal/storage"
	"github.com/spf13/afero"
)

const (
	HistoryFileName = "history.ndjson"
	AuditFileName   = "keywords.json"
	historyBuffer   = 100
)

// App owns the long lived components of one process.
type App struct {
	Config     config.Config
	Log        *slog.Logger
	Fs         afero.Fs
	Metrics    *metrics.Metrics
	Index      *catalog.Index
	Controller *harvest.Controller
	Batch      *harvest.BatchRunner
	Reports    *report.Sink

	history  storage.Queue
	writerWg sync.WaitGroup
	closers  []io.Closer
	once     sync.Once
}

// Collectors builds the category collector and the one used for batch runs,
// which reads a different catalog menu.
func Collectors(cfg config.Config) (domain.Collector, domain.Collector, error) {
	primary, err := collector.NewCollector(cfg.CollectorMode, cfg.CollectorOptions(cfg.CatalogURL))
	if err != nil {
		return nil, nil, err
	}
	if cfg.CollectorMode == "mock" {
		return primary, primary, nil
	}
	batch, err := collector.NewCollector(cfg.CollectorMode, cfg.CollectorOptions(cfg.BatchCatalogURL))
	if err != nil {
		return nil, nil, err
	}
	return primary, batch, nil
}

// New wires every component on top of fs.
func New(cfg config.Config, fs afero.Fs, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	primary, batchSource, err := Collectors(cfg)
	if err != nil {
		return nil, fmt.Errorf("init collector: %w", err)
	}
	log.Info("Collector initialized", "mode", cfg.CollectorMode)

	a := &App{
		Config:  cfg,
		Log:     log,
		Fs:      fs,
		Metrics: metrics.New(),
		Reports: report.NewSink(fs, cfg.OutputDir, log),
		history: make(storage.Queue, historyBuffer),
	}

	writer := &storage.WriterService{Fs: fs, FilePath: a.HistoryPath(), Log: log}
	a.writerWg.Add(1)
	go writer.Start(&a.writerWg, a.history)

	var enrichOpts []enricher.Option
	if cfg.AuditKeywords {
		enrichOpts = append(enrichOpts, enricher.WithAudit(fs, filepath.Join(cfg.OutputDir, AuditFileName)))
	}

	a.Index = catalog.NewIndex(primary, a.Metrics, log)
	shared := []harvest.Option{
		harvest.WithMetrics(a.Metrics),
		harvest.WithHistory(a.history),
		harvest.WithLogger(log),
	}
	a.Controller = harvest.NewController(
		a.Index,
		primary,
		enricher.New(primary, log, enrichOpts...),
		a.Reports,
		harvest.Options{
			MaxPages:     cfg.MaxPages,
			PageDelay:    cfg.PageDelay,
			CleanupDelay: cfg.FileDeleteDelay,
			TopRows:      harvest.DefaultOptions().TopRows,
		},
		shared...,
	)
	a.Batch = harvest.NewBatchRunner(
		catalog.NewIndex(batchSource, a.Metrics, log),
		enricher.New(batchSource, log, enrichOpts...),
		a.Reports,
		shared...,
	)
	return a, nil
}

// HistoryPath is the NDJSON run history file.
func (a *App) HistoryPath() string {
	return filepath.Join(a.Config.OutputDir, HistoryFileName)
}

// Subscribers returns a redis store when REDIS_URL is set and an in-memory
// one otherwise.
func (a *App) Subscribers(ctx context.Context) (storage.SubscriberStore, error) {
	if a.Config.RedisURL == "" {
		a.Log.Warn("REDIS_URL is not set, subscriptions are kept in memory")
		return storage.NewMemorySubscribers(), nil
	}
	rs, err := storage.NewRedisSubscribers(ctx, a.Config.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rs)
	return rs, nil
}

// Dashboard builds the history dashboard served on DASHBOARD_ADDR.
func (a *App) Dashboard() *dashboard.Server {
	return dashboard.NewServer(a.Fs, a.HistoryPath(), a.Metrics.Handler(), a.Log)
}

// Close flushes the run history and releases connections. It must be
// called after every run has finished.
func (a *App) Close() error {
	var errs []error
	a.once.Do(func() {
		close(a.history)
		a.writerWg.Wait()
		for _, c := range a.closers {
			errs = append(errs, c.Close())
		}
	})
	return errors.Join(errs...)
}
