// Package app assembles the store, state machine, session manager and scan
// pipeline from a configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/balkashynov/qcscan/internal/config"
	"github.com/balkashynov/qcscan/internal/db"
	"github.com/balkashynov/qcscan/internal/dedup"
	"github.com/balkashynov/qcscan/internal/inspection"
	"github.com/balkashynov/qcscan/internal/metrics"
	"github.com/balkashynov/qcscan/internal/parser"
	"github.com/balkashynov/qcscan/internal/ratelimit"
	"github.com/balkashynov/qcscan/internal/scan"
	"github.com/balkashynov/qcscan/internal/session"
)

// App holds every wired component
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    *db.Store
	Machine  *inspection.Machine
	Sessions *session.Manager
	Scans    *scan.Service
	Metrics  *metrics.Collector

	conn *gorm.DB
}

// Open connects to the configured database and wires the components
func Open(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	conn, err := db.Open(db.Options{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a, err := New(cfg, logger, conn)
	if err != nil {
		_ = db.Close(conn)
		return nil, err
	}
	return a, nil
}

// New wires the components over an open connection
func New(cfg *config.Config, logger zerolog.Logger, conn *gorm.DB) (*App, error) {
	window, err := parser.ParseReentryWindow(cfg.Inspection.ReentryWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid reentry window: %w", err)
	}

	store := db.NewStore(conn)
	collector := metrics.NewCollector("qcscan")

	machine := inspection.NewMachine(store, inspection.Options{
		MaxParallelItems: cfg.Inspection.MaxParallelItemsPerSession,
		StepTimeout:      cfg.StepTimeout(),
		RequireBothScans: cfg.Inspection.RequireBothScans,
		AllowRework:      cfg.Inspection.AllowRework,
		Reentry:          window,
		DefaultPriority:  parser.PriorityToInt(cfg.Inspection.DefaultPriority),
		AuditEnabled:     cfg.Audit.Enabled,
	}, logger)

	limiter := ratelimit.New(cfg.Scanner.MaxScansPerMinute)
	manager := session.NewManager(store, machine, limiter, logger,
		session.WithOverdueCheck(cfg.OverdueCheckInterval()),
		session.WithMetrics(collector),
	)

	suppressor := dedup.New(cfg.ScanCooldown(), dedup.WithRepeatWindow(cfg.RepeatWindow()))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Machine:  machine,
		Sessions: manager,
		Scans:    scan.NewService(store, manager, suppressor, collector, logger),
		Metrics:  collector,
		conn:     conn,
	}, nil
}

// Start rebuilds the state of every active session from the store
func (a *App) Start(ctx context.Context) error {
	return a.Sessions.Load(ctx)
}

// Close stops session watchers and closes the database
func (a *App) Close() error {
	a.Sessions.Close()
	return db.Close(a.conn)
}
