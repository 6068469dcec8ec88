package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/celluledoc/docflow/catalog"
	"github.com/celluledoc/docflow/config"
	"github.com/celluledoc/docflow/factory"
	"github.com/celluledoc/docflow/ingest"
	"github.com/celluledoc/docflow/reconcile"
	"github.com/celluledoc/docflow/store/postgres"
	"github.com/celluledoc/docflow/store/sqlite"
	"github.com/celluledoc/docflow/store/sqlstore"
)

// app is what every command needs: configuration, logger, store and
// adapters. The store is opened once and closed when the command returns.
type app struct {
	cfg      *config.Config
	log      *config.Logger
	store    *sqlstore.Store
	adapters map[string]reconcile.Adapter
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	adapters, err := factory.NewAdapterFactory().Adapters(cfg.Adapters)
	if err != nil {
		return nil, fmt.Errorf("invalid adapter configuration: %w", err)
	}
	log, err := config.NewLogger(cfg.LogDir, cfg.LogLevel, time.Now())
	if err != nil {
		return nil, err
	}
	st, err := openStore(cfg.DB)
	if err != nil {
		log.WithError(err).Error("cannot open database")
		log.Close()
		return nil, err
	}
	log.WithFields(logrus.Fields{"driver": cfg.DB.Driver, "table": cfg.Table}).Debug("database opened")
	return &app{cfg: cfg, log: log, store: st, adapters: adapters}, nil
}

func openStore(db config.DB) (*sqlstore.Store, error) {
	switch db.Driver {
	case config.DriverPostgres:
		return postgres.New(postgres.Options{
			Host:     db.Host,
			Port:     db.Port,
			Name:     db.Name,
			User:     db.User,
			Password: db.Password,
			SSLMode:  db.SSLMode,
		})
	default:
		return sqlite.New(db.Path)
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Error("cannot close database")
	}
	a.log.Close()
}

func (a *app) runner() *ingest.Runner {
	return ingest.NewRunner(a.store, a.adapters, ingest.Options{
		Table:    a.cfg.Table,
		Dirs:     a.cfg.Dirs(),
		Recorder: a.store,
		Log:      a.log,
	})
}

func (a *app) catalog(ctx context.Context) (*catalog.Service, error) {
	if err := a.store.EnsureTable(ctx, a.cfg.Table); err != nil {
		return nil, err
	}
	views := catalog.NewViews(a.cfg.Consultants...)
	return catalog.NewService(a.store, a.cfg.Table, views, nil, a.log), nil
}
