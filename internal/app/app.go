package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kurihiro0119/repo-access-provisioner/internal/batch"
	"github.com/kurihiro0119/repo-access-provisioner/internal/config"
	"github.com/kurihiro0119/repo-access-provisioner/internal/httpclient"
	"github.com/kurihiro0119/repo-access-provisioner/internal/iqserver"
	"github.com/kurihiro0119/repo-access-provisioner/internal/naming"
	"github.com/kurihiro0119/repo-access-provisioner/internal/nexus"
	"github.com/kurihiro0119/repo-access-provisioner/internal/orchestrator"
	"github.com/kurihiro0119/repo-access-provisioner/internal/provisioner"
	"github.com/kurihiro0119/repo-access-provisioner/internal/storage"
	"github.com/kurihiro0119/repo-access-provisioner/internal/storage/postgres"
	"github.com/kurihiro0119/repo-access-provisioner/internal/storage/sqlite"
	"github.com/kurihiro0119/repo-access-provisioner/internal/validation"
)

// App holds the wired components of a running process
type App struct {
	Service provisioner.Service
	Storage storage.Storage
}

// Close releases the storage connection
func (a *App) Close() error {
	if a.Storage == nil {
		return nil
	}
	return a.Storage.Close()
}

// OpenStorage opens the batch history store selected by the configuration
func OpenStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "postgres":
		store, err := postgres.NewPostgresStorage(cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL storage: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		return store, nil
	}
}

// New validates the configuration, loads the lookup tables, and wires the
// remote clients, the orchestrator and the batch processor together.
func New(cfg *config.Config, log *logrus.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tables, err := config.LoadTables(cfg)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"organizations":    len(tables.Organizations),
		"package_managers": tables.SupportedPackageManagers(),
	}).Info("Loaded lookup tables")

	nexusClient := nexus.NewClient(httpclient.New(httpclient.Config{
		BaseURL:  cfg.NexusURL,
		Username: cfg.NexusUsername,
		Password: cfg.NexusPassword,
		RetryMax: cfg.HTTPRetryMax,
		Timeout:  cfg.HTTPTimeout,
		MinDelay: cfg.RemoteMinDelay,
		Logger:   log.WithField("remote", "nexus"),
	}), log)

	iqClient := iqserver.NewClient(httpclient.New(httpclient.Config{
		BaseURL:  cfg.IQServerURL,
		Username: cfg.IQServerUsername,
		Password: cfg.IQServerPassword,
		RetryMax: cfg.HTTPRetryMax,
		Timeout:  cfg.HTTPTimeout,
		MinDelay: cfg.RemoteMinDelay,
		Logger:   log.WithField("remote", "iqserver"),
	}), cfg.OwnerRoleName, log)

	store, err := OpenStorage(cfg)
	if err != nil {
		return nil, err
	}

	namer := naming.NewNamer(cfg.SharedRole)
	orch := orchestrator.New(nexusClient, nexusClient, iqClient, orchestrator.Options{
		Namer:      namer,
		ExtraRoles: cfg.ExtraRoles,
		Logger:     log,
	})
	processor := batch.NewProcessor(validation.NewValidator(tables), orch, log)

	return &App{
		Service: provisioner.NewService(processor, namer, store, cfg.MaxBatchSize, log),
		Storage: store,
	}, nil
}
