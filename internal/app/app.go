// Package app wires the bridge's adapters and use cases into an HTTP server.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/atvirokodosprendimai/pmsbridge/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/pmsbridge/internal/adapters/pms"
	sqliteadapter "github.com/atvirokodosprendimai/pmsbridge/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/pmsbridge/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/catalog"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/domain"
	"github.com/atvirokodosprendimai/pmsbridge/internal/core/usecase"
	"github.com/atvirokodosprendimai/pmsbridge/migrations"
)

type Config struct {
	Addr             string
	DBPath           string
	BootstrapAPIKey  string
	BootstrapTenant  string
	BootstrapKeyName string
	OperationsFile   string
	PMS              pms.Config
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewServer(ctx context.Context, cfg Config, logger *log.Logger) (*http.Server, io.Closer, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	ops, err := catalog.LoadFile(cfg.OperationsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load operations: %w", err)
	}
	upstream, err := pms.NewClient(cfg.PMS)
	if err != nil {
		return nil, nil, err
	}

	db, err := gormsqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	apiKeyRepo := sqliteadapter.NewAPIKeyRepository(db)
	toolCallRepo := sqliteadapter.NewToolCallRepository(db)

	toolService := usecase.NewToolService(ops, upstream, toolCallRepo, usecase.WithLogger(logger.WithPrefix("tools")))
	toolCallService := usecase.NewToolCallService(toolCallRepo)
	authService := usecase.NewAuthService(apiKeyRepo)

	if cfg.BootstrapAPIKey != "" {
		if err := bootstrapAPIKey(ctx, apiKeyRepo, cfg); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("bootstrap api key ready", "tenant", cfg.BootstrapTenant, "name", cfg.BootstrapKeyName)
	}

	handler := httpapi.NewHandler(toolService, toolCallService, authService, logger.WithPrefix("http"))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("catalog loaded", "operations", len(ops.List()), "pms", cfg.PMS.BaseURL)

	return server, resourceCloser{closers: []io.Closer{db}}, nil
}

func bootstrapAPIKey(ctx context.Context, repo *sqliteadapter.APIKeyRepository, cfg Config) error {
	tenant := cfg.BootstrapTenant
	if tenant == "" {
		tenant = "default"
	}
	name := cfg.BootstrapKeyName
	if name == "" {
		name = "bootstrap"
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := repo.Upsert(ctx, domain.APIKey{
		TokenHash: usecase.HashToken(cfg.BootstrapAPIKey),
		TenantID:  tenant,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("bootstrap api key: %w", err)
	}
	return nil
}
