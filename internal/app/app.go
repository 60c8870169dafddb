// Package app wires configuration into a ready-to-serve TapCall handler.
package app

import (
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mistakeknot/tapcall/internal/config"
	httpapi "github.com/mistakeknot/tapcall/internal/http"
	"github.com/mistakeknot/tapcall/internal/logging"
	"github.com/mistakeknot/tapcall/internal/metrics"
	"github.com/mistakeknot/tapcall/internal/qr"
	"github.com/mistakeknot/tapcall/internal/service"
	"github.com/mistakeknot/tapcall/internal/storage"
	"github.com/mistakeknot/tapcall/internal/storage/sqlite"
	"github.com/mistakeknot/tapcall/internal/tenant"
	"github.com/mistakeknot/tapcall/internal/ws"
)

type App struct {
	Handler  http.Handler
	Requests *service.Service
	Hub      *ws.Hub
	QR       *qr.Generator
	Metrics  *metrics.Metrics
	Tenants  *tenant.Registry

	closer io.Closer
}

func Build(cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	m := metrics.New()

	reg, err := tenant.LoadRegistry(cfg.Tenancy.Enabled, cfg.Tenancy.TenantsFile, cfg.Tenancy.Tenants)
	if err != nil {
		return nil, fmt.Errorf("load tenants: %w", err)
	}
	if reg.Enabled() && len(reg.List()) == 0 {
		return nil, fmt.Errorf("tenancy enabled but no tenants configured")
	}

	store, closer, err := openStore(cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(
		ws.WithBufferSize(cfg.Hub.BufferSize),
		ws.WithWriteTimeout(cfg.Hub.WriteTimeout),
		ws.WithTenants(reg),
		ws.WithLogger(logger.Named("hub")),
		ws.WithMetrics(m),
	)
	requests := service.New(store,
		service.WithPublisher(hub),
		service.WithTenants(reg),
		service.WithMetrics(m),
		service.WithLogger(logger.Named("requests")),
	)
	gen := qr.NewGenerator(qr.Options{
		BaseURL:    cfg.Server.BaseURL,
		Size:       cfg.QR.Size,
		ScanText:   cfg.QR.ScanText,
		FooterText: cfg.QR.FooterText,
		Logger:     logger.Named("qr"),
		Metrics:    m,
	})
	api := httpapi.NewService(requests, gen).WithLogger(logger.Named("http"))
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		WS:        hub.Handler(),
		Metrics:   m,
		StaticDir: cfg.Static.Dir,
	})

	logger.Info("tapcall configured",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("tenancy", reg.Enabled()),
		zap.Int("tenants", len(reg.List())),
		zap.String("base_url", cfg.Server.BaseURL))

	return &App{
		Handler:  handler,
		Requests: requests,
		Hub:      hub,
		QR:       gen,
		Metrics:  m,
		Tenants:  reg,
		closer:   closer,
	}, nil
}

func openStore(cfg config.StoreConfig, logger *zap.Logger) (storage.Store, io.Closer, error) {
	switch cfg.Driver {
	case "", "memory":
		return storage.NewInMemory(), nil, nil
	case "sqlite":
		st, err := sqlite.New(cfg.DSN, logger.Named("sqlite"))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		resilient := sqlite.NewResilient(st, logger.Named("sqlite"))
		return resilient, resilient, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Close releases the store.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
