package server

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rxtech-lab/vesting-mcp/internal/api"
	"github.com/rxtech-lab/vesting-mcp/internal/config"
	"github.com/rxtech-lab/vesting-mcp/internal/events"
	"github.com/rxtech-lab/vesting-mcp/internal/hooks"
	"github.com/rxtech-lab/vesting-mcp/internal/mcp"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Application is the wired process: database, services, reconciliation loop, event bus
// and the API and MCP surfaces on top.
type Application struct {
	cfg    *config.Config
	logger *logrus.Logger

	db         services.DBService
	svc        api.Services
	nats       *nats.Conn
	subscriber *events.StatusSubscriber

	API *api.APIServer
	MCP *mcp.MCPServer
}

func InitializeServices(db *gorm.DB, adapter services.ChainAdapter, logger *logrus.Logger) (api.Services, services.HookService) {
	chainService := services.NewChainService(db)
	txService := services.NewTransactionService(db, logger)
	vestingService := services.NewVestingService(db, chainService, txService, adapter, logger)
	tokenService := services.NewTokenService(db, chainService, txService, adapter, logger)
	revocationService := services.NewRevocationService(db, chainService, txService, adapter, logger, time.Now)
	hookService := services.NewHookService()

	return api.Services{
		Templates:    services.NewTemplateService(db),
		Vesting:      vestingService,
		Revocations:  revocationService,
		Tokens:       tokenService,
		Transactions: txService,
		Chains:       chainService,
	}, hookService
}

// New opens the database and wires every component. Nothing is started yet.
func New(cfg *config.Config, logger *logrus.Logger) (*Application, error) {
	db, err := services.NewDBService(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database service: %w", err)
	}

	app := &Application{cfg: cfg, logger: logger, db: db}

	adapter := services.NewEvmChainAdapter()
	svc, hookService := InitializeServices(db.GetDB(), adapter, logger)
	if err := hooks.RegisterAll(hookService, svc.Vesting, svc.Tokens, svc.Revocations); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register hooks: %w", err)
	}

	var notifier services.ResolvedNotifier
	if cfg.NATS.URL != "" {
		conn, err := events.Connect(cfg.NATS.URL, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		app.nats = conn
		notifier = events.NewPublisher(conn, cfg.NATS.ResolvedSubject)
	}

	svc.Reconcile = services.NewReconcileService(svc.Transactions, svc.Chains, adapter, hookService, notifier, services.ReconcileConfig{
		Interval:          cfg.Reconcile.Interval,
		BatchSize:         cfg.Reconcile.BatchSize,
		PendingAlertAfter: cfg.Reconcile.PendingAlertAfter,
	}, logger)
	app.svc = svc

	if app.nats != nil {
		app.subscriber = events.NewStatusSubscriber(app.nats, cfg.NATS.StatusSubject, cfg.NATS.QueueGroup, svc.Reconcile, logger)
	}

	app.MCP = mcp.NewMCPServer(mcp.Services{
		Templates:    svc.Templates,
		Vesting:      svc.Vesting,
		Revocations:  svc.Revocations,
		Transactions: svc.Transactions,
		Chains:       svc.Chains,
	}, time.Now)

	app.API = api.NewAPIServer(svc, logger)
	if authenticator := newAuthenticator(cfg.Auth); authenticator != nil {
		app.API.EnableAuthentication(authenticator, cfg.Auth.Audience, cfg.Auth.Issuer)
	} else {
		logger.Warn("authentication disabled, the organization is read from the X-Organization-ID header")
	}
	if cfg.Auth.CallbackSecret != "" {
		app.API.EnableStatusCallback(cfg.Auth.CallbackSecret)
	}
	if cfg.MCP.HTTP {
		app.API.EnableStreamableHttp(app.MCP)
	}
	app.API.SetupRoutes()

	return app, nil
}

// newAuthenticator prefers the JWKS endpoint over the shared secret. Nil disables authentication.
func newAuthenticator(cfg config.AuthConfig) *utils.JwtAuthenticator {
	switch {
	case cfg.JWKSURL != "":
		return utils.NewJwtAuthenticator(cfg.JWKSURL)
	case cfg.JWTSecret != "":
		return utils.NewSimpleJwtAuthenticator(cfg.JWTSecret)
	default:
		return nil
	}
}

// Run starts the reconciliation loop, the status subscriber and the API server, and
// blocks until ctx is cancelled. Shutdown then happens in reverse order.
func (a *Application) Run(ctx context.Context) error {
	a.svc.Reconcile.Start(ctx)
	defer a.svc.Reconcile.Stop()

	if a.subscriber != nil {
		if err := a.subscriber.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := a.subscriber.Stop(); err != nil {
				a.logger.WithError(err).Warn("failed to drain status subscription")
			}
		}()
	}

	port := a.cfg.Server.Port
	startedPort, err := a.API.Start(&port)
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	a.logger.WithField("port", startedPort).Info("API server started")

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.API.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("error shutting down API server")
	}
	return nil
}

// RunStdio serves the MCP tools over stdio for the configured organization.
func (a *Application) RunStdio() error {
	if a.cfg.MCP.Organization == "" {
		return fmt.Errorf("mcp organization is required for stdio (set VESTING_MCP_ORGANIZATION)")
	}
	return a.MCP.StartStdioServer(a.cfg.MCP.Organization)
}

func (a *Application) Close() error {
	if a.nats != nil {
		a.nats.Close()
	}
	return a.db.Close()
}
