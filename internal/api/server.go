package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rxtech-lab/vesting-mcp/internal/api/middleware"
	"github.com/rxtech-lab/vesting-mcp/internal/mcp"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
	"github.com/rxtech-lab/vesting-mcp/internal/utils"
	"github.com/sirupsen/logrus"
)

// Services is everything the HTTP surface calls into.
type Services struct {
	Templates    services.TemplateService
	Vesting      services.VestingService
	Revocations  services.RevocationService
	Tokens       services.TokenService
	Transactions services.TransactionService
	Chains       services.ChainService
	Reconcile    services.ReconcileService
}

type APIServer struct {
	app       *fiber.App
	svc       Services
	logger    *logrus.Logger
	mcpServer *mcp.MCPServer
	port      int
	now       func() time.Time

	audience       string
	issuer         string
	callbackSecret string
}

func NewAPIServer(svc Services, log *logrus.Logger) *APIServer {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fiberErr *fiber.Error
			if services.KindOf(err) == "" && !errors.As(err, &fiberErr) {
				log.WithError(err).WithField("path", c.Path()).Error("request failed")
			}
			return writeError(c, err)
		},
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
		Output:     log.Out,
	}))

	return &APIServer{
		app:    app,
		svc:    svc,
		logger: log,
		now:    time.Now,
	}
}

// EnableAuthentication requires a valid bearer token on every route except the health and
// metrics endpoints. It must be called before SetupRoutes. With an issuer the OAuth protected
// resource metadata is published as well.
func (s *APIServer) EnableAuthentication(authenticator *utils.JwtAuthenticator, audience, issuer string) {
	s.audience, s.issuer = audience, issuer
	s.app.Use(middleware.AuthMiddleware(middleware.AuthConfig{
		ResourceID:       audience,
		Issuer:           issuer,
		JWTAuthenticator: authenticator,
		SkipPaths:        []string{"/health", "/metrics", "/.well-known", callbackPrefix},
	}))
}

const callbackPrefix = "/callbacks"

// EnableStatusCallback accepts chain outcomes at /callbacks/transactions/status from callers
// presenting secret. Without it outcomes only arrive by polling or over NATS. It must be
// called before SetupRoutes.
func (s *APIServer) EnableStatusCallback(secret string) {
	s.callbackSecret = secret
}

func (s *APIServer) SetupRoutes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if s.issuer != "" {
		s.app.Get("/.well-known/oauth-protected-resource", s.handleOAuthProtectedResource)
	}

	v1 := s.app.Group("/api/v1")

	templates := v1.Group("/templates")
	templates.Post("/", s.handleCreateTemplate)
	templates.Get("/", s.handleListTemplates)
	templates.Get("/:id", s.handleGetTemplate)
	templates.Patch("/:id", s.handleUpdateTemplate)
	templates.Delete("/:id", s.handleDeleteTemplate)

	vesting := v1.Group("/vesting")
	vesting.Post("/", s.handleCreateDraft)
	vesting.Get("/", s.handleListContracts)
	vesting.Get("/:id", s.handleGetContract)
	vesting.Post("/:id/deploy", s.handleSubmitDeployment)
	vesting.Post("/:id/fund", s.handleSubmitFunding)
	vesting.Post("/:id/activate", s.handleActivate)
	vesting.Post("/:id/deactivate", s.handleDeactivate)
	vesting.Get("/:id/recipients", s.handleListRecipients)
	vesting.Post("/:id/recipients", s.handleAddRecipients)
	vesting.Post("/:id/milestones", s.handleRecordMilestone)
	vesting.Get("/:id/vested", s.handleVestedAmount)
	vesting.Get("/:id/revocations", s.handleListRevocations)
	vesting.Post("/:id/revocations", s.handleInitiateRevoke)

	v1.Get("/revocations/:id", s.handleGetRevocation)

	tokens := v1.Group("/tokens")
	tokens.Post("/", s.handleCreateToken)
	tokens.Get("/", s.handleListTokens)
	tokens.Get("/:id", s.handleGetToken)
	tokens.Post("/:id/deploy", s.handleSubmitTokenDeployment)

	transactions := v1.Group("/transactions")
	transactions.Get("/", s.handleListTransactions)
	transactions.Get("/:id", s.handleGetTransaction)

	chains := v1.Group("/chains")
	chains.Get("/", s.handleListChains)
	chains.Post("/", s.handleCreateChain)
	chains.Get("/active", s.handleGetActiveChain)
	chains.Get("/:id", s.handleGetChain)
	chains.Patch("/:id", s.handleUpdateChain)
	chains.Post("/:id/activate", s.handleActivateChain)

	if s.callbackSecret != "" {
		callbacks := s.app.Group(callbackPrefix, middleware.CallbackAuthMiddleware(s.callbackSecret))
		callbacks.Post("/transactions/status", s.handleApplyStatus)
	}
}

// EnableStreamableHttp serves the MCP tools over streamable HTTP at /mcp. The
// authenticated user is handed to the tools through the request context.
func (s *APIServer) EnableStreamableHttp(mcpServer *mcp.MCPServer) {
	s.mcpServer = mcpServer
	s.app.All("/mcp", adaptor.HTTPHandler(mcpServer.StreamableHTTPHandler("/mcp", mcpContext)))
}

// mcpContext carries the caller's identity from the fiber request into the tool context.
// fasthttp exposes fiber locals as context values.
func mcpContext(ctx context.Context, r *http.Request) context.Context {
	if user, ok := ctx.Value(middleware.UserLocalsKey).(*utils.AuthenticatedUser); ok {
		return utils.WithAuthenticatedUser(ctx, user)
	}
	if organizationID := r.Header.Get(middleware.OrganizationHeader); organizationID != "" {
		return utils.WithAuthenticatedUser(ctx, &utils.AuthenticatedUser{OrganizationID: organizationID})
	}
	return ctx
}

// Start starts the server. A nil port picks a random available one.
func (s *APIServer) Start(port *int) (int, error) {
	if port == nil {
		listener, err := net.Listen("tcp", ":0")
		if err != nil {
			return 0, fmt.Errorf("failed to find available port: %w", err)
		}
		s.port = listener.Addr().(*net.TCPAddr).Port
		listener.Close()
	} else {
		s.port = *port
	}

	go func() {
		if err := s.app.Listen(fmt.Sprintf(":%d", s.port)); err != nil {
			s.logger.WithError(err).Error("API server stopped")
		}
	}()

	return s.port, nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *APIServer) GetPort() int {
	return s.port
}

// GetFiberApp exposes the fiber app, mainly for app.Test in tests.
func (s *APIServer) GetFiberApp() *fiber.App {
	return s.app
}
