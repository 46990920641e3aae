package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/expensly/authclient/internal/api"
	"github.com/expensly/authclient/internal/core/domain"
	"github.com/expensly/authclient/internal/core/ports"
	"github.com/expensly/authclient/internal/identity"
	dbmongo "github.com/expensly/authclient/internal/infrastructure/db/mongo"
	dbredis "github.com/expensly/authclient/internal/infrastructure/db/redis"
	"github.com/expensly/authclient/internal/infrastructure/http/handlers"
	"github.com/expensly/authclient/internal/infrastructure/queue"
	"github.com/expensly/authclient/internal/pkg/config"
	"github.com/expensly/authclient/pkg/logger"
)

// Server bundles the reference identity API.
type Server struct {
	Echo       *echo.Echo
	Identity   *identity.Service
	Issuer     *identity.TokenIssuer
	Outbox     *queue.Outbox
	Dispatcher *queue.Dispatcher

	closers []func(context.Context) error
}

// BuildServer wires repositories, token store, notification pipeline, SSO
// verifiers and the HTTP router for the reference API.
func BuildServer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Server, error) {
	s := &Server{}
	checks := map[string]handlers.Checker{}

	accounts, companies, err := s.openRepositories(ctx, cfg, checks)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	tokens, err := s.openTokenStore(ctx, cfg, checks)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	s.Outbox = queue.NewOutbox(logger.Component(log, "outbox"))
	s.Dispatcher = queue.NewDispatcher(cfg.Mock.Workers, s.Outbox, logger.Component(log, "dispatcher"))
	s.Issuer = identity.NewTokenIssuer(cfg.Mock.JWTSecret, cfg.Mock.Issuer, cfg.Mock.AccessTokenTTL)

	s.Identity = identity.NewService(identity.Config{
		Accounts:   accounts,
		Companies:  companies,
		Tokens:     tokens,
		Notifier:   s.Dispatcher,
		Issuer:     s.Issuer,
		Verifiers:  verifiers(ctx, cfg.Mock, log),
		RefreshTTL: cfg.Mock.RefreshTokenTTL,
		Logger:     logger.Component(log, "identity"),
	})

	s.Echo = api.NewRouter(api.Deps{
		Identity:    s.Identity,
		Tokens:      s.Issuer,
		Outbox:      s.Outbox,
		Checks:      checks,
		Logger:      logger.Component(log, "http"),
		ServiceName: cfg.Telemetry.ServiceName,
	})
	return s, nil
}

func (s *Server) openRepositories(ctx context.Context, cfg *config.Config, checks map[string]handlers.Checker) (ports.AccountRepository, ports.CompanyRepository, error) {
	switch cfg.Mock.UserStore {
	case config.BackendMemory:
		return identity.NewMemoryAccounts(), identity.NewMemoryCompanies(), nil
	case config.BackendMongo:
		client, db, err := dbmongo.Connect(ctx, dbmongo.Config{URI: cfg.Storage.Mongo.URI, Database: cfg.Storage.Mongo.Database})
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, client.Disconnect)
		checks["mongodb"] = handlers.MongoChecker(db)

		accounts := dbmongo.NewAccountRepository(db)
		if err := accounts.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		companies := dbmongo.NewCompanyRepository(db)
		if err := companies.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		return accounts, companies, nil
	}
	return nil, nil, fmt.Errorf("unknown MOCK_USER_STORE %q", cfg.Mock.UserStore)
}

func (s *Server) openTokenStore(ctx context.Context, cfg *config.Config, checks map[string]handlers.Checker) (ports.TokenStore, error) {
	switch cfg.Mock.TokenStore {
	case config.BackendMemory:
		return identity.NewMemoryTokens(), nil
	case config.BackendRedis:
		rdb, err := dbredis.Connect(ctx, dbredis.Config{Addr: cfg.Storage.Redis.Addr, DB: cfg.Storage.Redis.DB, Password: cfg.Storage.Redis.Password, ClientName: "mock-auth-api"})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return rdb.Close() })
		checks["redis"] = handlers.RedisChecker(rdb)
		return dbredis.NewTokenStore(rdb, cfg.Storage.Namespace), nil
	}
	return nil, fmt.Errorf("unknown MOCK_TOKEN_STORE %q", cfg.Mock.TokenStore)
}

// verifiers enables Microsoft sign-in always and Google sign-in when a client
// id is configured and the discovery document can be fetched.
func verifiers(ctx context.Context, cfg config.MockServerConfig, log zerolog.Logger) map[domain.SSOProvider]ports.IdentityVerifier {
	out := map[domain.SSOProvider]ports.IdentityVerifier{
		domain.SSOMicrosoft: identity.NewMicrosoftVerifier(cfg.GraphURL, &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if cfg.GoogleClientID == "" {
		return out
	}
	google, err := identity.NewGoogleVerifier(ctx, cfg.GoogleClientID)
	if err != nil {
		log.Warn().Err(err).Msg("google sign-in disabled")
		return out
	}
	out[domain.SSOGoogle] = google
	return out
}

// Start launches the notification workers; they stop when ctx is done.
func (s *Server) Start(ctx context.Context) {
	s.Dispatcher.Start(ctx)
}

// Close releases backend connections.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	s.closers = nil
	return errors.Join(errs...)
}
