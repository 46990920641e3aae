// Package app is the composition root: it builds and owns every instance the
// client SDK and the reference API need. Nothing here is global.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/expensly/authclient/internal/core/service"
	"github.com/expensly/authclient/internal/core/state"
	"github.com/expensly/authclient/internal/infrastructure/apiclient"
	dbmongo "github.com/expensly/authclient/internal/infrastructure/db/mongo"
	dbpostgres "github.com/expensly/authclient/internal/infrastructure/db/postgres"
	dbredis "github.com/expensly/authclient/internal/infrastructure/db/redis"
	"github.com/expensly/authclient/internal/infrastructure/storage"
	"github.com/expensly/authclient/internal/pkg/config"
	"github.com/expensly/authclient/pkg/logger"
)

// Client bundles the client-side SDK instances.
type Client struct {
	API     *apiclient.Client
	Storage *storage.SecureStore
	Auth    *service.AuthService
	State   *state.Store

	closers []func(context.Context) error
}

// Build wires the transport, the secure store on the configured backend, the
// auth service and the state container.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Client, error) {
	api, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Logger:  logger.Component(log, "apiclient"),
	})
	if err != nil {
		return nil, fmt.Errorf("build api client: %w", err)
	}

	c := &Client{API: api}
	backend, err := c.openBackend(ctx, cfg.Storage, log)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	c.Storage = storage.NewSecureStore(backend, storage.Options{
		Key:      cfg.Storage.EncryptionKey,
		Disabled: !cfg.Storage.Obfuscate,
	}, logger.Component(log, "storage"))
	c.Auth = service.NewAuthService(api, c.Storage, logger.Component(log, "auth"))
	c.State = state.NewStore(c.Auth, logger.Component(log, "state"))

	log.Info().
		Str("api", cfg.API.BaseURL).
		Str("storage", cfg.Storage.Backend).
		Msg("client ready")
	return c, nil
}

func (c *Client) openBackend(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (storage.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryBackend(), nil

	case config.BackendFile:
		b, err := storage.NewFileBackend(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open file storage: %w", err)
		}
		return b, nil

	case config.BackendRedis:
		rdb, err := dbredis.Connect(ctx, dbredis.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB, Password: cfg.Redis.Password, ClientName: "authclient"})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error { return rdb.Close() })
		return dbredis.NewKVStore(rdb, cfg.Namespace), nil

	case config.BackendMongo:
		client, db, err := dbmongo.Connect(ctx, dbmongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, client.Disconnect)
		return dbmongo.NewKVStore(db), nil

	case config.BackendPostgres:
		pool, err := dbpostgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func(context.Context) error { pool.Close(); return nil })
		kv := dbpostgres.NewKVStore(pool, cfg.Namespace)
		if err := kv.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return kv, nil
	}

	log.Error().Str("backend", cfg.Backend).Msg("unknown storage backend")
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// Close releases backend connections.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i](ctx))
	}
	c.closers = nil
	return errors.Join(errs...)
}
