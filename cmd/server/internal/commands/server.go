package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mhaswell/fabtrace/internal/api"
	"github.com/mhaswell/fabtrace/internal/auth"
	"github.com/mhaswell/fabtrace/internal/jobs"
	"github.com/mhaswell/fabtrace/internal/logger"
	"github.com/mhaswell/fabtrace/internal/metrics"
	"github.com/mhaswell/fabtrace/internal/permission"
	"github.com/mhaswell/fabtrace/internal/sequence"
	"github.com/mhaswell/fabtrace/internal/store/postgres"
	"github.com/mhaswell/fabtrace/internal/tenant"
)

type ServerCmd struct {
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"FABTRACE_LISTEN"`

	StoreType string        `help:"store type (memory or postgres)" default:"postgres" env:"FABTRACE_STORE_TYPE" enum:"memory,postgres"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
	Tenant    TenantFlags   `embed:"" prefix:"tenant-"`

	JWTSecret string        `help:"secret for signing access tokens" env:"FABTRACE_JWT_SECRET" required:""`
	TokenTTL  time.Duration `help:"access token lifetime" default:"8h" env:"FABTRACE_TOKEN_TTL"`

	NATSURL string `help:"NATS server URL for background jobs (empty disables them)" env:"FABTRACE_NATS_URL"`
}

func (c *ServerCmd) Run(globals *Globals) error {
	logLogger := logger.Setup(globals.Debug)
	log.Logger = logLogger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	metrics.Init()

	var (
		stores api.Stores
		db     *postgres.DB
	)

	switch c.StoreType {
	case "postgres":
		pool, err := c.Postgres.connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		db = postgres.NewDB(pool, c.Postgres.StrictIsolation)
		stores = newPostgresStores(db)
	case "memory":
		log.Warn().Msg("Using in-memory stores, data is lost on restart")
		stores = newMemoryStores()
	}

	provisioner := &tenant.Provisioner{
		Tenants:    stores.Tenants,
		Groups:     stores.Groups,
		SeedGroups: permission.DefaultGroups,
	}
	resolver := tenant.NewResolver(c.Tenant.config(), stores.Tenants, stores.Groups, provisioner.Provision)
	perms := permission.NewResolver(stores.Principals, stores.Groups)

	jwtManager, err := auth.NewJWTManager(auth.Config{
		Secret:         c.JWTSecret,
		AccessTokenTTL: c.TokenTTL,
	})
	if err != nil {
		return err
	}

	opts := []api.Option{api.WithMetricsHandler(metrics.Handler())}
	if db != nil {
		opts = append(opts,
			api.WithDB(db),
			api.WithCAPANumberSource(func(ctx context.Context, tenantID *uuid.UUID) (string, error) {
				return sequence.Next(ctx, db.Querier(ctx), sequence.CAPASeries, tenantID,
					sequence.CAPAPrefix(time.Now()), sequence.CAPAPadding)
			}))
	}

	server := api.NewServer(stores, resolver, perms, jwtManager, opts...)

	if c.NATSURL != "" {
		nc, err := nats.Connect(c.NATSURL, nats.Name("fabtrace-server"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()

		subscriber := jobs.NewSubscriber(nc, jobs.NewRunner(resolver, db))
		registerJobs(subscriber, stores)

		go func() {
			if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Job subscriber stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(c.Listen)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
	}

	return nil
}
