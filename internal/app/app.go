package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/RubachokBoss/speech-sdk/internal/config"
	"github.com/RubachokBoss/speech-sdk/internal/database"
	"github.com/RubachokBoss/speech-sdk/internal/delivery/httpd"
	"github.com/RubachokBoss/speech-sdk/internal/integration"
	"github.com/RubachokBoss/speech-sdk/internal/middleware"
	"github.com/RubachokBoss/speech-sdk/internal/repository"
	"github.com/RubachokBoss/speech-sdk/internal/worker"
	"github.com/RubachokBoss/speech-sdk/pkg/client"
	"github.com/RubachokBoss/speech-sdk/pkg/logger"
)

// App is the HTTP bridge: one SDK connection exposed over REST, with the
// session events fanned out to the configured sinks.
type App struct {
	server    *http.Server
	logger    zerolog.Logger
	config    *config.Config
	client    *client.Client
	history   repository.HistoryRepository
	publisher integration.EventPublisher
	pool      *worker.WorkerPool
	sink      *worker.EventSink
	detach    func()
}

func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{
		logger: log,
		config: cfg,
	}

	a.client = client.New(cfg.API.Settings(), client.WithLogger(log))

	if cfg.Database.Enabled() {
		if cfg.Database.AutoMigrate {
			if err := migrate(cfg.Database); err != nil {
				return nil, err
			}
		}
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.history = repository.NewHistoryRepository(db, logger.Component(log, "history"))
		log.Info().Str("driver", cfg.Database.Driver).Msg("Session history enabled")
	}

	if cfg.RabbitMQ.Enabled {
		publisher, err := integration.NewRabbitMQPublisher(
			cfg.RabbitMQ.URL,
			cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.RoutingKey,
			logger.Component(log, "publisher"),
		)
		if err != nil {
			a.closeStores()
			return nil, err
		}
		a.publisher = publisher
	}

	var archive integration.AudioArchive
	if cfg.MinIO.Enabled {
		var err error
		archive, err = integration.NewMinIOArchive(integration.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			Region:    cfg.MinIO.Region,
			UseSSL:    cfg.MinIO.UseSSL,
			Timeout:   cfg.MinIO.Timeout,
			URLExpiry: cfg.MinIO.URLExpiry,
		}, logger.Component(log, "archive"))
		if err != nil {
			a.closeStores()
			return nil, err
		}
	}

	a.pool = worker.NewWorkerPool(cfg.Worker.MaxWorkers, cfg.Worker.QueueSize, logger.Component(log, "worker"))
	a.sink = worker.NewEventSink(a.pool, a.history, a.publisher, archive, logger.Component(log, "sink"))

	handler := httpd.NewHandler(a.client, httpd.Options{
		History:       a.history,
		Archive:       archive,
		Stats:         a.pool,
		MaxUploadSize: cfg.Server.MaxUploadSize,
	}, logger.Component(log, "httpd"))

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	router.Use(middleware.NewCORS(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
		cfg.CORS.ExposedHeaders,
		cfg.CORS.AllowCredentials,
		cfg.CORS.MaxAge,
	))

	handler.RegisterRoutes(router)

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return a, nil
}

func migrate(cfg config.DatabaseConfig) error {
	migrator, err := database.NewMigrator(cfg)
	if err != nil {
		return err
	}
	return migrator.Up()
}

// Run starts the sinks, signs in, opens the websocket when configured to
// and serves until Shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.pool.Start(ctx); err != nil {
		return err
	}
	a.detach = a.sink.Attach(a.client.Bus)

	api := a.config.API
	if api.Token == "" && api.Username != "" {
		if err := a.client.Authenticate(ctx, api.Username, api.Password, api.Scope); err != nil {
			a.logger.Error().Err(err).Msg("Failed to authenticate")
			return err
		}
	}

	if api.OpenOnStart {
		msg, err := a.client.Open(ctx)
		if err != nil {
			// The connection can still be opened later through the api.
			a.logger.Error().Err(err).Msg("Failed to open websocket connection")
		} else {
			a.logger.Info().Msg(msg)
		}
	}

	a.logger.Info().Msgf("Starting speech bridge on %s", a.config.Server.Address)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down speech bridge...")

	serverErr := a.server.Shutdown(ctx)
	if serverErr != nil {
		a.logger.Error().Err(serverErr).Msg("Failed to shutdown HTTP server")
	}

	if _, err := a.client.Close(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close websocket connection")
	}

	if a.detach != nil {
		a.detach()
	}
	if err := a.pool.Stop(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to stop worker pool")
	}

	a.closeStores()

	a.logger.Info().Msg("Speech bridge stopped")
	return serverErr
}

func (a *App) closeStores() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}
}
