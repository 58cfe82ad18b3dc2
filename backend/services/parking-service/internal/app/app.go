package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "parkinglot/backend/libs/db"
	libredis "parkinglot/backend/libs/redis"
	"parkinglot/backend/services/parking-service/internal/auth"
	"parkinglot/backend/services/parking-service/internal/clock"
	"parkinglot/backend/services/parking-service/internal/config"
	"parkinglot/backend/services/parking-service/internal/db"
	httpserver "parkinglot/backend/services/parking-service/internal/http"
	"parkinglot/backend/services/parking-service/internal/http/handlers"
	"parkinglot/backend/services/parking-service/internal/http/middleware"
	"parkinglot/backend/services/parking-service/internal/metrics"
	"parkinglot/backend/services/parking-service/internal/notify"
	"parkinglot/backend/services/parking-service/internal/realtime"
	"parkinglot/backend/services/parking-service/internal/repository"
	"parkinglot/backend/services/parking-service/internal/service"
)

// App wires parking-service dependencies.
type App struct {
	server      *httpserver.Server
	handler     http.Handler
	db          *sql.DB
	redisClient *redis.Client
	relay       *realtime.RedisBroadcaster
	hub         *realtime.Hub
	limiter     *middleware.RateLimiter
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
}

type stores struct {
	sessions service.SessionStore
	history  service.HistoryStore
	settings service.SettingsStore
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	defaultRate, err := cfg.DefaultHourlyRate()
	if err != nil {
		return nil, err
	}

	a := &App{logger: logger}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	st, err := a.openStorage(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	a.hub = realtime.NewHub(collector, logger)
	var broadcaster service.Broadcaster = a.hub
	if cfg.Redis.Enabled {
		client, err := libredis.NewRedisClient(libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redisClient = client
		a.relay = realtime.NewRedisBroadcaster(client, cfg.Redis.Channel, a.hub, collector, logger)
		broadcaster = a.relay
	}

	sender, provider := notify.NewSender(notify.Config{
		Provider:    cfg.WhatsApp.Provider,
		Development: cfg.Development(),
		Timeout:     cfg.WhatsApp.Timeout,
		Twilio: notify.TwilioConfig{
			AccountSID: cfg.WhatsApp.Twilio.AccountSID,
			AuthToken:  cfg.WhatsApp.Twilio.AuthToken,
			FromNumber: cfg.WhatsApp.Twilio.FromNumber,
		},
		Meta: notify.MetaConfig{
			AccessToken:   cfg.WhatsApp.Meta.AccessToken,
			PhoneNumberID: cfg.WhatsApp.Meta.PhoneNumberID,
			APIVersion:    cfg.WhatsApp.Meta.APIVersion,
		},
	}, logger)
	logger.Info("whatsapp provider selected", zap.String("provider", provider))
	dispatcher := notify.NewDispatcher(sender, provider, loc, collector, logger)

	settingsSvc := service.NewSettingsService(st.settings, service.SettingsDefaults{
		HourlyRate:    defaultRate,
		Currency:      cfg.Defaults.Currency,
		AutoCalculate: cfg.Defaults.AutoCalculate,
	}, logger)
	parkingSvc := service.NewParkingService(service.ParkingDeps{
		Sessions:       st.sessions,
		History:        st.history,
		Settings:       settingsSvc,
		Receipts:       dispatcher,
		Broadcaster:    broadcaster,
		Recorder:       collector,
		Clock:          clock.Real{},
		Logger:         logger,
		HistoryTimeout: cfg.History.Timeout,
	})
	dashboardSvc := service.NewDashboardService(st.sessions, clock.Real{}, loc)

	tokens := auth.NewTokenService(cfg.JWT.Secret, 0)
	wsServer := realtime.NewServer(a.ctx, a.hub, tokens, cfg.HTTP.CORSOrigins, cfg.HTTP.WriteTimeout, logger)
	a.limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	}, logger)

	var pinger handlers.Pinger
	if a.db != nil {
		pinger = a.db
	}
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Parking:     handlers.NewParkingHandlers(parkingSvc, dashboardSvc, logger),
		Settings:    handlers.NewSettingsHandlers(settingsSvc, logger),
		Health:      handlers.NewHealthHandler(pinger),
		Metrics:     metrics.Handler(registry),
		WebSocket:   wsServer.HandleWS,
		Tokens:      tokens,
		RateLimiter: a.limiter,
		Observer:    collector,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      logger,
	})
	a.handler = router
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)
	return a, nil
}

func (a *App) openStorage(cfg *config.Config) (stores, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		a.logger.Warn("using in-memory storage; data is lost on restart")
		mem := repository.NewMemoryStore()
		return stores{sessions: mem.Sessions(), history: mem.History(), settings: mem.Settings()}, nil
	}

	sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN)
	if err != nil {
		return stores{}, err
	}
	a.db = sqlDB
	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(sqlDB); err != nil {
			return stores{}, fmt.Errorf("apply migrations: %w", err)
		}
		a.logger.Info("database migrations applied")
	}
	return stores{
		sessions: repository.NewSessionRepository(sqlDB),
		history:  repository.NewVehicleHistoryRepository(sqlDB),
		settings: repository.NewSettingsRepository(sqlDB),
	}, nil
}

// Run serves HTTP and, when enabled, the redis relay until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		a.cancel()
	}()

	if a.relay != nil {
		go func() {
			if err := a.relay.Run(a.ctx); err != nil {
				a.logger.Error("realtime relay stopped", zap.Error(err))
			}
		}()
	}

	err := a.server.Run(ctx)
	a.cancel()
	a.hub.CloseAll()
	return err
}

// Close releases resources.
func (a *App) Close() {
	a.cancel()
	if a.limiter != nil {
		a.limiter.Stop()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
