package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/gatehouse/internal/auth/http"
	"github.com/aussiebroadwan/gatehouse/internal/auth/identity"
	"github.com/aussiebroadwan/gatehouse/internal/auth/notify"
	"github.com/aussiebroadwan/gatehouse/internal/auth/service"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store"
	redisstore "github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatehouse/pkg/cryptox"
	"github.com/aussiebroadwan/gatehouse/pkg/slogx"
	"github.com/pquerna/otp"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application owns every long-lived dependency of the auth service.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         *sqlite.Store
	redis      *goredis.Client // nil unless AUTH_OTP_STORE=redis
	challenges store.OTPChallenges
	otpPinger  httpapi.Pinger
	hasher     cryptox.Hasher
	identity   service.IdentityVerifier
	notifier   service.Notifier

	tokenService        *service.TokenService
	rightsService       *service.RightsService
	bootstrapService    *service.BootstrapService
	authFlow            *service.AuthFlow
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New validates cfg and builds the application. Nothing is listening until
// Run is called.
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}
	ctx = slogx.WithContext(ctx, app.logger)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initOTPStore(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	if err := app.initServices(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"otp_store", app.cfg.OTPStore,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.closeStores()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase opens the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(sqlite.FileDSN(app.cfg.DatabaseFile))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = app.closeStores()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "file", app.cfg.DatabaseFile)
	return nil
}

// initOTPStore selects where challenges live. Rights always stay in SQLite.
func (app *Application) initOTPStore(ctx context.Context) error {
	if app.cfg.OTPStore != OTPStoreRedis {
		app.challenges = app.db.OTPChallenges()
		app.otpPinger = app.db
		return nil
	}

	app.redis = goredis.NewClient(&goredis.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})

	rs := redisstore.NewOTPStore(app.redis, app.cfg.RedisPrefix)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.challenges = rs
	app.otpPinger = rs
	app.logger.Info("otp challenges stored in redis", "addr", app.cfg.RedisAddr, "prefix", app.cfg.RedisPrefix)
	return nil
}

// initServices builds the business services and seeds the rights catalogue.
func (app *Application) initServices(ctx context.Context) error {
	pepper := ""
	if app.cfg.HashAlgorithm == cryptox.AlgorithmArgon2id {
		p, err := cryptox.LoadOrGeneratePepper(app.cfg.PepperFile)
		if err != nil {
			return fmt.Errorf("failed to load pepper: %w", err)
		}
		pepper = p
	}

	hasher, err := cryptox.NewHasher(app.cfg.HashAlgorithm, app.cfg.BcryptCost, pepper)
	if err != nil {
		return fmt.Errorf("failed to build hasher: %w", err)
	}
	app.hasher = hasher

	idp, err := identity.NewOIDCVerifier(ctx, app.cfg.OIDCIssuer, app.cfg.OIDCAudience)
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}
	app.identity = idp

	mailer, err := notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     app.cfg.SMTP.Host,
		Port:     app.cfg.SMTP.Port,
		Username: app.cfg.SMTP.Username,
		Password: app.cfg.SMTP.Secret(),
		From:     app.cfg.SMTP.From,
		Timeout:  app.cfg.SMTP.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize smtp notifier: %w", err)
	}
	app.notifier = mailer

	tokens, err := service.NewTokenService(app.cfg.Secret(), app.cfg.Issuer, app.cfg.AccessTTL, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}
	app.tokenService = tokens

	app.rightsService = &service.RightsService{Store: app.db}
	app.bootstrapService = &service.BootstrapService{Store: app.db}

	if app.cfg.RightsSeedFile != "" {
		seed, err := service.LoadRightsSeed(app.cfg.RightsSeedFile)
		if err != nil {
			return err
		}
		seeded, err := app.bootstrapService.Seed(ctx, seed)
		if err != nil {
			return fmt.Errorf("failed to seed rights: %w", err)
		}
		app.logger.Info("rights seed checked", "file", app.cfg.RightsSeedFile, "applied", seeded)
	}

	app.authFlow = &service.AuthFlow{
		Identity: app.identity,
		Notifier: app.notifier,
		Challenges: &service.OTPStore{
			Repo:        app.challenges,
			Hasher:      app.hasher,
			TTL:         app.cfg.OTPTTL,
			MaxAttempts: app.cfg.OTPMaxAttempts,
		},
		Hasher:               app.hasher,
		Rights:               app.rightsService,
		Tokens:               app.tokenService,
		CodeDigits:           otp.Digits(app.cfg.OTPDigits),
		RequireVerifiedEmail: app.cfg.RequireVerifiedEmail,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.challenges,
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.tokenService,
		app.cfg.RateLimits,
		BuildVersion,
		app.logger,
	)

	router.AuthFlow = app.authFlow
	router.RightsService = app.rightsService
	router.Database = app.db
	router.OTPStore = app.otpPinger
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
