package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"accounts/docs"
	"accounts/internal/auth"
	"accounts/internal/cache"
	"accounts/internal/config"
	"accounts/internal/db"
	"accounts/internal/handler"
	"accounts/internal/mailer"
	"accounts/internal/metrics"
	"accounts/internal/repository"
	"accounts/internal/repository/memory"
	"accounts/internal/router"
	"accounts/internal/service"
	"accounts/internal/storage"
)

// @title Accounts API
// @version 1.0
// @description User accounts: registration, JWT sessions, profiles with addresses and password reset.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	setupLogger(cfg)

	checks := map[string]handler.HealthCheck{}

	var store repository.Store
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("using in-memory store, data is lost on exit")
		store = memory.NewStore()
	} else {
		gormDB, err := db.Open(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("database init")
		}
		defer func() {
			if err := db.Close(gormDB); err != nil {
				log.Error().Err(err).Msg("close database")
			}
		}()
		if err := db.Migrate(gormDB); err != nil {
			log.Fatal().Err(err).Msg("auto-migrate")
		}
		store = repository.NewStore(gormDB)
		checks["database"] = pingDB(gormDB)
	}

	cacheClient := cache.New(cfg.Redis)
	defer cacheClient.Close()
	checks["redis"] = cacheClient.Ping

	m := metrics.New()

	objects, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init")
	}

	sender, err := mailer.New(cfg.Mail.Backend, mailer.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.MailFrom(),
		UseTLS:   cfg.Mail.UseTLS,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("mailer init")
	}

	passwordValidator, err := service.NewPasswordValidator(cfg.PasswordMinLength)
	if err != nil {
		log.Fatal().Err(err).Msg("load password policy")
	}

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	tokenStore := auth.NewTokenStore(cacheClient)
	resetTokens := auth.NewResetTokenGenerator(auth.ResetTokenConfig{
		Secret:   cfg.SecretKey,
		Lifetime: cfg.PasswordResetTimeout,
	})

	// Initialize services
	accountService := service.NewAccountService(store, passwordValidator, m)
	addressService := service.NewAddressService(store, m)
	userService := service.NewUserService(store, addressService, objects, cacheClient)
	authService := service.NewAuthService(accountService, store.Users(), jwtService, tokenStore, m)
	resetService := service.NewPasswordResetService(store, accountService, userService, resetTokens, sender, m, cfg.BaseURL)

	deps := router.Deps{
		JWT:       jwtService,
		Tokens:    tokenStore,
		Metrics:   m,
		Auth:      handler.NewAuthHandler(authService),
		Users:     handler.NewUserHandler(userService),
		Passwords: handler.NewPasswordHandler(resetService),
		Health:    handler.NewHealthHandler(checks),
	}
	if local, ok := objects.(*storage.LocalStore); ok && strings.HasPrefix(cfg.Storage.MediaURL, "/") {
		deps.MediaPrefix = strings.TrimSuffix(cfg.Storage.MediaURL, "/")
		deps.MediaRoot = local.Root()
	}

	e := echo.New()
	e.HideBanner = true
	e.Debug = cfg.Debug
	router.Register(e, deps)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "http://"), "https://")
	}
	log.Info().Str("url", "http://"+docs.SwaggerInfo.Host+"/swagger/index.html").Msg("swagger documentation")

	go func() {
		addr := ":" + cfg.ServerPort
		log.Info().Str("addr", addr).Msg("starting accounts api")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server start")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown server")
	}
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Debug {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func pingDB(gormDB *gorm.DB) handler.HealthCheck {
	return func(ctx context.Context) error {
		sqlDB, err := gormDB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
