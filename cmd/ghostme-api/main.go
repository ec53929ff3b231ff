package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/auth"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/companies"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/config"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/database"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/logging"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/ratelimit"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/reports"
	"github.com/necdetsanli/do-not-ghost-me-sub002/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ghostme-api",
		Short: "Anonymous ghosting-report backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("max-per-day", defaults.GetInt("ratelimit.max_per_day"), "Reports accepted per address per UTC day")
	cmd.PersistentFlags().Int("max-per-company", defaults.GetInt("ratelimit.max_per_company"), "Reports accepted per address per company")
	cmd.PersistentFlags().Int("admin-token-ttl-minutes", defaults.GetInt("admin.token_ttl_minutes"), "Admin session TTL in minutes")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "ratelimit.max_per_day", "max-per-day")
	bindFlag(cmd, "ratelimit.max_per_company", "max-per-company")
	bindFlag(cmd, "admin.token_ttl_minutes", "admin-token-ttl-minutes")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	hasher, err := ratelimit.NewHasher(appConfig.IPHashSalt)
	if err != nil {
		return err
	}
	limiter, err := ratelimit.NewLimiter(ratelimit.LimiterConfig{
		Database:      db,
		Hasher:        hasher,
		MaxPerDay:     appConfig.MaxReportsPerDay,
		MaxPerCompany: appConfig.MaxReportsPerCompany,
		Clock:         time.Now,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	companyService, err := companies.NewService(companies.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: companies.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	reportService, err := reports.NewService(reports.ServiceConfig{
		Database:   db,
		Limiter:    limiter,
		Companies:  companyService,
		Clock:      time.Now,
		IDProvider: reports.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AdminSigningSecret),
		TokenTTL:      appConfig.AdminTokenTTL,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		ReportService:  reportService,
		CompanyService: companyService,
		TokenManager:   tokenManager,
		Credentials: auth.Credentials{
			Username: appConfig.AdminUsername,
			Password: appConfig.AdminPassword,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
