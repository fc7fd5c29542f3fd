package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/config"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/crypto"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/logging"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/rooms"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/server"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/session"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mhcn-api",
		Short: "MadHatChatNet encrypted chat room backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newImportLegacyCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "Optional .env file loaded before configuration")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.StringSlice("allowed-origins", nil, "Allowed CORS origins (\"*\" allows any, empty is same-origin only)")
	flags.String("storage-backend", defaults.GetString("storage.backend"), "Blob storage backend (filesystem, sqlite, s3, memory)")
	flags.String("storage-path", defaults.GetString("storage.path"), "Directory for the filesystem backend")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("s3-bucket", defaults.GetString("s3.bucket"), "S3 bucket for the s3 backend")
	flags.Duration("message-lifetime", defaults.GetDuration("rooms.message_lifetime"), "Message retention window (0 disables pruning)")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	flags.String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "storage.backend", "storage-backend")
	bindFlag(cmd, "storage.path", "storage-path")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "s3.bucket", "s3-bucket")
	bindFlag(cmd, "rooms.message_lifetime", "message-lifetime")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

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

// services bundles the components shared by every subcommand.
type services struct {
	config config.AppConfig
	logger *zap.Logger
	blobs  storage.BlobStore
	rooms  *rooms.Store
}

func newServices(ctx context.Context) (*services, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	blobs, err := storage.New(ctx, appConfig.Storage(), logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	roomStore, err := rooms.NewStore(rooms.StoreConfig{
		Blobs:           blobs,
		Keys:            crypto.NewKeyDeriver(appConfig.KeyCacheSize),
		Clock:           time.Now,
		IDProvider:      rooms.NewUUIDProvider(),
		MessageLifetime: appConfig.MessageLifetime,
		Logger:          logger,
	})
	if err != nil {
		_ = blobs.Close()
		_ = logger.Sync()
		return nil, err
	}

	return &services{config: appConfig, logger: logger, blobs: blobs, rooms: roomStore}, nil
}

func (r *services) Close() {
	if err := r.blobs.Close(); err != nil {
		r.logger.Warn("storage close failed", zap.Error(err))
	}
	_ = r.logger.Sync()
}

func runServer(ctx context.Context) error {
	app, err := newServices(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.config.ValidateServing(); err != nil {
		return err
	}

	sessions, err := session.NewManager(session.ManagerConfig{
		SigningSecret: []byte(app.config.SigningSecret),
		CookieName:    app.config.CookieName,
		TTL:           app.config.SessionTTL,
		Clock:         time.Now,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Rooms:          app.rooms,
		Sessions:       sessions,
		AllowedOrigins: app.config.AllowedOrigins,
		MaxBodyBytes:   app.config.MaxBodyBytes,
		SecureCookies:  app.config.SecureCookies,
		Logger:         app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting",
			zap.String("address", app.config.HTTPAddress),
			zap.String("storage_backend", app.config.StorageBackend),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		app.logger.Info("server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
