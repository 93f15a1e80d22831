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

	"github.com/MarcoPoloResearchLab/lectern/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/blobstore"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/config"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/database"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/media"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/publishing"
	"github.com/MarcoPoloResearchLab/lectern/backend/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lectern-api",
		Short: "Lectern publishing backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newInitDBCommand(), newResetDBCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("storage-bucket", defaults.GetString("storage.bucket"), "Object storage bucket")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "storage.bucket", "storage-bucket")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
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

func newInitDBCommand() *cobra.Command {
	var samples bool
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create tables, apply migrations and seed the profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(func(db *gorm.DB, logger *zap.Logger) error {
				store, err := catalog.NewStore(catalog.StoreConfig{Database: db, Logger: logger})
				if err != nil {
					return err
				}
				report, err := database.Seed(cmd.Context(), store, database.SeedOptions{Samples: samples, Logger: logger})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "database ready: profile_created=%t categories=%d contents=%d visitors=%d\n",
					report.ProfileCreated, report.Categories, report.Contents, report.Visitors)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&samples, "samples", false, "Insert demonstration categories and contents")
	return cmd
}

func newResetDBCommand() *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "reset-db",
		Short: "Drop every table owned by the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirmed {
				return errors.New("reset-db drops all data; pass --yes to confirm")
			}
			appConfig, err := config.LoadDatabase(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.Connect(appConfig.DatabaseDriver, appConfig.DatabaseDSN)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			return database.Reset(db, logger)
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm dropping all tables")
	return cmd
}

func withDatabase(run func(db *gorm.DB, logger *zap.Logger) error) error {
	appConfig, err := config.LoadDatabase(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return run(db, logger)
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := catalog.NewStore(catalog.StoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: catalog.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	credentials, err := blobstore.NewCredentialCache(blobstore.CredentialCacheConfig{
		Authorizer: blobstore.NewS3Authorizer(blobstore.S3Settings{
			Endpoint:       appConfig.Storage.Endpoint,
			Region:         appConfig.Storage.Region,
			Bucket:         appConfig.Storage.Bucket,
			KeyID:          appConfig.Storage.KeyID,
			ApplicationKey: appConfig.Storage.ApplicationKey,
		}),
		TTL:    appConfig.Storage.SessionTTL,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	blobs, err := blobstore.NewClient(blobstore.ClientConfig{
		Credentials:   credentials,
		Bucket:        appConfig.Storage.Bucket,
		PublicBaseURL: appConfig.Storage.PublicBaseURL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	resolver, err := media.NewResolver(media.ResolverConfig{
		Signer:       blobs,
		Source:       store,
		SignedURLTTL: appConfig.SignedURLTTL,
		FetchTimeout: appConfig.MediaFetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	contents, err := publishing.NewContentCoordinator(publishing.ContentCoordinatorConfig{
		Blobs:    blobs,
		Contents: store,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	profiles, err := publishing.NewProfileCoordinator(publishing.ProfileCoordinatorConfig{
		Blobs:    blobs,
		Profiles: store,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	categories, err := publishing.NewCategoryCoordinator(publishing.CategoryCoordinatorConfig{
		Categories: store,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
		RequiredRole:  auth.RoleAdmin,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:        store,
		Contents:       contents,
		Profiles:       profiles,
		Categories:     categories,
		Media:          resolver,
		Blobs:          blobs,
		Sessions:       sessions,
		Realtime:       server.NewRevalidationDispatcher(),
		AllowedOrigins: appConfig.AllowedOrigins,
		AdminOrigins:   appConfig.AdminOrigins,
		VisitorWindow:  appConfig.VisitorWindow,
		Logger:         logger,
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
