package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"OpenCargoRegistry/authenticator"
	"OpenCargoRegistry/config"
	"OpenCargoRegistry/controller"
	"OpenCargoRegistry/db"
	"OpenCargoRegistry/index"
	"OpenCargoRegistry/metrics"
	"OpenCargoRegistry/middleware"
	"OpenCargoRegistry/registry"
	"OpenCargoRegistry/search"
	"OpenCargoRegistry/storage"
	"OpenCargoRegistry/storage/disk"
	"OpenCargoRegistry/storage/gcs"
	"OpenCargoRegistry/storage/s3"
	"OpenCargoRegistry/utils"
)

var (
	configPath  string
	tlsFlag     bool
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "open-cargo-registry [subcommand]",
	Short: "An alternative registry for Cargo",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verboseFlag {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		} else {
			slog.SetLogLoggerLevel(slog.LevelInfo)
		}
	},
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve [--tls]",
	Short: "Serve the registry API and the sparse index.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the database and the stored READMEs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		count, err := app.registry.RebuildSearch(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d crates\n", count)
		return nil
	},
}

var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Report inconsistencies between database, index and storage, and purge expired sessions.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()
		report, err := app.registry.Reconcile(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range report.OrphanCrates {
			fmt.Fprintf(out, "orphan crate: %s\n", name)
		}
		for _, blob := range report.MissingBlobs {
			fmt.Fprintf(out, "missing tarball: %s\n", blob)
		}
		fmt.Fprintf(out, "expired sessions purged: %d\n", report.ExpiredSessions)
		return nil
	},
}

// application holds the opened backends of one process.
type application struct {
	config   *config.ServerRoot
	db       *db.DB
	index    *index.Index
	search   *search.Index
	metrics  *metrics.Metrics
	registry *registry.Registry
}

func (a *application) Close() {
	if err := a.search.Close(); err != nil {
		slog.Error("Error closing search index:", "error", err.Error())
	}
	if err := a.db.Close(); err != nil {
		slog.Error("Error closing database:", "error", err.Error())
	}
}

func setup(ctx context.Context) (*application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "loading configuration")
	}
	clock := utils.NewRealTimeProvider()

	database, err := db.Open(ctx, cfg.Database, clock)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	idx, err := index.Open(cfg.Index)
	if err != nil {
		database.Close()
		return nil, errors.Wrap(err, "opening index")
	}
	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		database.Close()
		return nil, errors.Wrap(err, "opening storage")
	}
	searchIndex, err := search.Open(cfg.Search.Directory)
	if err != nil {
		database.Close()
		return nil, errors.Wrap(err, "opening search index")
	}
	m := metrics.New()
	reg, err := registry.New(cfg, registry.Backends{
		DB:      database,
		Index:   idx,
		Storage: store,
		Search:  searchIndex,
		Metrics: m,
		Clock:   clock,
	})
	if err != nil {
		searchIndex.Close()
		database.Close()
		return nil, err
	}
	return &application{config: cfg, db: database, index: idx, search: searchIndex, metrics: m, registry: reg}, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case config.StorageTypeS3:
		return s3.Open(ctx, cfg)
	case config.StorageTypeGCS:
		return gcs.Open(ctx, cfg)
	default:
		return disk.Open(cfg.Path)
	}
}

func serve(ctx context.Context) error {
	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	cfg := app.config
	reg := app.registry

	if err := app.index.EnsureConfig(ctx, reg.IndexConfig()); err != nil {
		return errors.Wrap(err, "initializing index configuration")
	}
	if err := reg.SeedCategories(ctx); err != nil {
		return errors.Wrap(err, "seeding categories")
	}
	if err := reg.EnsureSearchIndex(ctx); err != nil {
		return errors.Wrap(err, "preparing search index")
	}
	if report, err := reg.Reconcile(ctx); err != nil {
		slog.Warn("Reconciliation failed", "error", err.Error())
	} else if len(report.OrphanCrates) > 0 || len(report.MissingBlobs) > 0 {
		slog.Warn("Registry is inconsistent", "orphanCrates", report.OrphanCrates, "missingBlobs", report.MissingBlobs)
	}

	var provider controller.OIDCProvider
	if cfg.Auth.OIDC.Enabled() {
		p, err := authenticator.NewOIDCProvider(ctx, cfg.Auth.OIDC, reg.BaseURL()+"/api/v1/account/oidc/callback")
		if err != nil {
			return errors.Wrap(err, "configuring external login")
		}
		provider = p
	}

	router := http.NewServeMux()
	auth := middleware.NewAuthentication(authenticator.NewDBAuthenticator(app.db), router)
	limiter := middleware.NewRateLimiter(cfg.Auth.LoginRate, cfg.Auth.LoginBurst, nil)
	c := controller.NewController(reg, app.index.Tree(), provider)
	c.Register(router, auth, limiter)
	router.Handle("GET /metrics", app.metrics.Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           middleware.Instrument(app.metrics, nil, auth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if tlsFlag || cfg.General.TlsEnabled {
		slog.Info("Starting HTTPS server on", "addr", srv.Addr)
		return srv.ListenAndServeTLS(cfg.General.Certs.CertFile, cfg.General.Certs.KeyFile)
	}
	slog.Info("Starting HTTP server on", "addr", srv.Addr)
	return srv.ListenAndServe()
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yml", "path of the configuration file (.yml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "show more information")
	rootCmd.Flags().BoolVar(&tlsFlag, "tls", false, "enable tls")
	serveCmd.Flags().BoolVar(&tlsFlag, "tls", false, "enable tls")
	rootCmd.AddCommand(serveCmd, reindexCmd, janitorCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
