package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chatdb/chatdb/internal/config"
	"github.com/chatdb/chatdb/internal/demo"
	"github.com/chatdb/chatdb/internal/docstore"
	"github.com/chatdb/chatdb/internal/migrations"
	"github.com/chatdb/chatdb/internal/nl2sql"
	"github.com/chatdb/chatdb/internal/observability"
	"github.com/chatdb/chatdb/internal/query"
	duckdbengine "github.com/chatdb/chatdb/internal/query/duckdb"
	"github.com/chatdb/chatdb/internal/query/sqlengine"
	"github.com/chatdb/chatdb/internal/server"
	"github.com/chatdb/chatdb/internal/storage"
	"github.com/chatdb/chatdb/internal/storage/localfs"
	s3store "github.com/chatdb/chatdb/internal/storage/s3"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("chatdb-server")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "chatdb-server",
		Short:         "Serve the ChatDB query endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg, logger)
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg, logger)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "import-collection <name> <file.json>",
		Short: "Replace a document collection with the JSON array in a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importCollection(cmd.Context(), cfg, logger, args[0], args[1])
		},
	})

	root.AddCommand(newMigrateCommand(cfg, logger))
	root.AddCommand(newSeedDemoCommand(cfg, logger))

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("chatdb-server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	objectStore, err := openObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize object store: %w", err)
	}
	documents, err := docstore.New(objectStore)
	if err != nil {
		return err
	}

	relational, dialect, relationalCheck, closeRelational, err := openRelational(ctx, cfg, objectStore)
	if err != nil {
		return fmt.Errorf("initialize relational engine: %w", err)
	}
	defer closeRelational()

	var translator nl2sql.Translator = nl2sql.KeywordTranslator{DefaultLimit: cfg.Relational.ResultLimit}
	if cfg.AI.TranslateEnabled {
		primary, err := nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			return fmt.Errorf("initialize query translator: %w", err)
		}
		translator = nl2sql.Fallback{
			Primary:   primary,
			Secondary: translator,
			OnError: func(err error) {
				logger.Warn("translator failed; using keyword fallback", slog.Any("error", err))
			},
		}
	}

	handler := server.NewHandler(cfg, server.Dependencies{
		Logger:            logger,
		Relational:        relational,
		RelationalDialect: dialect,
		Documents:         documents,
		Translator:        translator,
		Readiness: server.CombineReadinessChecks(
			relationalCheck,
			func(ctx context.Context) error {
				_, err := documents.Collections(ctx)
				return err
			},
		),
		DependencyTimeout: time.Second,
	})
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting chatdb server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("relational_engine", string(cfg.Relational.Engine)),
			slog.Bool("translator_ai", cfg.AI.TranslateEnabled),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down chatdb server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func openObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if !cfg.ObjectStore.Enabled {
		store, err := localfs.New(cfg.ObjectStore.LocalDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func openRelational(ctx context.Context, cfg config.Config, objects storage.ObjectStore) (query.Engine, string, server.ReadinessCheck, func(), error) {
	if cfg.Relational.Engine == config.EngineDuckDB {
		engine := duckdbengine.NewEngine(objects)
		check := func(ctx context.Context) error {
			_, err := engine.ListTables(ctx)
			return err
		}
		return engine, "duckdb", check, func() {}, nil
	}

	dialect, err := sqlengine.DialectFor(string(cfg.Relational.Engine))
	if err != nil {
		return nil, "", nil, nil, err
	}
	engine, err := sqlengine.Open(ctx, dialect, cfg.Relational.DSN)
	if err != nil {
		return nil, "", nil, nil, err
	}
	return engine, dialect.Name, engine.HealthCheck, func() { _ = engine.Close() }, nil
}

func importCollection(ctx context.Context, cfg config.Config, logger *slog.Logger, name, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	var docs []any
	decoder := json.NewDecoder(file)
	decoder.UseNumber()
	if err := decoder.Decode(&docs); err != nil {
		return fmt.Errorf("%s must hold a JSON array of documents: %w", path, err)
	}

	objectStore, err := openObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize object store: %w", err)
	}
	documents, err := docstore.New(objectStore)
	if err != nil {
		return err
	}
	if err := documents.Replace(ctx, name, docs); err != nil {
		return err
	}
	logger.Info("imported collection", slog.String("collection", name), slog.Int("documents", len(docs)))
	return nil
}

func newMigrateCommand(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate <up|down|status>",
		Short:     "Apply or roll back the sample schema on the relational database",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Relational.Engine == config.EngineDuckDB {
				return fmt.Errorf("duckdb tables are loaded with seed-demo, not migrations")
			}
			dialect, err := sqlengine.DialectFor(string(cfg.Relational.Engine))
			if err != nil {
				return err
			}
			runner, err := migrations.NewRunner(dialect.Name)
			if err != nil {
				return err
			}
			engine, err := sqlengine.Open(cmd.Context(), dialect, cfg.Relational.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			switch args[0] {
			case "up":
				applied, err := runner.Up(cmd.Context(), engine.DB(), steps)
				if err != nil {
					return err
				}
				logger.Info("migrations applied", slog.Int("count", applied))
			case "down":
				if steps <= 0 {
					steps = 1
				}
				rolledBack, err := runner.Down(cmd.Context(), engine.DB(), steps)
				if err != nil {
					return err
				}
				logger.Info("migrations rolled back", slog.Int("count", rolledBack))
			case "status":
				pending, err := runner.Pending(cmd.Context(), engine.DB())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pending migrations: %d\n", pending)
			default:
				return fmt.Errorf("unknown migrate action %q (want up, down or status)", args[0])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "number of migrations to run (0 = all for up, 1 for down)")
	return cmd
}

func newSeedDemoCommand(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var (
		orders    int
		customers int
		seed      int64
	)
	cmd := &cobra.Command{
		Use:   "seed-demo",
		Short: "Write a generated orders dataset as a parquet table and document collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if orders <= 0 {
				return fmt.Errorf("--orders must be > 0")
			}
			objectStore, err := openObjectStore(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize object store: %w", err)
			}
			generator := demo.NewGenerator(seed, customers)
			result, err := demo.Seed(cmd.Context(), objectStore, generator.Orders(orders))
			if err != nil {
				return err
			}
			logger.Info("demo data written",
				slog.Int("orders", result.Orders),
				slog.Int("customers", result.Customers),
				slog.String("parquet_key", result.ParquetKey),
				slog.Any("collections", result.Collections),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&orders, "orders", 200, "number of orders to generate")
	cmd.Flags().IntVar(&customers, "customers", 40, "number of distinct customers")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UTC().UnixNano(), "random seed")
	return cmd
}
