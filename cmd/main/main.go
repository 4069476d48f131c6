package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CTAG07/charlm/pkg/ngram"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "./config.json", "Path to the JSON configuration file")
	flag.Parse()

	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		baseLogger.Error("An error occurred, shutting down.", "error", err)
		stop()
		os.Exit(1)
	}
}

// run loads (or trains) the configured model, prints generated text, and
// serves the API until ctx is cancelled when an API address is configured.
func run(ctx context.Context, configPath string) error {
	config, err := LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))
	logger.Info("Starting charlm", "version", Version, "commit", Commit, "build_date", BuildDate)

	db, err := initDB(ctx, config.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()

	store, err := ngram.NewStore(db)
	if err != nil {
		return fmt.Errorf("error creating model store: %w", err)
	}
	defer store.Close()
	store.SetLogger(logger)

	info, model, err := loadOrTrain(ctx, store, config.Model, logger)
	if err != nil {
		return err
	}

	selector, err := newSelector(config.Generation.Selector, config.Generation.RandomSeed)
	if err != nil {
		return err
	}
	gen := ngram.NewGenerator(ngram.WithSelector(selector), ngram.WithLogger(logger))
	text, err := gen.Generate(model, info.Order, config.Generation.Length, ngram.Normalize(config.Generation.Seed))
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	fmt.Println(text)

	if config.Server.ApiAddr == "" {
		return nil
	}
	return serve(ctx, config.Server.ApiAddr, NewModelAPI(store, config.Model.TrainConcurrency, logger), logger)
}

// loadOrTrain returns the stored model named in cfg, training it from the
// configured corpus and saving it when it is missing or a retrain is requested.
func loadOrTrain(ctx context.Context, store *ngram.Store, cfg *ModelConfig, logger *slog.Logger) (ngram.ModelInfo, ngram.LanguageModel, error) {
	if !cfg.Retrain {
		info, model, err := store.LoadModel(ctx, cfg.Name)
		if err == nil {
			logger.Info("Loaded model", "model_name", info.Name, "order", info.Order, "histories", len(model))
			return info, model, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return ngram.ModelInfo{}, nil, fmt.Errorf("failed to load model: %w", err)
		}
		logger.Info("Model not found, training from corpus", "model_name", cfg.Name, "corpus_path", cfg.CorpusPath)
	}

	corpus, err := os.ReadFile(cfg.CorpusPath)
	if err != nil {
		return ngram.ModelInfo{}, nil, fmt.Errorf("failed to read corpus: %w", err)
	}

	model, err := ngram.Train(ctx, string(corpus), cfg.Order,
		ngram.WithConcurrency(cfg.TrainConcurrency),
		ngram.WithTrainLogger(logger),
	)
	if err != nil {
		return ngram.ModelInfo{}, nil, fmt.Errorf("training failed: %w", err)
	}

	info, err := store.SaveModel(ctx, cfg.Name, cfg.Order, model)
	if err != nil {
		return ngram.ModelInfo{}, nil, fmt.Errorf("failed to save model: %w", err)
	}
	return info, model, nil
}

// serve hosts the model API until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, addr string, api *ModelAPI, logger *slog.Logger) error {
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)
	apiHttpServer := &http.Server{Addr: addr, Handler: withRequestLogging(logger, mux)}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("OS signal received, stopping api server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")
	return nil
}
