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

	"go.uber.org/zap"

	"github.com/Brownie44l1/tumorscan/internal/config"
	"github.com/Brownie44l1/tumorscan/internal/genomics"
	"github.com/Brownie44l1/tumorscan/internal/handlers"
	"github.com/Brownie44l1/tumorscan/internal/model"
	"github.com/Brownie44l1/tumorscan/internal/server"
	"github.com/Brownie44l1/tumorscan/internal/upload"
	"github.com/Brownie44l1/tumorscan/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		os.Stderr.WriteString("CRITICAL: Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.NewSugared(cfg.Log.Level)
	if err != nil {
		os.Stderr.WriteString("CRITICAL: Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("Loading model from: %s", cfg.Model.Path)

	modelServer, err := model.NewServer(model.Options{
		ModelPath:    cfg.Model.Path,
		MetadataPath: cfg.Model.MetadataPath,
		RuntimeLib:   cfg.Model.RuntimeLib,
	}, log.Desugar())
	if err != nil {
		log.Fatal("Failed to initialize model server: ", err)
	}
	defer modelServer.Close()

	store, err := newStore(ctx, cfg, log.Desugar())
	if err != nil {
		log.Fatal("Failed to create upload store: ", err)
	}

	seed := cfg.Gene.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	h := handlers.NewHandler(handlers.Deps{
		Classifier:    modelServer,
		Metadata:      modelServer.Metadata,
		Store:         store,
		Allowed:       upload.NewAllowList(cfg.App.AllowedExtensions),
		Analyzer:      genomics.NewAnalyzer(seed),
		MaxUploadSize: cfg.App.MaxUploadSize,
	}, log.Desugar())

	srv, err := server.New(cfg, h, log.Desugar())
	if err != nil {
		log.Fatal("Failed to create server: ", err)
	}

	if cfg.Storage.Backend == config.BackendLocal && cfg.App.UploadRetention > 0 {
		go upload.RunSweeper(ctx, cfg.App.UploadDir, cfg.App.UploadRetention, time.Hour, log.Desugar())
	}

	log.Infof("Classes: %v", modelServer.Metadata.Classes)

	if err := serve(ctx, srv, shutdownTimeout, log); err != nil {
		log.Errorf("Server failed: %v", err)
	}

	log.Info("Server exited")
}

const shutdownTimeout = 10 * time.Second

// serve runs srv until ctx is done or the server fails, then drains open
// requests for at most timeout.
func serve(ctx context.Context, srv *server.Server, timeout time.Duration, log *zap.SugaredLogger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (upload.Store, error) {
	if cfg.Storage.Backend == config.BackendS3 {
		return upload.NewS3Store(ctx, cfg.S3, log)
	}
	return upload.NewLocalStore(cfg.App.UploadDir, log)
}
