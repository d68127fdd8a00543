// Package main запускает HTTP-сервер и фоновые воркеры сервиса докфлоу.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/docflow-system/internal/config"
	"github.com/mmeshcher/docflow-system/internal/dispatch"
	"github.com/mmeshcher/docflow-system/internal/extractor"
	"github.com/mmeshcher/docflow-system/internal/handler"
	"github.com/mmeshcher/docflow-system/internal/processor"
	"github.com/mmeshcher/docflow-system/internal/repository"
	"github.com/mmeshcher/docflow-system/internal/storage"
	"github.com/mmeshcher/docflow-system/internal/worker"
)

const jobQueueCapacity = 100

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	files, err := storage.NewMinioStorage(storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		sugar.Fatalw("object storage initialization error", "error", err.Error())
	}

	recognizerAddress := cfg.RecognizerAddress
	if recognizerAddress == "" {
		// Без внешнего сервиса распознавания используется собственная заглушка.
		recognizerAddress = "http://" + cfg.RunAddress
	}

	ext := extractor.New(extractor.NewClient(recognizerAddress), logger)
	proc := processor.New(files, ext, logger)

	queue := worker.NewQueue("documents", jobQueueCapacity)
	dispatcher := dispatch.New(repo, proc, queue, cfg.SyncDeadline, logger)
	runner := worker.NewRunner(queue, repo, proc, logger, cfg.MaxAttempts, cfg.RetryBackoff)

	h := handler.NewHandler(repo, files, dispatcher, queue, logger)
	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск пула воркеров фоновой обработки
	g.Go(func() error {
		runner.Run(ctx, cfg.Workers)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting docflow server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
