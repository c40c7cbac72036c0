// Command bloggy-api serves the blog API over HTTP, or behind API Gateway when it runs in
// AWS Lambda.
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

	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"

	"github.com/jacentio/bloggy/blog"
	"github.com/jacentio/bloggy/internal/api"
	"github.com/jacentio/bloggy/internal/config"
	"github.com/jacentio/bloggy/internal/logger"
	"github.com/jacentio/bloggy/internal/metrics"
	"github.com/jacentio/bloggy/store"
)

const (
	shutdownTimeout = 15 * time.Second
	tableWait       = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "bloggy-api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := config.NewDynamoDBClient(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.CreateTable {
		if err := store.EnsureTable(ctx, client, cfg.Store(), tableWait); err != nil {
			return err
		}
	}

	collector := metrics.NewCollector("bloggy")
	s := store.NewWithLogger(metrics.InstrumentClient(client, collector), cfg.Store(), log.Named("store"))
	repo := blog.NewRepository(s, log.Named("blog"))
	router := api.NewRouter(repo, api.Options{
		PageSize:       int32(cfg.PageSize),
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        collector,
		Logger:         log.Named("api"),
	})

	if cfg.IsLambda() {
		log.Info("starting lambda handler", zap.String("function", cfg.LambdaFunctionName))
		lambda.StartWithOptions(chiadapter.NewV2(router).ProxyWithContextV2, lambda.WithContext(ctx))
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", cfg.ServerAddress),
			zap.String("env", cfg.Environment),
			zap.String("table", cfg.TableName),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
