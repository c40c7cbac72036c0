// Command bloggy-sweeper is the Lambda attached to the blog table's stream. It removes the
// items left under a post or tag whose canonical item was deleted.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/jacentio/bloggy/internal/config"
	"github.com/jacentio/bloggy/internal/logger"
	"github.com/jacentio/bloggy/store"
	"github.com/jacentio/bloggy/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bloggy-sweeper:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bloggy-sweeper:", err)
		os.Exit(1)
	}

	client, err := config.NewDynamoDBClient(context.Background(), cfg)
	if err != nil {
		log.Fatal("create DynamoDB client", zap.Error(err))
	}

	s := store.NewWithLogger(client, cfg.Store(), log.Named("store"))
	lambda.Start(stream.NewHandler(s, log.Named("sweeper")).HandleCascadeDelete)
}
