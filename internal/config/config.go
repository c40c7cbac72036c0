// Package config loads process settings from the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/bloggy/store"
)

// Environments.
const (
	EnvDev        = "dev"
	EnvTest       = "test"
	EnvProduction = "production"
)

const localEndpoint = "http://localhost:8000"

// Config holds all process configuration.
type Config struct {
	// Environment is one of dev, test or production.
	Environment string

	// AWS configuration
	AWSRegion        string
	TableName        string
	IndexName        string
	DynamoDBEndpoint string // empty uses the regional endpoint

	// CreateTable creates the table on startup when it is missing. Defaults to true in dev.
	CreateTable bool

	// Server configuration
	ServerAddress  string
	PageSize       int
	AllowedOrigins []string

	// Lambda configuration
	LambdaFunctionName string

	// Logging
	LogLevel string
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	env := getEnv("BLOGGY_ENV", EnvProduction)

	endpoint := getEnv("BLOGGY_DYNAMODB_ENDPOINT", "")
	if endpoint == "" && env == EnvDev {
		endpoint = localEndpoint
	}

	cfg := &Config{
		Environment:        env,
		AWSRegion:          getEnv("AWS_REGION", "eu-west-2"),
		TableName:          getEnv("BLOGGY_TABLE", "Blog"),
		IndexName:          getEnv("BLOGGY_INDEX", "GSI"),
		DynamoDBEndpoint:   endpoint,
		CreateTable:        getEnvBool("BLOGGY_CREATE_TABLE", env == EnvDev),
		ServerAddress:      getEnv("BLOGGY_ADDR", ":8080"),
		PageSize:           getEnvInt("BLOGGY_PAGE_SIZE", 10),
		AllowedOrigins:     getEnvList("BLOGGY_CORS_ORIGINS"),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),
		LogLevel:           getEnv("BLOGGY_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDev, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("BLOGGY_ENV must be one of dev, test, production; got %q", c.Environment)
	}
	if c.TableName == "" {
		return fmt.Errorf("BLOGGY_TABLE is required")
	}
	if c.PageSize < 1 || c.PageSize > 1000 {
		return fmt.Errorf("BLOGGY_PAGE_SIZE must be between 1 and 1000; got %d", c.PageSize)
	}
	return nil
}

// IsDevelopment reports whether the process runs against local services.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDev
}

// IsLambda reports whether the process runs inside AWS Lambda.
func (c *Config) IsLambda() bool {
	return c.LambdaFunctionName != ""
}

// Store returns the storage engine configuration.
func (c *Config) Store() store.Config {
	cfg := store.DefaultConfig()
	cfg.TableName = c.TableName
	cfg.IndexName = c.IndexName
	cfg.DefaultLimit = int32(c.PageSize)
	return cfg
}

// NewDynamoDBClient builds the DynamoDB client. In dev, or whenever an endpoint override is
// set, it talks to that endpoint with static dummy credentials.
func NewDynamoDBClient(ctx context.Context, c *Config) (*dynamodb.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.AWSRegion),
	}
	if c.DynamoDBEndpoint != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if c.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(c.DynamoDBEndpoint)
		}
	}), nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated environment variable, dropping blanks
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
