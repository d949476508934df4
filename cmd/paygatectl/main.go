package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"paygate/internal/db"
	"paygate/internal/domain/channels"
	"paygate/internal/domain/storage"
	"paygate/internal/gateway"
	"paygate/internal/payments"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "0.3.0"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "paygatectl",
		Short:         "Operator tooling for the payment gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(ordersCmd())
	rootCmd.AddCommand(refundsCmd())
	rootCmd.AddCommand(channelsCmd())

	return rootCmd
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func openPool() (*pgxpool.Pool, error) {
	addr := os.Getenv("DB_ADDR")
	if addr == "" {
		return nil, fmt.Errorf("DB_ADDR is required")
	}
	return db.New(db.Config{
		Addr:            addr,
		MaxConns:        4,
		MaxIdleTime:     getenv("DB_MAX_IDLE_TIME", "1m"),
		ApplicationName: "paygatectl",
	})
}

func newLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// withService runs fn against the Postgres backed gateway. Operator commands
// never dial a channel, so no adapters are registered.
func withService(ctx context.Context, fn func(svc *gateway.Service) error) error {
	pool, err := openPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := newLogger()
	defer logger.Sync()

	container := storage.NewContainer(pool)
	registry := channels.NewRegistry(container.Channels, logger)
	svc := gateway.NewService(container, registry, payments.NewRegistry(), logger)
	return fn(svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
