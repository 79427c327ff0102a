package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Sternrassler/pagedseq/pkg/logging"
	"github.com/Sternrassler/pagedseq/pkg/pagination"
	"github.com/Sternrassler/pagedseq/pkg/stream"
)

// envPrefix prefixes every environment variable bound to a flag.
const envPrefix = "PAGED"

// serverConfig holds the resolved command configuration.
type serverConfig struct {
	RedisAddr      string
	Port           string
	PageSize       int64
	Parallel       bool
	MaxConcurrency int
	EndPolicy      pagination.EndPolicy
	LogLevel       logging.LogLevel
	LogPretty      bool
}

func (c serverConfig) streamConfig() stream.Config {
	cfg := stream.DefaultConfig()
	cfg.PageSize = c.PageSize
	cfg.Parallel = c.Parallel
	if c.MaxConcurrency > 0 {
		cfg.MaxConcurrency = c.MaxConcurrency
	}
	cfg.EndPolicy = c.EndPolicy
	return cfg
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(viper.New())
}

func buildRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "paged-export",
		Short:         "Serve Redis lists as NDJSON, fetched page by page",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindEnv(v, cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	flags := root.PersistentFlags()
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("log-level", string(logging.LevelInfo), `verbosity of logging ("debug", "info", "warn", "error", "disabled")`)
	flags.Bool("log-pretty", false, "human-readable console logs instead of JSON")

	serverFlags := root.Flags()
	serverFlags.String("port", "8080", "HTTP listen port")
	serverFlags.Int64("page-size", pagination.DefaultPageSize, "items fetched per page")
	serverFlags.Bool("parallel", false, "fetch pages in parallel by default")
	serverFlags.Int("max-concurrency", 0, "goroutines per parallel export (0 = GOMAXPROCS, at least 4)")
	serverFlags.String("end-policy", pagination.EndFixed.String(), `reaction to totals changing mid-traversal ("fixed", "shrink", "track")`)

	root.AddCommand(newSeedCommand(v))
	return root
}

// bindEnv binds every flag of cmd to viper, with PAGED_<FLAG_NAME>
// environment variables as fallback for flags not set on the command line.
func bindEnv(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func loadConfig(v *viper.Viper) (serverConfig, error) {
	policy, err := pagination.ParseEndPolicy(v.GetString("end-policy"))
	if err != nil {
		return serverConfig{}, err
	}

	cfg := serverConfig{
		RedisAddr:      v.GetString("redis-addr"),
		Port:           v.GetString("port"),
		PageSize:       v.GetInt64("page-size"),
		Parallel:       v.GetBool("parallel"),
		MaxConcurrency: v.GetInt("max-concurrency"),
		EndPolicy:      policy,
		LogLevel:       logging.LogLevel(v.GetString("log-level")),
		LogPretty:      v.GetBool("log-pretty"),
	}
	if cfg.PageSize <= 0 {
		return serverConfig{}, fmt.Errorf("page-size must be > 0 (got %d)", cfg.PageSize)
	}
	if cfg.MaxConcurrency < 0 {
		return serverConfig{}, fmt.Errorf("max-concurrency must be >= 0 (got %d)", cfg.MaxConcurrency)
	}
	if err := logging.ValidateLevel(cfg.LogLevel); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func setupLogging(level logging.LogLevel, pretty bool) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	logCfg.Pretty = pretty
	logging.Setup(logCfg)
}

func serve(ctx context.Context, cfg serverConfig) error {
	setupLogging(cfg.LogLevel, cfg.LogPretty)
	logger := logging.NewLogger(logging.ComponentExport)

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		return fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("Connected to Redis")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newServer(redisClient, cfg.streamConfig(), logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Int64("page_size", cfg.PageSize).
			Bool("parallel", cfg.Parallel).
			Str("end_policy", cfg.EndPolicy.String()).
			Msg("Starting export server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down export server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
