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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"

	"github.com/Patrick-Flanagan-13/parent-invite-app/cmd/buildCFG"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/api/api"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/api/handlers"
	rabbitReader "github.com/Patrick-Flanagan-13/parent-invite-app/internal/consumerWorker"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/notify"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/rabbit"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/ratelimit"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/service"
)

type options struct {
	configPath string
	envPath    string
}

func main() {
	var opts options
	pflag.StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML config file")
	pflag.StringVar(&opts.envPath, "env", "", "optional .env file")
	pflag.Parse()

	zlog.Init()
	log := zlog.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, opts, &log)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("Shutdown complete")
}

// run serves until ctx is cancelled or the listener fails. Every resource it
// opens is closed before it returns.
func run(ctx context.Context, opts options, log *zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := config.New()
	if err := cfg.Load(opts.configPath, opts.envPath, ""); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, log)

	repository, closeDB, err := buildCFG.OpenRepository(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeDB()

	direct := buildCFG.DirectDispatcher(cfg, serverCfg, log)
	var events notify.Dispatcher = direct

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("load RabbitMQ config: %w", err)
	}
	if rabbitCfg.Enabled {
		rmq, err := rabbit.NewRabbit(rabbitCfg.Config, log)
		if err != nil {
			return err
		}
		defer rmq.Close()

		reader := rabbitReader.NewReader(rmq, direct, log)
		reader.Start(ctx)
		// Registered after rmq.Close, so the reader drains first.
		defer func() {
			cancel()
			reader.Stop()
		}()
		if rabbitCfg.NotifyMode == "queue" {
			events = notify.NewQueued(rmq, log)
		}
	}

	reminderCfg := buildCFG.BuildReminderConfig(cfg, log)
	svc := service.New(repository, events, direct, log, service.Config{
		ReminderLead:     reminderCfg.Lead,
		ReminderWindow:   reminderCfg.Window,
		SweepConcurrency: reminderCfg.Concurrency,
	})

	routers := &api.Routers{
		Handler:     handlers.New(svc, serverCfg.BaseURL, log),
		Repo:        repository,
		Log:         log,
		Actor:       buildCFG.BuildAuthConfig(cfg),
		CronSecret:  reminderCfg.CronSecret,
		Maintenance: serverCfg.Maintenance,
		GinMode:     serverCfg.GinMode,
	}

	rlCfg := buildCFG.BuildRateLimitConfig(cfg, log)
	if rlCfg.Enabled {
		store := ratelimit.NewStore(rlCfg.RPS, rlCfg.Burst)
		store.StartJanitor(ctx)
		rlOpts := ratelimit.Options{Store: store, TrustXForwardedFor: rlCfg.TrustXFF, Log: log}
		if rlCfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     rlCfg.RedisAddr,
				Password: rlCfg.RedisPassword,
				DB:       rlCfg.RedisDB,
			})
			defer rdb.Close()
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Warn().Err(err).Msg("redis unavailable, rate limit stats will be dropped")
			}
			rlOpts.Stats = ratelimit.NewRedisStatsStore(rdb, ratelimit.WithStatsPrefix(rlCfg.StatsPrefix))
		}
		routers.RateLimit = ratelimit.Middleware(rlOpts)
		log.Info().Float64("rps", rlCfg.RPS).Int("burst", rlCfg.Burst).Msg("rate limiting enabled")
	}

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           api.NewRouters(routers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Received shutdown signal. Initiating shutdown...")
	case serveErr = <-serverErrChan:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down server")
	}
	return serveErr
}
