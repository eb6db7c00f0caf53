// Command ideaboard-devserver runs an in-memory notification service for
// local development of the ideaboard client.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/nhle/ideaboard/internal/devserver"
	"github.com/nhle/ideaboard/internal/logging"
	"github.com/nhle/ideaboard/internal/model"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ideaboard-devserver:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// A local .env may carry IDEABOARD_DEV_SECRET and friends.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	fs := pflag.NewFlagSet("ideaboard-devserver", pflag.ContinueOnError)
	addr := fs.String("addr", envOr("IDEABOARD_DEV_ADDR", "localhost:8090"), "listen address")
	secret := fs.String("secret", os.Getenv("IDEABOARD_DEV_SECRET"), "HS256 signing secret; empty disables auth")
	tokenTTL := fs.Duration("token-ttl", 24*time.Hour, "lifetime of the printed token")
	redisAddr := fs.String("redis-addr", os.Getenv("IDEABOARD_DEV_REDIS_ADDR"), "also publish pushes to this Redis server")
	redisChannel := fs.String("redis-channel", "ideaboard:notifications", "Redis pub/sub channel")
	seedCount := fs.Int("seed", 12, "number of sample notifications to create at start")
	emitEvery := fs.Duration("emit-every", 0, "create a sample notification at this interval (0 disables)")
	logLevel := fs.String("log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, closer, err := logging.New(model.LogConfig{Level: *logLevel, Format: "text"})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := devserver.Config{Secret: []byte(*secret), Logger: logger}
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis %s: %w", *redisAddr, err)
		}
		cfg.Redis = rdb
		cfg.RedisChannel = *redisChannel
	}

	srv := devserver.New(cfg)

	gen := devserver.NewGenerator(uint64(time.Now().UnixNano()))
	if err := srv.Seed(gen, *seedCount); err != nil {
		return err
	}

	if *secret != "" {
		token, err := srv.IssueToken("dev-user", *tokenTTL)
		if err != nil {
			return err
		}
		fmt.Printf("export IDEABOARD_API_TOKEN=%s\n", token)
	}

	if *emitEvery > 0 {
		go srv.Emit(ctx, gen, *emitEvery)
	}

	logger.WithFields(logrus.Fields{
		"addr":   *addr,
		"auth":   *secret != "",
		"redis":  *redisAddr != "",
		"seeded": *seedCount,
	}).Info("devserver listening")

	return srv.ListenAndServe(ctx, *addr)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
