// Command feedbridge mirrors the Mongo users collection into Redis so portal
// gateways can follow profile changes with the Redis feed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/database"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type options struct {
	mongoURI      string
	database      string
	collection    string
	redisAddr     string
	redisPassword string
	prefix        string
	once          bool
	timeout       time.Duration
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newRootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "feedbridge",
		Short: "Mirror player profiles from MongoDB into Redis",
		Long: `Copies every document of the users collection into Redis and then
follows the collection's change stream, publishing each change on
profile:<uid>:changed for the gateways' Redis profile feed.

Examples:
  # one-shot copy
  feedbridge --once

  # copy and follow (needs a replica set)
  feedbridge --mongo-uri mongodb://mongo:27017/?replicaSet=rs0 --redis-addr redis:6379
`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.mongoURI, "mongo-uri", os.Getenv("MONGODB_URI"), "MongoDB connection string")
	f.StringVar(&o.database, "database", envOr("MONGODB_DATABASE", "fgcbrasil"), "database holding the profiles")
	f.StringVar(&o.collection, "collection", envOr("MONGODB_PROFILE_COLLECTION", "users"), "profile collection")
	f.StringVar(&o.redisAddr, "redis-addr", redisAddrFromEnv(), "Redis host:port")
	f.StringVar(&o.redisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "Redis password")
	f.StringVar(&o.prefix, "prefix", "", "Redis key prefix (default profile:)")
	f.BoolVar(&o.once, "once", false, "copy once and exit instead of following changes")
	f.DurationVar(&o.timeout, "timeout", 10*time.Second, "MongoDB connect timeout")
	return cmd
}

func redisAddrFromEnv() string {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return ""
	}
	return host + ":" + envOr("REDIS_PORT", "6379")
}

func (o *options) validate() error {
	if o.mongoURI == "" {
		return fmt.Errorf("--mongo-uri (or MONGODB_URI) is required")
	}
	if o.redisAddr == "" {
		return fmt.Errorf("--redis-addr (or REDIS_HOST) is required")
	}
	return nil
}

func run(ctx context.Context, o *options) error {
	if err := o.validate(); err != nil {
		return err
	}
	client, err := database.ConnectWithRetry(ctx, o.mongoURI, o.timeout, database.DefaultRetry)
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	rdb := redis.NewClient(&redis.Options{Addr: o.redisAddr, Password: o.redisPassword})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	bridge := profile.NewBridge(client.Database(o.database).Collection(o.collection), profile.NewRedisPublisher(rdb, o.prefix))
	if o.once {
		n, err := bridge.Sync(ctx)
		if err != nil {
			return err
		}
		logger.Infof("published %d profiles", n)
		return nil
	}
	logger.Infof("following %s.%s into %s", o.database, o.collection, o.redisAddr)
	return bridge.Run(ctx)
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
