package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fgcbrasil/fgcbrasil/gateway/internal/config"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/identity"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/profile"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/session"
	"github.com/fgcbrasil/fgcbrasil/gateway/internal/sessions"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/logger"
	"github.com/fgcbrasil/fgcbrasil/gateway/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// profileFeed builds the live profile feed selected by PROFILE_FEED.
func profileFeed(cfg *config.Config, rdb *redis.Client, mdb *mongo.Database) (profile.Feed, error) {
	switch cfg.Feed.Kind {
	case "mongo":
		if mdb == nil {
			return nil, fmt.Errorf("profile feed: MongoDB is not available")
		}
		logger.Infof("profiles: Mongo change streams on %s", cfg.MongoDB.ProfileCollection)
		return profile.NewMongoFeed(mdb.Collection(cfg.MongoDB.ProfileCollection)), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("profile feed: Redis is not available")
		}
		logger.Infof("profiles: Redis mirror (run feedbridge next to the database)")
		return profile.NewRedisFeed(rdb, ""), nil
	default:
		logger.Warnf("profiles: in-process feed, nothing outside this process can update it")
		return profile.NewMemoryFeed(), nil
	}
}

// sessionRepository prefers Redis, then Mongo, then process memory.
func sessionRepository(ctx context.Context, rdb *redis.Client, mdb *mongo.Database, collection string) sessions.Repository {
	if rdb != nil {
		logger.Infof("Using Redis for session storage")
		return sessions.NewRedisRepository(rdb, "session:")
	}
	if mdb != nil {
		repo := sessions.NewMongoRepository(mdb.Collection(collection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warnf("session indexes: %v", err)
		}
		logger.Infof("Using MongoDB for session storage")
		return repo
	}
	logger.Warnf("Using process memory for session storage; sessions end on restart")
	return sessions.NewMemoryRepository()
}

func markerStore(rdb *redis.Client) sessions.MarkerStore {
	if rdb != nil {
		return sessions.NewRedisMarkers(rdb)
	}
	return sessions.NewMemoryMarkers()
}

// identityClients returns the factory of per-session auth clients. The
// error reports a verifier that could not be set up; the factory is usable
// anyway and then trusts the provider's responses.
func identityClients(ctx context.Context, cfg config.AuthConfig) (func() session.Client, error) {
	var verifier identity.TokenVerifier
	var verr error
	if cfg.AllowInsecure {
		logger.Warn("enabling insecure ID token verifier (integration mode)")
		verifier = identity.NewInsecureVerifier()
	} else if v, err := identity.NewOIDCVerifier(ctx, cfg.Issuer(), cfg.ProjectID); err != nil {
		verr = fmt.Errorf("failed to initialize OIDC verifier: %w", err)
	} else {
		verifier = v
	}

	return func() session.Client {
		return identity.NewClient(identity.ClientConfig{
			APIKey:      cfg.APIKey,
			IdentityURL: cfg.IdentityURL,
			TokenURL:    cfg.TokenURL,
			RefreshSkew: cfg.TokenRefreshSkew,
			Verifier:    verifier,
		})
	}, verr
}

// sessionChain is the middleware in front of every session-aware route.
// The per-IP limiter comes first: resolving an unknown session id may
// reach the persisted store and the auth provider.
func sessionChain(cfg *config.Config, rdb *redis.Client, reg middleware.Sessions) []gin.HandlerFunc {
	var chain []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			chain = append(chain, middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			chain = append(chain, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}
	return append(chain, middleware.SessionMiddleware(reg, cfg.Session))
}
