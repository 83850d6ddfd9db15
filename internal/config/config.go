package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the gateway configuration
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Backend   BackendConfig
	Feed      FeedConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Streamers []Streamer
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
	ReadTimeout time.Duration
	// AllowedOrigins may call the gateway with credentials from a browser.
	AllowedOrigins []string
}

// AuthConfig points at the identity-toolkit compatible auth provider.
type AuthConfig struct {
	APIKey           string
	IdentityURL      string
	TokenURL         string
	ProjectID        string
	AllowInsecure    bool
	TokenRefreshSkew time.Duration
}

// Issuer returns the OIDC issuer of the provider's ID tokens.
func (a AuthConfig) Issuer() string {
	return "https://securetoken.google.com/" + a.ProjectID
}

type BackendConfig struct {
	URL     string
	Timeout time.Duration
}

// FeedConfig selects the live profile feed transport: "mongo", "redis" or "memory".
type FeedConfig struct {
	Kind string
}

type MongoDBConfig struct {
	URI               string
	Database          string
	ProfileCollection string
	SessionCollection string
	Timeout           time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type SessionConfig struct {
	TTL          time.Duration
	IdleTTL      time.Duration
	CookieName   string
	CookieSecure bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// Streamer is one entry of the fan-only streamers page.
type Streamer struct {
	ID        string   `mapstructure:"id" json:"id"`
	Name      string   `mapstructure:"nome" json:"nome"`
	Image     string   `mapstructure:"img" json:"img"`
	Games     []string `mapstructure:"games" json:"games"`
	Twitch    string   `mapstructure:"twitch" json:"twitch"`
	Instagram string   `mapstructure:"insta" json:"insta"`
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_IDENTITY_URL", "https://identitytoolkit.googleapis.com")
	v.SetDefault("AUTH_TOKEN_URL", "https://securetoken.googleapis.com")
	v.SetDefault("AUTH_TOKEN_REFRESH_SKEW", 60)
	v.SetDefault("BACKEND_URL", "http://localhost:3001")
	v.SetDefault("BACKEND_TIMEOUT", 15)
	v.SetDefault("PROFILE_FEED", "")
	v.SetDefault("MONGODB_DATABASE", "fgcbrasil")
	v.SetDefault("MONGODB_PROFILE_COLLECTION", "users")
	v.SetDefault("MONGODB_SESSION_COLLECTION", "sessions")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL", 10080)
	v.SetDefault("SESSION_IDLE_TTL", 30)
	v.SetDefault("SESSION_COOKIE_NAME", "fgc_session")
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Host:           v.GetString("SERVER_HOST"),
			Environment:    v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:    30 * time.Second,
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Auth: AuthConfig{
			APIKey:           os.Getenv("AUTH_API_KEY"),
			IdentityURL:      strings.TrimRight(v.GetString("AUTH_IDENTITY_URL"), "/"),
			TokenURL:         strings.TrimRight(v.GetString("AUTH_TOKEN_URL"), "/"),
			ProjectID:        v.GetString("AUTH_PROJECT_ID"),
			AllowInsecure:    strings.EqualFold(strings.TrimSpace(v.GetString("ALLOW_INSECURE_TOKEN")), "true"),
			TokenRefreshSkew: time.Duration(v.GetInt("AUTH_TOKEN_REFRESH_SKEW")) * time.Second,
		},
		Backend: BackendConfig{
			URL:     strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
			Timeout: time.Duration(v.GetInt("BACKEND_TIMEOUT")) * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:               v.GetString("MONGODB_URI"),
			Database:          v.GetString("MONGODB_DATABASE"),
			ProfileCollection: v.GetString("MONGODB_PROFILE_COLLECTION"),
			SessionCollection: v.GetString("MONGODB_SESSION_COLLECTION"),
			Timeout:           time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Session: SessionConfig{
			TTL:          time.Duration(v.GetInt("SESSION_TTL")) * time.Minute,
			IdleTTL:      time.Duration(v.GetInt("SESSION_IDLE_TTL")) * time.Minute,
			CookieName:   v.GetString("SESSION_COOKIE_NAME"),
			CookieSecure: v.GetBool("SESSION_COOKIE_SECURE"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}
	cfg.Feed.Kind = resolveFeedKind(v.GetString("PROFILE_FEED"), cfg)

	if path := v.GetString("STREAMERS_FILE"); path != "" {
		streamers, err := LoadStreamers(path)
		if err != nil {
			return nil, err
		}
		cfg.Streamers = streamers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolveFeedKind picks the profile feed: explicit setting first, then Mongo,
// then Redis, and the in-process feed when neither store is configured.
func resolveFeedKind(explicit string, cfg *Config) string {
	if k := strings.ToLower(strings.TrimSpace(explicit)); k != "" {
		return k
	}
	if cfg.MongoDB.URI != "" {
		return "mongo"
	}
	if cfg.Redis.Host != "" {
		return "redis"
	}
	return "memory"
}

// Validate reports configuration that would make the gateway unusable.
func (c *Config) Validate() error {
	var missing []string
	if c.Auth.APIKey == "" {
		missing = append(missing, "AUTH_API_KEY")
	}
	if c.Auth.ProjectID == "" && !c.Auth.AllowInsecure {
		missing = append(missing, "AUTH_PROJECT_ID")
	}
	switch c.Feed.Kind {
	case "mongo":
		if c.MongoDB.URI == "" {
			missing = append(missing, "MONGODB_URI")
		}
	case "redis":
		if c.Redis.Host == "" {
			missing = append(missing, "REDIS_HOST")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported PROFILE_FEED %q (want mongo, redis or memory)", c.Feed.Kind)
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

// LoadStreamers reads the streamers list (key "streamers") from a YAML or JSON file.
func LoadStreamers(path string) ([]Streamer, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read streamers file: %w", err)
	}
	var out []Streamer
	if err := v.UnmarshalKey("streamers", &out); err != nil {
		return nil, fmt.Errorf("decode streamers: %w", err)
	}
	return out, nil
}
