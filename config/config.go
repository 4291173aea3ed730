package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling and env var binding.
type Config struct {
	HTTPPort       string `mapstructure:"HTTP_PORT"`
	FrontendOrigin string `mapstructure:"FRONTEND_ORIGIN"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogPretty      bool   `mapstructure:"LOG_PRETTY"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Identity provider (Cognito-style hosted OAuth2/OIDC).
	ProviderRegion    string `mapstructure:"PROVIDER_REGION"`
	ProviderUserPool  string `mapstructure:"PROVIDER_USER_POOL_ID"`
	ProviderClientID  string `mapstructure:"PROVIDER_CLIENT_ID"`
	ProviderSecret    string `mapstructure:"PROVIDER_CLIENT_SECRET"`
	ProviderDomain    string `mapstructure:"PROVIDER_DOMAIN"`
	ProviderScope     string `mapstructure:"PROVIDER_SCOPE"`
	RedirectURI       string `mapstructure:"REDIRECT_URI"`
	PostLoginURI      string `mapstructure:"POST_LOGIN_URI"`
	PostLogoutURI     string `mapstructure:"POST_LOGOUT_URI"`
	JWKSRefreshSec    int    `mapstructure:"JWKS_REFRESH_SEC"`
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`
	SessionMaxTTLSec  int    `mapstructure:"SESSION_MAX_TTL_SEC"`

	// Key-value cache backend: "memory" or "redis".
	CacheBackend string `mapstructure:"CACHE_BACKEND"`
	RedisURL     string `mapstructure:"REDIS_URL"`

	// Movie metadata collaborator.
	TMDBAPIKey       string `mapstructure:"TMDB_API_KEY"`
	TMDBBaseURL      string `mapstructure:"TMDB_BASE_URL"`
	MovieCacheTTLSec int    `mapstructure:"MOVIE_CACHE_TTL_SEC"`
}

// Load reads configuration from file, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/reelcritic/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("FRONTEND_ORIGIN", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("DATABASE_URL", "postgres://localhost:5432/reelcritic?sslmode=disable")
	v.SetDefault("PROVIDER_SCOPE", "openid email profile")
	v.SetDefault("POST_LOGIN_URI", "/")
	v.SetDefault("JWKS_REFRESH_SEC", 3600)
	v.SetDefault("SESSION_COOKIE_NAME", "app_session")
	v.SetDefault("SESSION_MAX_TTL_SEC", 3600)
	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("TMDB_BASE_URL", "https://api.themoviedb.org/3")
	v.SetDefault("MOVIE_CACHE_TTL_SEC", 300)

	// AutomaticEnv alone does not register keys for Unmarshal; every key must
	// be bound explicitly or it comes back empty when set only via env.
	for _, key := range []string{
		"HTTP_PORT", "FRONTEND_ORIGIN", "LOG_LEVEL", "LOG_PRETTY",
		"DATABASE_URL",
		"PROVIDER_REGION", "PROVIDER_USER_POOL_ID", "PROVIDER_CLIENT_ID",
		"PROVIDER_CLIENT_SECRET", "PROVIDER_DOMAIN", "PROVIDER_SCOPE",
		"REDIRECT_URI", "POST_LOGIN_URI", "POST_LOGOUT_URI",
		"JWKS_REFRESH_SEC", "SESSION_COOKIE_NAME", "SESSION_MAX_TTL_SEC",
		"CACHE_BACKEND", "REDIS_URL",
		"TMDB_API_KEY", "TMDB_BASE_URL", "MOVIE_CACHE_TTL_SEC",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env key %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, env vars and defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

// ProviderConfigured reports whether the settings needed to run the hosted
// login flow are all present.
func (c *Config) ProviderConfigured() bool {
	return c.ProviderRegion != "" &&
		c.ProviderUserPool != "" &&
		c.ProviderClientID != "" &&
		c.ProviderDomain != "" &&
		c.RedirectURI != ""
}

// IssuerURL returns the provider issuer as embedded in identity tokens.
func (c *Config) IssuerURL() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.ProviderRegion, c.ProviderUserPool)
}

// JWKSURL returns the provider's well-known signing key set endpoint.
func (c *Config) JWKSURL() string {
	return c.IssuerURL() + "/.well-known/jwks.json"
}

// AuthorizeURL returns the hosted authorization endpoint.
func (c *Config) AuthorizeURL() string {
	return "https://" + c.ProviderDomain + "/oauth2/authorize"
}

// TokenURL returns the hosted token endpoint.
func (c *Config) TokenURL() string {
	return "https://" + c.ProviderDomain + "/oauth2/token"
}

// LogoutURL returns the hosted logout endpoint, redirecting back to the
// configured post-logout URI.
func (c *Config) LogoutURL() string {
	q := url.Values{}
	q.Set("client_id", c.ProviderClientID)
	q.Set("logout_uri", c.PostLogoutURI)
	return "https://" + c.ProviderDomain + "/logout?" + q.Encode()
}

// Scopes splits the configured space-separated scope string.
func (c *Config) Scopes() []string {
	return strings.Fields(c.ProviderScope)
}
