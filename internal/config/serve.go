package config

import (
	"time"

	"github.com/spf13/pflag"
)

// ServeConfig holds configuration for the HTTP server.
type ServeConfig struct {
	RPCURL         string
	Listen         string
	Pool           string
	Base           string
	Digits         int
	RequestTimeout time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheTTL       time.Duration
	Watch          bool
	MaxRetries     int
	RetryBackoff   time.Duration
	PollInterval   time.Duration
	LogLevel       string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"listen":          DefaultListen,
		"digits":          DefaultDigits,
		"request-timeout": 10 * time.Second,
		"cache-ttl":       DefaultCacheTTL,
		"max-retries":     DefaultMaxRetries,
		"retry-backoff":   DefaultRetryBackoff,
		"poll-interval":   12 * time.Second,
	})
	if err != nil {
		return ServeConfig{}, err
	}

	return ServeConfig{
		RPCURL:         v.GetString("rpc"),
		Listen:         v.GetString("listen"),
		Pool:           v.GetString("pool"),
		Base:           v.GetString("base"),
		Digits:         v.GetInt("digits"),
		RequestTimeout: v.GetDuration("request-timeout"),
		RedisAddr:      v.GetString("redis-addr"),
		RedisPassword:  v.GetString("redis-password"),
		RedisDB:        v.GetInt("redis-db"),
		CacheTTL:       v.GetDuration("cache-ttl"),
		Watch:          v.GetBool("watch"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		PollInterval:   v.GetDuration("poll-interval"),
		LogLevel:       v.GetString("log-level"),
	}, nil
}
