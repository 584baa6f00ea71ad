package config

import (
	"time"

	"github.com/spf13/pflag"
)

// WatchConfig holds configuration for the block watcher.
type WatchConfig struct {
	RPCURL       string
	Pools        []string
	Out          string
	PGDSN        string
	Digits       int
	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration
	Concurrency  int
	LogLevel     string
}

// LoadWatch merges config file, environment variables, and flags into WatchConfig.
func LoadWatch(cfgFile string, flags *pflag.FlagSet) (WatchConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"out":           "./data/quotes.jsonl",
		"digits":        DefaultDigits,
		"max-retries":   DefaultMaxRetries,
		"retry-backoff": DefaultRetryBackoff,
		"poll-interval": 12 * time.Second,
		"concurrency":   4,
	})
	if err != nil {
		return WatchConfig{}, err
	}

	return WatchConfig{
		RPCURL:       v.GetString("rpc"),
		Pools:        getStringSlice(v, "pool"),
		Out:          v.GetString("out"),
		PGDSN:        v.GetString("pg-dsn"),
		Digits:       v.GetInt("digits"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		PollInterval: v.GetDuration("poll-interval"),
		Concurrency:  v.GetInt("concurrency"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}
