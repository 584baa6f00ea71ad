package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ScanConfig holds the block range and persistence settings shared by the
// log scanning commands.
type ScanConfig struct {
	RPCURL            string
	FromBlock         uint64
	ToBlock           uint64
	BatchSize         uint64
	Out               string
	PGDSN             string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	LogLevel          string
}

// DiscoverConfig holds configuration for pool discovery.
type DiscoverConfig struct {
	ScanConfig
	Factory       string
	FetchTokens   bool
	Subgraph      bool
	SubgraphURL   string
	SubgraphLimit int
}

// HistoryConfig holds configuration for swap price history.
type HistoryConfig struct {
	ScanConfig
	Pool   string
	Digits int
}

func scanDefaults(out, checkpoint string) map[string]interface{} {
	return map[string]interface{}{
		"batch-size":         uint64(DefaultBatchSize),
		"out":                out,
		"checkpoint":         checkpoint,
		"checkpoint-enabled": true,
		"max-retries":        DefaultMaxRetries,
		"retry-backoff":      DefaultRetryBackoff,
	}
}

// LoadDiscover merges config file, environment variables, and flags into DiscoverConfig.
func LoadDiscover(cfgFile string, flags *pflag.FlagSet) (DiscoverConfig, error) {
	defaults := scanDefaults("./data/pools.jsonl", "./data/discover_checkpoint.json")
	defaults["factory"] = DefaultFactory
	defaults["fetch-tokens"] = true
	defaults["subgraph-url"] = DefaultSubgraphURL
	defaults["subgraph-limit"] = 1000

	v, err := load(cfgFile, flags, defaults)
	if err != nil {
		return DiscoverConfig{}, err
	}

	return DiscoverConfig{
		ScanConfig:    readScan(v),
		Factory:       v.GetString("factory"),
		FetchTokens:   v.GetBool("fetch-tokens"),
		Subgraph:      v.GetBool("subgraph"),
		SubgraphURL:   v.GetString("subgraph-url"),
		SubgraphLimit: v.GetInt("subgraph-limit"),
	}, nil
}

// LoadHistory merges config file, environment variables, and flags into HistoryConfig.
func LoadHistory(cfgFile string, flags *pflag.FlagSet) (HistoryConfig, error) {
	defaults := scanDefaults("./data/price_points.jsonl", "./data/history_checkpoint.json")
	defaults["digits"] = DefaultDigits

	v, err := load(cfgFile, flags, defaults)
	if err != nil {
		return HistoryConfig{}, err
	}

	return HistoryConfig{
		ScanConfig: readScan(v),
		Pool:       v.GetString("pool"),
		Digits:     v.GetInt("digits"),
	}, nil
}

func readScan(v *viper.Viper) ScanConfig {
	return ScanConfig{
		RPCURL:            v.GetString("rpc"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		PGDSN:             v.GetString("pg-dsn"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		LogLevel:          v.GetString("log-level"),
	}
}
