package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "UNIQUOTE"

// Uniswap V3 mainnet deployments.
const (
	DefaultFactory     = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
	DefaultQuoter      = "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6"
	DefaultSubgraphURL = "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3"
)

// Shared defaults.
const (
	DefaultDigits       = 6
	DefaultFee          = 3000
	DefaultBatchSize    = 2000
	DefaultMaxRetries   = 5
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultListen       = ":8080"
	DefaultCacheTTL     = 12 * time.Second
)

// load merges config file, environment variables, and flags. Keys use the
// flag names; UNIQUOTE_BATCH_SIZE maps to batch-size.
func load(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func getUint8(v *viper.Viper, key string) (uint8, error) {
	val := v.GetUint64(key)
	if val > 255 {
		return 0, fmt.Errorf("%s must be between 0 and 255, got %d", key, val)
	}
	return uint8(val), nil
}

func getUint32(v *viper.Viper, key string) (uint32, error) {
	val := v.GetUint64(key)
	if val > 1<<32-1 {
		return 0, fmt.Errorf("%s out of range: %d", key, val)
	}
	return uint32(val), nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	// pflag renders string slices as "[a,b]".
	input = strings.TrimSuffix(strings.TrimPrefix(input, "["), "]")
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// RedactDSN hides the password of a Postgres DSN for logging.
func RedactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}
