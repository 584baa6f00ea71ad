package config

import (
	"github.com/spf13/pflag"
)

// PriceConfig holds configuration for the offline price command.
type PriceConfig struct {
	SqrtPriceX96 string
	Tick         int32
	HasTick      bool
	Decimals0    uint8
	Decimals1    uint8
	Digits       int
	LogLevel     string
}

// LoadPrice merges config file, environment variables, and flags into PriceConfig.
func LoadPrice(cfgFile string, flags *pflag.FlagSet) (PriceConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"decimals0": 18,
		"decimals1": 18,
		"digits":    DefaultDigits,
	})
	if err != nil {
		return PriceConfig{}, err
	}

	d0, err := getUint8(v, "decimals0")
	if err != nil {
		return PriceConfig{}, err
	}
	d1, err := getUint8(v, "decimals1")
	if err != nil {
		return PriceConfig{}, err
	}

	return PriceConfig{
		SqrtPriceX96: v.GetString("sqrt-price-x96"),
		Tick:         v.GetInt32("tick"),
		HasTick:      v.IsSet("tick"),
		Decimals0:    d0,
		Decimals1:    d1,
		Digits:       v.GetInt("digits"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

// QuoteConfig holds configuration for a single pool quote.
type QuoteConfig struct {
	RPCURL   string
	Pool     string
	Factory  string
	TokenIn  string
	TokenOut string
	Fee      uint32
	Amount   string
	Quoter   string
	Block    uint64
	Digits   int
	LogLevel string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"factory": DefaultFactory,
		"quoter":  DefaultQuoter,
		"fee":     DefaultFee,
		"digits":  DefaultDigits,
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	fee, err := getUint32(v, "fee")
	if err != nil {
		return QuoteConfig{}, err
	}

	return QuoteConfig{
		RPCURL:   v.GetString("rpc"),
		Pool:     v.GetString("pool"),
		Factory:  v.GetString("factory"),
		TokenIn:  v.GetString("token-in"),
		TokenOut: v.GetString("token-out"),
		Fee:      fee,
		Amount:   v.GetString("amount"),
		Quoter:   v.GetString("quoter"),
		Block:    v.GetUint64("block"),
		Digits:   v.GetInt("digits"),
		LogLevel: v.GetString("log-level"),
	}, nil
}
