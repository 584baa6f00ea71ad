package main

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"uniquote/internal/config"
	"uniquote/internal/price"
)

type priceOutput struct {
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         *int32 `json:"tick,omitempty"`
	Decimals0    uint8  `json:"decimals0"`
	Decimals1    uint8  `json:"decimals1"`
	Price0To1    string `json:"price0to1"`
	Price1To0    string `json:"price1to0"`
}

func newPriceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Compute both rates from sqrtPriceX96 or a tick, offline",
		RunE:  runPrice,
	}
	cmd.Flags().String("sqrt-price-x96", "", "pool sqrtPriceX96 (decimal)")
	cmd.Flags().Int32("tick", 0, "pool tick, used when sqrt-price-x96 is empty")
	cmd.Flags().Uint8("decimals0", 18, "token0 decimals")
	cmd.Flags().Uint8("decimals1", 18, "token1 decimals")
	cmd.Flags().Int("digits", config.DefaultDigits, "significant digits")
	addLogLevelFlag(cmd)
	return cmd
}

func runPrice(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPrice(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	var sqrtPrice *big.Int
	switch {
	case cfg.SqrtPriceX96 != "":
		var ok bool
		sqrtPrice, ok = new(big.Int).SetString(cfg.SqrtPriceX96, 10)
		if !ok {
			return fmt.Errorf("invalid sqrt-price-x96 %q", cfg.SqrtPriceX96)
		}
	case cfg.HasTick:
		sqrtPrice, err = price.SqrtPriceX96AtTick(cfg.Tick)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("sqrt-price-x96 or tick is required")
	}

	p, err := price.ComputePrice(price.NewPoolPriceState(sqrtPrice, cfg.Decimals0, cfg.Decimals1))
	if err != nil {
		return err
	}
	p0, p1 := p.Format(cfg.Digits)
	out := priceOutput{
		SqrtPriceX96: sqrtPrice.String(),
		Decimals0:    cfg.Decimals0,
		Decimals1:    cfg.Decimals1,
		Price0To1:    p0,
		Price1To0:    p1,
	}
	// The tick is undefined at or above MaxSqrtRatio.
	if tick, err := price.TickAtSqrtPriceX96(sqrtPrice); err == nil {
		out.Tick = &tick
	}
	return writeJSON(cmd, out)
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
