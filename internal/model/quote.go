package model

import "fmt"

// Quote is a priced pool snapshot. Big numbers are encoded as strings.
type Quote struct {
	ChainID      uint64    `json:"chain_id,omitempty"`
	Pool         string    `json:"pool"`
	BlockNumber  uint64    `json:"block_number,omitempty"`
	Token0       TokenMeta `json:"token0"`
	Token1       TokenMeta `json:"token1"`
	SqrtPriceX96 string    `json:"sqrt_price_x96"`
	Tick         int32     `json:"tick"`
	Price0To1    string    `json:"price0to1"`
	Price1To0    string    `json:"price1to0"`
	Digits       int       `json:"digits"`
	QuotedAt     string    `json:"quoted_at"`
}

// Label0To1 returns a label such as "1 WETH to DAI".
func (q Quote) Label0To1() string {
	return fmt.Sprintf("1 %s to %s", q.Token0.DisplayName(), q.Token1.DisplayName())
}

// Label1To0 returns the label for the reverse direction.
func (q Quote) Label1To0() string {
	return fmt.Sprintf("1 %s to %s", q.Token1.DisplayName(), q.Token0.DisplayName())
}

// RateFrom returns the label and rate for one unit of the given base token
// (matched by address). ok is false when base is not part of the pool.
func (q Quote) RateFrom(base string) (label string, value string, ok bool) {
	switch {
	case sameAddress(base, q.Token0.Address):
		return q.Label0To1(), q.Price0To1, true
	case sameAddress(base, q.Token1.Address):
		return q.Label1To0(), q.Price1To0, true
	default:
		return "", "", false
	}
}

// SwapQuote is the result of a Quoter exact-input simulation.
type SwapQuote struct {
	Quoter       string `json:"quoter"`
	TokenIn      string `json:"token_in"`
	TokenOut     string `json:"token_out"`
	Fee          uint32 `json:"fee"`
	AmountIn     string `json:"amount_in"`
	AmountOut    string `json:"amount_out"`
	AmountInRaw  string `json:"amount_in_raw"`
	AmountOutRaw string `json:"amount_out_raw"`
}

// PricePoint is the pool price implied by a single Swap event.
type PricePoint struct {
	Pool         string `json:"pool"`
	BlockNumber  uint64 `json:"block_number"`
	TxHash       string `json:"tx_hash"`
	LogIndex     uint64 `json:"log_index"`
	BlockTime    uint64 `json:"block_time,omitempty"`
	SqrtPriceX96 string `json:"sqrt_price_x96"`
	Tick         int32  `json:"tick"`
	Amount0      string `json:"amount0"`
	Amount1      string `json:"amount1"`
	Price0To1    string `json:"price0to1"`
	Price1To0    string `json:"price1to0"`
}
