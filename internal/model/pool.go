package model

// Pool represents a discovered V3 pool.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	Symbol0        string `json:"symbol0,omitempty"`
	Symbol1        string `json:"symbol1,omitempty"`
	Decimals0      *uint8 `json:"decimals0,omitempty"`
	Decimals1      *uint8 `json:"decimals1,omitempty"`
	Fee            uint32 `json:"fee"`
	TickSpacing    int32  `json:"tick_spacing"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
	Source         string `json:"source"`
}

const (
	PoolSourceFactory  = "factory"
	PoolSourceSubgraph = "subgraph"
)
