package model

import "strings"

// TokenMeta captures ERC20 metadata. Decimals is nil when decimals() failed.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals *uint8 `json:"decimals,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
}

// DisplayName prefers the symbol and falls back to the address.
func (t TokenMeta) DisplayName() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address
}

func sameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
