package scan

import (
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"uniquote/internal/model"
)

// Registry holds discovered pools and tokens. It is owned by the caller and
// passed to whatever needs it; there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	pools  map[common.Address]model.Pool
	tokens map[common.Address]model.TokenMeta
}

func NewRegistry() *Registry {
	return &Registry{
		pools:  make(map[common.Address]model.Pool),
		tokens: make(map[common.Address]model.TokenMeta),
	}
}

// AddPool records a pool and reports whether it was not known before.
// A re-added pool keeps the earliest FirstSeenBlock.
func (r *Registry) AddPool(pool model.Pool) bool {
	addr := common.HexToAddress(pool.Address)
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.pools[addr]
	if ok && existing.FirstSeenBlock != 0 && existing.FirstSeenBlock < pool.FirstSeenBlock {
		pool.FirstSeenBlock = existing.FirstSeenBlock
	}
	r.pools[addr] = pool
	return !ok
}

func (r *Registry) Pool(address common.Address) (model.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.pools[address]
	return pool, ok
}

// Pools returns all pools ordered by first seen block, then address.
func (r *Registry) Pools() []model.Pool {
	r.mu.RLock()
	pools := make([]model.Pool, 0, len(r.pools))
	for _, pool := range r.pools {
		pools = append(pools, pool)
	}
	r.mu.RUnlock()

	sort.Slice(pools, func(i, j int) bool {
		if pools[i].FirstSeenBlock != pools[j].FirstSeenBlock {
			return pools[i].FirstSeenBlock < pools[j].FirstSeenBlock
		}
		return strings.ToLower(pools[i].Address) < strings.ToLower(pools[j].Address)
	})
	return pools
}

// PoolsForPair returns the pools trading tokenA against tokenB in either order.
func (r *Registry) PoolsForPair(tokenA, tokenB common.Address) []model.Pool {
	var out []model.Pool
	for _, pool := range r.Pools() {
		t0, t1 := common.HexToAddress(pool.Token0), common.HexToAddress(pool.Token1)
		if (t0 == tokenA && t1 == tokenB) || (t0 == tokenB && t1 == tokenA) {
			out = append(out, pool)
		}
	}
	return out
}

func (r *Registry) AddToken(token model.TokenMeta) {
	r.mu.Lock()
	r.tokens[common.HexToAddress(token.Address)] = token
	r.mu.Unlock()
}

func (r *Registry) Token(address common.Address) (model.TokenMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[address]
	return token, ok
}

// Tokens returns the number of distinct tokens seen.
func (r *Registry) Tokens() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
