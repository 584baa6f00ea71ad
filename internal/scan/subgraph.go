package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"uniquote/internal/model"
)

const subgraphPageSize = 1000

const subgraphPoolsQuery = `query pools($first: Int!, $skip: Int!) {
  pools(first: $first, skip: $skip, orderBy: createdAtBlockNumber, orderDirection: asc) {
    id
    feeTier
    createdAtBlockNumber
    token0 { id symbol decimals }
    token1 { id symbol decimals }
  }
}`

// SubgraphClient lists pools from a Uniswap V3 subgraph GraphQL endpoint.
type SubgraphClient struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

func NewSubgraphClient(url string, httpClient *http.Client, logger *zap.Logger) *SubgraphClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubgraphClient{url: url, http: httpClient, logger: logger}
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type subgraphToken struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Decimals string `json:"decimals"`
}

type subgraphPool struct {
	ID                   string        `json:"id"`
	FeeTier              string        `json:"feeTier"`
	CreatedAtBlockNumber string        `json:"createdAtBlockNumber"`
	Token0               subgraphToken `json:"token0"`
	Token1               subgraphToken `json:"token1"`
}

type subgraphPoolsResponse struct {
	Data struct {
		Pools []subgraphPool `json:"pools"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// FetchPools pages through the subgraph until limit pools are collected or
// the subgraph runs out. A limit of zero means one page.
func (c *SubgraphClient) FetchPools(ctx context.Context, chainID uint64, limit int) ([]model.Pool, error) {
	if limit <= 0 {
		limit = subgraphPageSize
	}
	pools := make([]model.Pool, 0, limit)
	for skip := 0; len(pools) < limit; {
		first := subgraphPageSize
		if remaining := limit - len(pools); remaining < first {
			first = remaining
		}
		page, err := c.fetchPage(ctx, first, skip)
		if err != nil {
			return nil, err
		}
		for _, raw := range page {
			pool, err := raw.toPool(chainID)
			if err != nil {
				c.logger.Warn("skip subgraph pool", zap.String("pool", raw.ID), zap.Error(err))
				continue
			}
			pools = append(pools, pool)
		}
		c.logger.Debug("subgraph page", zap.Int("skip", skip), zap.Int("pools", len(page)))
		if len(page) < first {
			break
		}
		skip += len(page)
	}
	return pools, nil
}

func (c *SubgraphClient) fetchPage(ctx context.Context, first, skip int) ([]subgraphPool, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:     subgraphPoolsQuery,
		Variables: map[string]interface{}{"first": first, "skip": skip},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal subgraph query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build subgraph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subgraph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("subgraph status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var decoded subgraphPoolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode subgraph response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("subgraph error: %s", decoded.Errors[0].Message)
	}
	return decoded.Data.Pools, nil
}

func (p subgraphPool) toPool(chainID uint64) (model.Pool, error) {
	address, err := ParseAddress(p.ID)
	if err != nil {
		return model.Pool{}, err
	}
	token0, err := ParseAddress(p.Token0.ID)
	if err != nil {
		return model.Pool{}, fmt.Errorf("token0: %w", err)
	}
	token1, err := ParseAddress(p.Token1.ID)
	if err != nil {
		return model.Pool{}, fmt.Errorf("token1: %w", err)
	}
	fee, err := strconv.ParseUint(p.FeeTier, 10, 32)
	if err != nil {
		return model.Pool{}, fmt.Errorf("fee tier %q: %w", p.FeeTier, err)
	}
	var created uint64
	if p.CreatedAtBlockNumber != "" {
		if created, err = strconv.ParseUint(p.CreatedAtBlockNumber, 10, 64); err != nil {
			return model.Pool{}, fmt.Errorf("created block %q: %w", p.CreatedAtBlockNumber, err)
		}
	}

	return model.Pool{
		ChainID:        chainID,
		Address:        address.Hex(),
		Token0:         token0.Hex(),
		Token1:         token1.Hex(),
		Symbol0:        p.Token0.Symbol,
		Symbol1:        p.Token1.Symbol,
		Decimals0:      parseDecimals(p.Token0.Decimals),
		Decimals1:      parseDecimals(p.Token1.Decimals),
		Fee:            uint32(fee),
		FirstSeenBlock: created,
		Source:         model.PoolSourceSubgraph,
	}, nil
}

// parseDecimals returns nil when the subgraph value is absent or not a uint8.
func parseDecimals(s string) *uint8 {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return nil
	}
	d := uint8(v)
	return &d
}
