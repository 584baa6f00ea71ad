package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"uniquote/internal/model"
	"uniquote/internal/price"
)

// ErrNoQuoter is returned by QuoteSwap when no quoter contract is configured.
var ErrNoQuoter = errors.New("quoter not configured")

// QuoteSwap simulates selling a human readable amount of tokenIn for tokenOut
// through the pool with the given fee tier.
func (s *Service) QuoteSwap(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amount string) (model.SwapQuote, error) {
	if s.quoter == nil {
		return model.SwapQuote{}, ErrNoQuoter
	}

	in := s.source.Token(ctx, tokenIn)
	out := s.source.Token(ctx, tokenOut)
	if in.Decimals == nil {
		return model.SwapQuote{}, fmt.Errorf("%w: decimals of %s unknown", price.ErrInvalidPriceState, tokenIn.Hex())
	}
	if out.Decimals == nil {
		return model.SwapQuote{}, fmt.Errorf("%w: decimals of %s unknown", price.ErrInvalidPriceState, tokenOut.Hex())
	}

	amountIn, err := price.FromReadableAmount(amount, *in.Decimals)
	if err != nil {
		return model.SwapQuote{}, err
	}
	amountOut, err := s.quoter.QuoteExactInputSingle(ctx, tokenIn, tokenOut, fee, amountIn)
	if err != nil {
		return model.SwapQuote{}, fmt.Errorf("quote %s -> %s: %w", in.DisplayName(), out.DisplayName(), err)
	}

	s.logger.Debug("swap quoted",
		zap.String("token_in", in.DisplayName()),
		zap.String("token_out", out.DisplayName()),
		zap.Uint32("fee", fee),
		zap.String("amount_in", amountIn.String()),
		zap.String("amount_out", amountOut.String()),
	)

	return model.SwapQuote{
		Quoter:       s.quoter.Address().Hex(),
		TokenIn:      in.Address,
		TokenOut:     out.Address,
		Fee:          fee,
		AmountIn:     price.ToReadableAmount(amountIn, *in.Decimals),
		AmountOut:    price.ToReadableAmount(amountOut, *out.Decimals),
		AmountInRaw:  amountIn.String(),
		AmountOutRaw: amountOut.String(),
	}, nil
}
