package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestDecodeSwap(t *testing.T) {
	poolABI := mustABI(t, V3PoolABI)
	event := poolABI.Events["Swap"]

	sqrtPrice, _ := new(big.Int).SetString("1350174849792634181862360983626536", 10)
	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(-1000),
		big.NewInt(2000),
		sqrtPrice,
		big.NewInt(987654321),
		big.NewInt(-15),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	recipient := common.HexToAddress("0x3333333333333333333333333333333333333333")
	log := types.Log{
		Address:     testPool,
		BlockNumber: 12345,
		TxHash:      common.HexToHash("0xdef"),
		Index:       7,
		Topics:      []common.Hash{event.ID, common.BytesToHash(sender.Bytes()), common.BytesToHash(recipient.Bytes())},
		Data:        data,
	}

	swap, err := DecodeSwap(log)
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}
	if swap.Amount0.Int64() != -1000 || swap.Amount1.Int64() != 2000 {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.SqrtPriceX96.Cmp(sqrtPrice) != 0 {
		t.Fatalf("sqrt price mismatch: %s", swap.SqrtPriceX96)
	}
	if swap.Tick != -15 {
		t.Fatalf("tick mismatch: %d", swap.Tick)
	}
	if swap.Pool != testPool || swap.BlockNumber != 12345 || swap.LogIndex != 7 {
		t.Fatalf("log fields mismatch: %+v", swap)
	}
}

func TestDecodeSwapBadData(t *testing.T) {
	topic, err := SwapTopic()
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	if _, err := DecodeSwap(types.Log{Topics: []common.Hash{topic}, Data: []byte{0x01}}); err == nil {
		t.Fatalf("expected error for short data")
	}
}
