package scan

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type fakeLogSource struct {
	latest   uint64
	logs     []types.Log
	failures int
	calls    []BlockRange
}

func (f *fakeLogSource) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeLogSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("rate limited")
	}
	f.calls = append(f.calls, BlockRange{From: from, To: to})
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			out = append(out, log)
		}
	}
	return out, nil
}

func testLog(block uint64, index uint) types.Log {
	return types.Log{BlockNumber: block, Index: index, TxHash: common.BigToHash(common.Big1)}
}

func testRunConfig() RunConfig {
	return RunConfig{
		Name:         "test",
		FromBlock:    10,
		Addresses:    []common.Address{common.HexToAddress("0x1")},
		BatchSize:    5,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

func TestRunnerBatchesToLatest(t *testing.T) {
	source := &fakeLogSource{
		latest: 21,
		logs:   []types.Log{testLog(11, 0), testLog(16, 1), testLog(21, 2)},
	}
	var handled []BlockRange
	count := 0
	handler := func(_ context.Context, r BlockRange, logs []types.Log) error {
		handled = append(handled, r)
		count += len(logs)
		return nil
	}

	if err := NewRunner(testRunConfig(), source, handler, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []BlockRange{{From: 10, To: 14}, {From: 15, To: 19}, {From: 20, To: 21}}
	if !reflect.DeepEqual(handled, want) {
		t.Fatalf("ranges mismatch: %+v", handled)
	}
	if count != 3 {
		t.Fatalf("logs handled = %d", count)
	}
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	cp := NewFileCheckpoint(filepath.Join(t.TempDir(), "cp.json"), "test", true)
	if err := cp.Save(ctx, 14); err != nil {
		t.Fatalf("save: %v", err)
	}
	source := &fakeLogSource{latest: 19}
	handler := func(context.Context, BlockRange, []types.Log) error { return nil }

	if err := NewRunner(testRunConfig(), source, handler, cp, nil).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !reflect.DeepEqual(source.calls, []BlockRange{{From: 15, To: 19}}) {
		t.Fatalf("calls mismatch: %+v", source.calls)
	}
	last, ok, err := cp.Load(ctx)
	if err != nil || !ok || last != 19 {
		t.Fatalf("checkpoint = %d %v %v", last, ok, err)
	}
}

func TestRunnerRetriesFilterLogs(t *testing.T) {
	source := &fakeLogSource{latest: 12, failures: 2}
	handler := func(context.Context, BlockRange, []types.Log) error { return nil }
	if err := NewRunner(testRunConfig(), source, handler, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(source.calls) != 1 {
		t.Fatalf("calls = %d", len(source.calls))
	}
}

func TestRunnerGivesUpAfterRetries(t *testing.T) {
	source := &fakeLogSource{latest: 12, failures: 10}
	handler := func(context.Context, BlockRange, []types.Log) error { return nil }
	if err := NewRunner(testRunConfig(), source, handler, nil, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error after retries exhausted")
	}
}

func TestRunnerDedupesAndDropsRemoved(t *testing.T) {
	removed := testLog(11, 5)
	removed.Removed = true
	source := &fakeLogSource{
		latest: 11,
		logs:   []types.Log{testLog(11, 0), testLog(11, 0), removed},
	}
	count := 0
	handler := func(_ context.Context, _ BlockRange, logs []types.Log) error {
		count += len(logs)
		return nil
	}
	if err := NewRunner(testRunConfig(), source, handler, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if count != 1 {
		t.Fatalf("logs handled = %d, want 1", count)
	}
}

func TestRunnerHandlerErrorSkipsCheckpoint(t *testing.T) {
	ctx := context.Background()
	cp := NewFileCheckpoint(filepath.Join(t.TempDir(), "cp.json"), "test", true)
	source := &fakeLogSource{latest: 12}
	handler := func(context.Context, BlockRange, []types.Log) error { return errors.New("sink down") }

	if err := NewRunner(testRunConfig(), source, handler, cp, nil).Run(ctx); err == nil {
		t.Fatalf("expected handler error")
	}
	if _, ok, _ := cp.Load(ctx); ok {
		t.Fatalf("checkpoint should not be saved after handler failure")
	}
}

func TestRunnerNothingToSync(t *testing.T) {
	cfg := testRunConfig()
	cfg.FromBlock = 30
	cfg.ToBlock = 20
	source := &fakeLogSource{}
	handler := func(context.Context, BlockRange, []types.Log) error {
		t.Fatalf("handler should not run")
		return nil
	}
	if err := NewRunner(cfg, source, handler, nil, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunnerValidatesConfig(t *testing.T) {
	handler := func(context.Context, BlockRange, []types.Log) error { return nil }
	cfg := testRunConfig()
	cfg.Addresses = nil
	if err := NewRunner(cfg, &fakeLogSource{}, handler, nil, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error without addresses")
	}
	cfg = testRunConfig()
	cfg.BatchSize = 0
	if err := NewRunner(cfg, &fakeLogSource{}, handler, nil, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
	if err := NewRunner(testRunConfig(), &fakeLogSource{}, nil, nil, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error for nil handler")
	}
}
