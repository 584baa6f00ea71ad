package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"uniquote/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	sink := NewJsonlStorage(path)
	ctx := context.Background()

	if err := sink.PutQuotes(ctx, []model.Quote{{Pool: "0x1", Price0To1: "2500"}}); err != nil {
		t.Fatalf("put quotes: %v", err)
	}
	if err := sink.PutPools(ctx, []model.Pool{{Address: "0x2", Fee: 500}}); err != nil {
		t.Fatalf("put pools: %v", err)
	}
	if err := sink.PutPricePoints(ctx, nil); err != nil {
		t.Fatalf("put empty batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0]["price0to1"] != "2500" {
		t.Fatalf("quote line mismatch: %v", lines[0])
	}
	if lines[1]["fee"] != float64(500) {
		t.Fatalf("pool line mismatch: %v", lines[1])
	}
}
