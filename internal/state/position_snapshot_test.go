package state

import (
	"context"
	"sync"
	"testing"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Close() error { return nil }

func TestPositionSnapshotRoundTrip(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	snapshot := PositionSnapshot{
		Pair:           "jup/sol",
		Address:        "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		LowerBinID:     -120,
		UpperBinID:     -80,
		BaseRawAmount:  1_000_000,
		QuoteRawAmount: 2_500_000,
		OraclePrice:    0.0042,
		UpdatedAtMS:    1700000000000,
	}
	if err := SavePositionSnapshot(ctx, store, snapshot); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	loaded, ok, err := LoadPositionSnapshot(ctx, store, "jup/sol")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to exist")
	}
	if loaded != snapshot {
		t.Fatalf("expected %+v, got %+v", snapshot, loaded)
	}
}

func TestPositionSnapshotCleared(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	if err := SavePositionSnapshot(ctx, store, PositionSnapshot{Pair: "met/usdc"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ClearPositionSnapshot(ctx, store, "met/usdc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := LoadPositionSnapshot(ctx, store, "met/usdc"); ok {
		t.Fatalf("expected snapshot to be cleared")
	}
}

func TestPositionSnapshotNilStore(t *testing.T) {
	ctx := context.Background()
	if err := SavePositionSnapshot(ctx, nil, PositionSnapshot{Pair: "jup/sol"}); err != nil {
		t.Fatalf("expected nil store save to be a no-op, got %v", err)
	}
	if _, ok, err := LoadPositionSnapshot(ctx, nil, "jup/sol"); ok || err != nil {
		t.Fatalf("expected nil store load to return not found")
	}
}
