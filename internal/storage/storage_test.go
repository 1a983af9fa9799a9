package storage

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestFileStorageSaveLoadRoundTrip(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.Save(ctx, "node1", map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	data, found, err := s.Load(ctx, "node1")
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	var got map[string]int
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got["a"] != 1 {
		t.Errorf("got %v", got)
	}
}

func TestFileStorageLoadMissingKey(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, found, err := s.Load(context.Background(), "missing")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestFileStorageOverwritesAtomically(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Save(ctx, "k", i); err != nil {
			t.Fatal(err)
		}
	}
	data, found, err := s.Load(ctx, "k")
	if err != nil || !found {
		t.Fatal(err)
	}
	var got int
	_ = json.Unmarshal(data, &got)
	if got != 4 {
		t.Errorf("got %d, want 4", got)
	}
}

// fakeStorage is an in-memory Storage used to observe write coalescing
// without touching the filesystem.
type fakeStorage struct {
	mu     sync.Mutex
	writes int
	values map[string]any
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{values: make(map[string]any)}
}

func (f *fakeStorage) Save(_ context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.values[key] = value
	return nil
}

func (f *fakeStorage) Load(_ context.Context, key string) (json.RawMessage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	if !ok {
		return nil, false, nil
	}
	data, _ := json.Marshal(v)
	return data, true, nil
}

func (f *fakeStorage) Close() error { return nil }

func TestThrottledCoalescesRapidSaves(t *testing.T) {
	fake := newFakeStorage()
	th := NewThrottled(fake, 20*time.Millisecond, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := th.Save(ctx, "k", i); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(60 * time.Millisecond)

	fake.mu.Lock()
	writes := fake.writes
	last := fake.values["k"]
	fake.mu.Unlock()

	if writes == 0 {
		t.Fatal("expected at least one write")
	}
	if writes >= 10 {
		t.Errorf("expected coalescing, got %d writes for 10 saves", writes)
	}
	if last != 9 {
		t.Errorf("expected latest value 9, got %v", last)
	}
}

func TestThrottledLoadBypassesCoalescing(t *testing.T) {
	fake := newFakeStorage()
	th := NewThrottled(fake, time.Hour, nil)
	ctx := context.Background()
	_ = fake.Save(ctx, "k", "direct")

	data, found, err := th.Load(ctx, "k")
	if err != nil || !found {
		t.Fatal(err)
	}
	var s string
	_ = json.Unmarshal(data, &s)
	if s != "direct" {
		t.Errorf("got %q", s)
	}
}
