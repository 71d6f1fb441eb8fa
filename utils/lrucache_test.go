package utils

import (
	"testing"
	"time"
)

var cacheEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func Test_LRUCache_AddThenGet_ReturnsValue(t *testing.T) {
	cache := NewLRUCache[string, string](2, time.Minute, NewMockTimeProvider(cacheEpoch))
	cache.Add("a", "1")
	value, ok := cache.Get("a")
	if !ok || value != "1" {
		t.Errorf("expected 1, got %v (found %v)", value, ok)
	}
}

func Test_LRUCache_OverCapacity_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewLRUCache[string, int](2, time.Minute, NewMockTimeProvider(cacheEpoch))
	cache.Add("a", 1)
	cache.Add("b", 2)
	cache.Get("a")
	cache.Add("c", 3)
	if _, ok := cache.Get("b"); ok {
		t.Errorf("expected b to be evicted")
	}
	if _, ok := cache.Get("a"); !ok {
		t.Errorf("expected a to be kept")
	}
	if cache.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", cache.Len())
	}
}

func Test_LRUCache_ExpiredEntry_ReturnsNotFound(t *testing.T) {
	clock := NewMockTimeProvider(cacheEpoch)
	cache := NewLRUCache[string, int](2, time.Minute, clock)
	cache.Add("a", 1)
	clock.Advance(59 * time.Second)
	if _, ok := cache.Get("a"); !ok {
		t.Errorf("expected entry to be alive")
	}
	clock.Advance(time.Second)
	if _, ok := cache.Get("a"); ok {
		t.Errorf("expected entry to expire")
	}
	if cache.Len() != 0 {
		t.Errorf("expected expired entry to be dropped")
	}
}

func Test_LRUCache_GetOrAdd_CreatesOnce(t *testing.T) {
	cache := NewLRUCache[string, int](2, time.Minute, NewMockTimeProvider(cacheEpoch))
	calls := 0
	create := func() int {
		calls++
		return calls
	}
	first := cache.GetOrAdd("a", create)
	second := cache.GetOrAdd("a", create)
	if first != 1 || second != 1 || calls != 1 {
		t.Errorf("expected one creation, got first=%d second=%d calls=%d", first, second, calls)
	}
}

func Test_LRUCache_Remove_DropsEntry(t *testing.T) {
	cache := NewLRUCache[string, int](2, time.Minute, NewMockTimeProvider(cacheEpoch))
	cache.Add("a", 1)
	if !cache.Remove("a") {
		t.Errorf("expected a to be removed")
	}
	if cache.Remove("a") {
		t.Errorf("expected false for missing key")
	}
}
