package utils

import (
	"sync"
	"testing"
	"time"
)

func Test_KeyedMutex_SameKey_Serialises(t *testing.T) {
	k := NewKeyedMutex()
	unlock := k.Lock("hello")

	acquired := make(chan struct{})
	go func() {
		release := k.Lock("hello")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatalf("expected second lock to block")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("expected second lock to be acquired after unlock")
	}
}

func Test_KeyedMutex_DifferentKeys_DoNotBlock(t *testing.T) {
	k := NewKeyedMutex()
	unlock := k.Lock("a")
	defer unlock()

	done := make(chan struct{})
	go func() {
		k.Lock("b")()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected lock on a different key not to block")
	}
}

func Test_KeyedMutex_AllReleased_DropsEntries(t *testing.T) {
	k := NewKeyedMutex()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("x")()
		}()
	}
	wg.Wait()
	if k.Len() != 0 {
		t.Errorf("expected no entries, got %d", k.Len())
	}
}
