package lock

import (
	"sync"
	"testing"
	"time"
)

func TestStripedSerializesSameKey(t *testing.T) {
	s := NewStriped(DefaultStripes)

	var (
		wg      sync.WaitGroup
		counter int
	)

	const iterations = 1000

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range iterations {
				unlock := s.Lock("hot-key")
				counter++
				unlock()
			}
		}()
	}

	wg.Wait()

	if counter != 8*iterations {
		t.Fatalf("want %d, got %d", 8*iterations, counter)
	}
}

func TestStripedDefaultsWhenNonPositive(t *testing.T) {
	s := NewStriped(0)
	if len(s.mus) != DefaultStripes {
		t.Fatalf("want %d stripes, got %d", DefaultStripes, len(s.mus))
	}
}

func TestStripedDistinctKeysCanRunConcurrently(t *testing.T) {
	s := NewStriped(64)

	unlockA := s.Lock("a")
	defer unlockA()

	done := make(chan struct{})

	go func() {
		unlockB := s.Lock("b")
		defer unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on distinct key blocked unexpectedly")
	}
}
