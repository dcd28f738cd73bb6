package session

import (
	"sync"
	"testing"
	"time"
)

func TestSerializer_RunsSynchronously(t *testing.T) {
	s := newSerializer()

	ran := false
	s.Do("session-1", func() { ran = true })
	if !ran {
		t.Fatal("Do must not return before the job has run")
	}
}

func TestSerializer_SameKeyJobsNeverOverlap(t *testing.T) {
	s := newSerializer()

	// A plain int incremented from many goroutines is a data race unless the
	// serializer truly runs them one at a time.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Do("session-1", func() { counter++ })
		}()
	}
	wg.Wait()

	if counter != 200 {
		t.Errorf("Expected 200 serialized increments, got %d", counter)
	}
}

func TestSerializer_DistinctKeysRunIndependently(t *testing.T) {
	s := newSerializer()

	release := make(chan struct{})
	blockedStarted := make(chan struct{})
	go s.Do("session-a", func() {
		close(blockedStarted)
		<-release
	})
	<-blockedStarted

	// A different session's job must complete while session-a is stuck.
	done := make(chan struct{})
	go func() {
		s.Do("session-b", func() {})
		close(done)
	}()
	<-done

	close(release)
}

func TestSerializer_WorkerCleanupAllowsReuse(t *testing.T) {
	s := newSerializer()

	for i := 0; i < 5; i++ {
		s.Do("session-1", func() {})
	}

	// The worker removes its queue just after the last job's Do returns; give
	// it a moment.
	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		remaining := len(s.queues)
		s.mu.Unlock()
		if remaining == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Expected drained queues to be removed, %d remain", remaining)
		}
		time.Sleep(time.Millisecond)
	}
}
