package presence

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Evictor removes a participant whose disconnection age exceeded the
// inactivity threshold, including any host failover that implies. The
// session service implements it behind its per-session serializer so a
// sweep-triggered mutation cannot race a concurrent user command.
type Evictor interface {
	RemoveInactive(ctx context.Context, sessionID, participantID string) error
}

// Sweeper periodically scans the tracker and evicts participants that have
// been disconnected past the inactivity threshold.
type Sweeper struct {
	tracker   *Tracker
	evictor   Evictor
	interval  time.Duration
	threshold time.Duration

	shutdown chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewSweeper creates a sweeper; Start begins sweeping.
func NewSweeper(tracker *Tracker, evictor Evictor, interval, threshold time.Duration) *Sweeper {
	return &Sweeper{
		tracker:   tracker,
		evictor:   evictor,
		interval:  interval,
		threshold: threshold,
		shutdown:  make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSweeperAlreadyRunning
	}
	s.running = true

	log.Printf("Starting inactivity sweeper: interval=%s threshold=%s", s.interval, s.threshold)

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrSweeperNotRunning
	}
	s.running = false

	close(s.shutdown)
	s.wg.Wait()
	log.Println("Inactivity sweeper stopped")
	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Sweep evicts every over-threshold participant once. Sessions are swept
// concurrently so one session's slow store write cannot stall the rest;
// entries within a session are processed in order.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired := s.tracker.Expired(time.Now(), s.threshold)
	if len(expired) == 0 {
		return
	}

	bySession := make(map[string][]Entry)
	for _, entry := range expired {
		bySession[entry.SessionID] = append(bySession[entry.SessionID], entry)
	}

	var wg sync.WaitGroup
	for sessionID, entries := range bySession {
		wg.Add(1)
		go func(sessionID string, entries []Entry) {
			defer wg.Done()
			s.sweepSession(ctx, sessionID, entries)
		}(sessionID, entries)
	}
	wg.Wait()
}

func (s *Sweeper) sweepSession(ctx context.Context, sessionID string, entries []Entry) {
	for _, entry := range entries {
		err := s.evictor.RemoveInactive(ctx, sessionID, entry.ParticipantID)
		if err == nil {
			continue
		}

		if errors.Is(err, context.Canceled) {
			return
		}
		// A vanished session already had its tracking dropped by the evictor;
		// anything else is transient and retried on the next sweep.
		log.Printf("Sweep of session %s user %s failed: %v", sessionID, entry.ParticipantID, err)
	}
}
