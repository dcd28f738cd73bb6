package session

import "sync"

// serializer runs all work for a given session id on a single worker
// goroutine, in submission order. The store has no compare-and-swap, so two
// concurrent read-modify-write cycles against the same session would lose one
// of the updates; funnelling them through one worker per session id removes
// the race while keeping different sessions fully independent.
type serializer struct {
	mu     sync.Mutex
	queues map[string]*sessionQueue
}

type sessionQueue struct {
	jobs    chan func()
	pending int
}

func newSerializer() *serializer {
	return &serializer{
		queues: make(map[string]*sessionQueue),
	}
}

// Do runs fn on the session's worker and waits for it to finish. Workers are
// created on demand and exit once their queue drains.
func (s *serializer) Do(sessionID string, fn func()) {
	done := make(chan struct{})

	s.mu.Lock()
	q, exists := s.queues[sessionID]
	if !exists {
		q = &sessionQueue{jobs: make(chan func(), 64)}
		s.queues[sessionID] = q
		go s.work(sessionID, q)
	}
	q.pending++
	s.mu.Unlock()

	q.jobs <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// work drains one session's queue. The worker only exits while holding the
// lock and seeing pending == 0, so a submitter that already incremented
// pending is guaranteed a live worker for its job.
func (s *serializer) work(sessionID string, q *sessionQueue) {
	for job := range q.jobs {
		job()

		s.mu.Lock()
		q.pending--
		if q.pending == 0 {
			delete(s.queues, sessionID)
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}
