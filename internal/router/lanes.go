package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a sender exceeds their message rate.
var ErrRateLimited = errors.New("sender rate limit exceeded")

// ErrShuttingDown is returned for messages arriving after Close.
var ErrShuttingDown = errors.New("router is shutting down")

const (
	laneBuffer      = 64
	laneIdleTimeout = 5 * time.Minute
)

type task struct {
	ctx  context.Context
	run  func(ctx context.Context)
	done chan struct{}
}

// lane serializes the tasks of one conversation. Messages within a
// conversation are handled strictly in arrival order; different
// conversations proceed independently.
type lane struct {
	tasks chan *task

	// pending counts tasks queued or about to be queued, guarded by the
	// set's mutex. The worker only retires a lane whose pending is zero,
	// so a submitter holding the lane pointer never loses its worker.
	pending int
}

// laneSet owns one lane per active conversation plus the per-sender rate
// limiters that gate admission into any lane.
type laneSet struct {
	mu       sync.Mutex
	closed   bool
	inFlight sync.WaitGroup
	lanes    map[int64]*lane
	limiters map[int64]*rate.Limiter

	senderRate  rate.Limit
	senderBurst int
	idleAfter   time.Duration
}

func newLaneSet(senderRate rate.Limit, senderBurst int) *laneSet {
	return &laneSet{
		lanes:       make(map[int64]*lane),
		limiters:    make(map[int64]*rate.Limiter),
		senderRate:  senderRate,
		senderBurst: senderBurst,
		idleAfter:   laneIdleTimeout,
	}
}

// admit checks the sender's rate limit without blocking the lane.
func (s *laneSet) admit(senderID int64) bool {
	s.mu.Lock()
	limiter, ok := s.limiters[senderID]
	if !ok {
		limiter = rate.NewLimiter(s.senderRate, s.senderBurst)
		s.limiters[senderID] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

// submit runs fn on the conversation's lane and waits for it to finish.
// Enqueueing is ordered by arrival; the wait keeps the caller attached for
// streaming without letting a second message in the same conversation
// overtake the first.
func (s *laneSet) submit(ctx context.Context, conversationID int64, fn func(ctx context.Context)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrShuttingDown
	}
	l, ok := s.lanes[conversationID]
	if !ok {
		l = &lane{tasks: make(chan *task, laneBuffer)}
		s.lanes[conversationID] = l
		go s.runLane(conversationID, l)
	}
	l.pending++
	s.inFlight.Add(1)
	s.mu.Unlock()
	defer s.inFlight.Done()

	t := &task{ctx: ctx, run: fn, done: make(chan struct{})}
	select {
	case l.tasks <- t:
	case <-ctx.Done():
		s.mu.Lock()
		l.pending--
		s.mu.Unlock()
		return ctx.Err()
	}

	<-t.done
	return nil
}

// runLane is the lane's worker. It exits when the set shuts down, or once
// the conversation has gone idle, removing the lane so a later message
// starts a fresh one.
func (s *laneSet) runLane(conversationID int64, l *lane) {
	for {
		select {
		case t, ok := <-l.tasks:
			if !ok {
				return
			}
			t.run(t.ctx)
			close(t.done)
			s.mu.Lock()
			l.pending--
			s.mu.Unlock()
		case <-time.After(s.idleAfter):
			s.mu.Lock()
			if l.pending > 0 {
				s.mu.Unlock()
				continue
			}
			delete(s.lanes, conversationID)
			s.mu.Unlock()
			return
		}
	}
}

// close stops accepting work, waits for every in-flight submitter to finish,
// then releases the lane workers. Submitters return only after their task
// ran, so shutdown drains queued messages rather than dropping them.
func (s *laneSet) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// New submitters fail the closed check above; the remaining ones hold
	// the wait group until their task completed. After this no goroutine
	// can send on any lane, so closing the channels is safe.
	s.inFlight.Wait()

	s.mu.Lock()
	lanes := s.lanes
	s.lanes = make(map[int64]*lane)
	s.mu.Unlock()

	for _, l := range lanes {
		close(l.tasks)
	}
}
