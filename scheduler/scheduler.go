// Package scheduler dispatches one-time and periodic Modbus tasks to a
// fixed-size worker pool backed by an executor.Executor. Periodic polls
// run on fixed-rate schedules (nominal tick k fires at
// initialDelay + k*period from registration, independent of how long
// earlier ticks took) and never overlap themselves, while distinct
// registrations run concurrently against the shared dispatch pool.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/simpleiot/modbusmgr/executor"
	"github.com/simpleiot/modbusmgr/mberrors"
	"github.com/simpleiot/modbusmgr/metrics"
	"github.com/simpleiot/modbusmgr/request"
	"github.com/simpleiot/modbusmgr/task"
)

// dispatchItem wraps a task.Task with the bookkeeping the dispatch
// worker needs but that does not belong in the shared task.Task type:
// a completion signal so a poll's own goroutine can wait for its task to
// finish running before computing the next tick.
type dispatchItem struct {
	t    task.Task
	done chan struct{}
}

// Scheduler owns the dispatch and callback worker pools and the set of
// currently registered periodic polls.
type Scheduler struct {
	executor *executor.Executor
	log      zerolog.Logger
	metrics  metrics.Collector

	workers         int
	callbackWorkers int

	taskCh     chan dispatchItem
	callbackCh chan func()
	stopCh     chan struct{}
	wg         sync.WaitGroup
	pollWG     sync.WaitGroup

	mu    sync.Mutex
	polls map[task.PollKey]*pollRunner
}

// New creates a Scheduler with workers dispatch goroutines and
// callbackWorkers callback goroutines. It must be started with Start
// before any task is submitted.
func New(exec *executor.Executor, workers, callbackWorkers int, log zerolog.Logger, m metrics.Collector) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	if callbackWorkers <= 0 {
		callbackWorkers = 4
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Scheduler{
		executor:        exec,
		log:             log,
		metrics:         m,
		workers:         workers,
		callbackWorkers: callbackWorkers,
		polls:           make(map[task.PollKey]*pollRunner),
	}
}

// Start launches the dispatch and callback worker pools. Safe to call
// again after Stop to resume with the same worker counts; Stop drops
// every registered poll, so a restarted Scheduler runs none until polls
// are registered again.
func (s *Scheduler) Start() error {
	s.taskCh = make(chan dispatchItem)
	s.callbackCh = make(chan func())
	s.stopCh = make(chan struct{})

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.dispatchWorker()
	}
	for i := 0; i < s.callbackWorkers; i++ {
		s.wg.Add(1)
		go s.callbackWorker()
	}
	return nil
}

// Stop stops every registered periodic poll and drops it from the
// registry (RegisteredPolls reports none afterwards), then signals every
// worker to exit and waits for them to drain. A callback that a dispatch
// worker is still handing off while Stop runs may be dropped.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	for _, r := range s.polls {
		r.stop()
	}
	s.polls = make(map[task.PollKey]*pollRunner)
	s.mu.Unlock()

	// Wait for every poll goroutine to actually exit before closing
	// taskCh: otherwise a poll goroutine racing its own quit signal could
	// still attempt to send on taskCh after it's closed.
	s.pollWG.Wait()

	// callbackCh is left open: a dispatch worker may still be handing off
	// a callback, and callback workers exit on stopCh instead.
	close(s.stopCh)
	close(s.taskCh)
	s.wg.Wait()
	return nil
}

func (s *Scheduler) dispatchWorker() {
	defer s.wg.Done()
	for item := range s.taskCh {
		s.runTask(item.t)
		if item.done != nil {
			close(item.done)
		}
	}
}

func (s *Scheduler) callbackWorker() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.callbackCh:
			fn()
		case <-s.stopCh:
			return
		}
	}
}

// runTask executes one task via the executor and enqueues its callback
// invocation onto the callback pool, so a slow callback never blocks a
// dispatch worker from picking up the next task.
func (s *Scheduler) runTask(t task.Task) {
	ctx := context.Background()

	switch t.Op {
	case task.OpRead:
		result, err := s.executor.Read(ctx, t.Endpoint, t.Read, t.CorrelationID)
		s.enqueueCallback(t, func() {
			if err != nil {
				t.Callback.OnError(err)
				return
			}
			t.Callback.OnRead(result)
		})
	case task.OpWrite:
		result, err := s.executor.Write(ctx, t.Endpoint, t.Write, t.CorrelationID)
		s.enqueueCallback(t, func() {
			if err != nil {
				t.Callback.OnError(err)
				return
			}
			t.Callback.OnWrite(result)
		})
	default:
		s.enqueueCallback(t, func() {
			t.Callback.OnError(mberrors.Unknown(t.Endpoint.String(), fmt.Errorf("scheduler: unknown op %v", t.Op)))
		})
	}
}

func (s *Scheduler) enqueueCallback(t task.Task, fn func()) {
	if t.Callback == nil {
		return
	}
	select {
	case s.callbackCh <- fn:
	case <-s.stopCh:
	}
}

// SubmitRead builds and submits a one-time read task.
func (s *Scheduler) SubmitRead(ctx context.Context, ep task.Task, req request.ReadRequest, cb task.Callback) (uuid.UUID, error) {
	ep.Op = task.OpRead
	ep.Read = req
	ep.Callback = cb
	return s.submit(ctx, ep)
}

// SubmitWrite builds and submits a one-time write task.
func (s *Scheduler) SubmitWrite(ctx context.Context, ep task.Task, req request.WriteRequest, cb task.Callback) (uuid.UUID, error) {
	ep.Op = task.OpWrite
	ep.Write = req
	ep.Callback = cb
	return s.submit(ctx, ep)
}

func (s *Scheduler) submit(ctx context.Context, t task.Task) (uuid.UUID, error) {
	if t.CorrelationID == uuid.Nil {
		t.CorrelationID = uuid.New()
	}
	t.Submitted = time.Now()

	select {
	case s.taskCh <- dispatchItem{t: t}:
		return t.CorrelationID, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	case <-s.stopCh:
		return uuid.Nil, fmt.Errorf("scheduler: stopped")
	}
}

// RegisterRegularPoll starts a goroutine ticking reg's task on a
// fixed-rate schedule and submitting it to the dispatch pool, blocking
// on that submission's completion before computing the next tick so the
// same poll never overlaps itself. Registering a key that is already
// registered replaces it: the old schedule is cancelled first, then the
// new one is installed, so a caller can retune a poll's period without
// an explicit Unregister/Register pair leaving a window with no active
// schedule (or, briefly, two).
func (s *Scheduler) RegisterRegularPoll(reg task.PollRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.polls[reg.Key]; exists {
		old.stop()
		delete(s.polls, reg.Key)
	}

	r := newPollRunner(s, reg)
	s.polls[reg.Key] = r
	r.start()
	return nil
}

// UnregisterRegularPoll stops and removes a previously registered poll.
// It returns promptly: the poll's tick goroutine is signaled to exit and
// does not wait for any in-flight task to finish. The poll's endpoint
// connection is marked for disconnect-on-return (so a tick still in
// flight right now finishes normally) and any already-idle connection
// for that endpoint is dropped immediately, so a poll that is retuned or
// abandoned does not leave a connection open indefinitely for an
// endpoint nothing polls anymore.
func (s *Scheduler) UnregisterRegularPoll(key task.PollKey) error {
	s.mu.Lock()
	r, ok := s.polls[key]
	if ok {
		delete(s.polls, key)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("scheduler: poll %v not registered", key)
	}
	r.stop()

	endpointKey := r.reg.Task.Endpoint
	s.executor.Pool.DisconnectOnReturn(endpointKey, time.Now())
	s.executor.Pool.ClearIdle(endpointKey)
	return nil
}

// RegisteredPolls returns the currently registered poll registrations.
func (s *Scheduler) RegisteredPolls() []task.PollRegistration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]task.PollRegistration, 0, len(s.polls))
	for _, r := range s.polls {
		out = append(out, r.reg)
	}
	return out
}
