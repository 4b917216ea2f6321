package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/simpleiot/modbusmgr/task"
)

// pollRunner owns the goroutine that ticks one PollRegistration on a
// fixed-rate schedule: nominal tick k fires at
// registeredAt + InitialDelay + k*Period, computed from the schedule's
// start rather than from the previous tick's completion, so a slow tick
// does not drift the schedule. Submission to the dispatch pool blocks
// until that task finishes, which is what prevents the SAME poll from
// ever running two ticks concurrently; other registrations still run
// concurrently with it through the shared dispatch pool.
type pollRunner struct {
	sched *Scheduler
	reg   task.PollRegistration
	quit  chan struct{}
}

func newPollRunner(s *Scheduler, reg task.PollRegistration) *pollRunner {
	return &pollRunner{sched: s, reg: reg, quit: make(chan struct{})}
}

func (r *pollRunner) start() {
	r.sched.pollWG.Add(1)
	go r.run()
}

func (r *pollRunner) stop() {
	close(r.quit)
}

func (r *pollRunner) run() {
	defer r.sched.pollWG.Done()

	start := time.Now()
	var tick int64

	nextTick := func() time.Time {
		t := start.Add(r.reg.InitialDelay + time.Duration(tick)*r.reg.Period)
		tick++
		return t
	}

	for {
		target := nextTick()
		wait := time.Until(target)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-r.quit:
			timer.Stop()
			return
		}

		done := make(chan struct{})
		t := r.reg.Task
		t.CorrelationID = uuid.New()
		t.Submitted = time.Now()

		started := time.Now()
		select {
		case r.sched.taskCh <- dispatchItem{t: t, done: done}:
		case <-r.quit:
			return
		}

		select {
		case <-done:
			r.sched.metrics.ObservePollDuration(r.reg.Key.String(), time.Since(started).Seconds())
		case <-r.quit:
			// the in-flight task still completes on its worker; this
			// poll simply stops waiting for or scheduling further ticks.
			return
		}
	}
}
