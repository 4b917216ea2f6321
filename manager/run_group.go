package manager

import (
	"sync"

	"github.com/oklog/run"
)

// runGroup groups the goroutines one Manager activation owns (the
// scheduler's worker pools) so a single Deactivate stops all of them
// together, adapted from the
// run.Group wrapper pattern used to start/stop a set of interdependent
// client goroutines as one unit.
type runGroup struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	group    run.Group
}

func newRunGroup() *runGroup {
	return &runGroup{stop: make(chan struct{}), done: make(chan struct{})}
}

// add registers an actor: execute runs until the group is stopped or the
// actor fails on its own; interrupt unwinds it when any other actor in
// the group returns.
func (g *runGroup) add(execute func() error, interrupt func(error)) {
	g.group.Add(execute, interrupt)
}

// run blocks until every actor has exited, either because one returned
// on its own or because stop() was called. All actors must be added
// before run is called. done is closed once every actor has fully
// unwound, letting a caller that triggered stopSignal wait for the
// shutdown to actually complete before tearing down shared state.
func (g *runGroup) run() error {
	g.group.Add(func() error {
		<-g.stop
		return nil
	}, func(error) {
		g.stopSignal()
	})

	err := g.group.Run()
	close(g.done)
	return err
}

// stopSignal unblocks run's internal actor, causing run.Group to
// interrupt every other actor. Safe to call more than once or
// concurrently.
func (g *runGroup) stopSignal() {
	g.stopOnce.Do(func() { close(g.stop) })
}
