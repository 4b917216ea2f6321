// Package manager is the top-level facade: Activate starts the shared
// worker pools, Submit*/Register* queue work against them, and
// Deactivate stops the worker pools and tears the connection pool down.
// The scheduler itself is kept: a re-Activate restarts its workers with
// the same counts.
package manager

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/simpleiot/modbusmgr/endpoint"
	"github.com/simpleiot/modbusmgr/executor"
	"github.com/simpleiot/modbusmgr/metrics"
	"github.com/simpleiot/modbusmgr/pool"
	"github.com/simpleiot/modbusmgr/request"
	"github.com/simpleiot/modbusmgr/scheduler"
	"github.com/simpleiot/modbusmgr/task"
)

// Listener is notified when an endpoint's pool configuration changes, so
// out-of-process observers (e.g. the optional NATS publisher in the
// notify package) can react without polling.
type Listener interface {
	OnEndpointPoolConfigChanged(key endpoint.Key, cfg endpoint.PoolConfig)
}

// Config bundles the Manager's tunables at construction time.
type Config struct {
	DispatchWorkers int
	CallbackWorkers int
	Metrics         metrics.Collector
	Log             zerolog.Logger
}

// Manager is the single entry point applications use: it owns the
// connection pool, the executor that drives it, and the scheduler that
// queues work onto them.
type Manager struct {
	pool      *pool.Pool
	executor  *executor.Executor
	scheduler *scheduler.Scheduler
	log       zerolog.Logger

	mu        sync.Mutex
	active    bool
	group     *runGroup
	listeners []Listener
}

// New constructs a Manager. It is inert until Activate is called.
func New(cfg Config) *Manager {
	p := pool.New(cfg.Log)
	exec := executor.New(p, cfg.Metrics, cfg.Log)
	sched := scheduler.New(exec, cfg.DispatchWorkers, cfg.CallbackWorkers, cfg.Log, cfg.Metrics)

	return &Manager{
		pool:      p,
		executor:  exec,
		scheduler: sched,
		log:       cfg.Log,
	}
}

// Activate starts the scheduler's worker pools. Calling Activate while
// already active is a no-op.
func (m *Manager) Activate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active {
		return nil
	}

	if err := m.scheduler.Start(); err != nil {
		return err
	}

	g := newRunGroup()
	g.add(func() error {
		// Block until Deactivate: an actor that returns makes the group
		// interrupt every actor, which would stop the scheduler.
		<-g.stop
		return nil
	}, func(error) {
		_ = m.scheduler.Stop()
	})

	m.group = g
	m.active = true

	go func() {
		if err := g.run(); err != nil {
			m.log.Error().Err(err).Msg("manager run group exited with error")
		}
	}()

	return nil
}

// Deactivate stops the scheduler's worker pools and closes every pooled
// connection. It does not destroy the scheduler itself — a following
// Activate reuses it with its worker counts unchanged.
func (m *Manager) Deactivate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active {
		return nil
	}

	m.group.stopSignal()
	<-m.group.done
	m.pool.Clear()
	m.active = false
	return nil
}

// SubmitOneTimeRead submits a single read against key, invoking cb when
// it completes (or fails after retries).
func (m *Manager) SubmitOneTimeRead(ctx context.Context, key endpoint.Key, req request.ReadRequest, cb task.Callback) (uuid.UUID, error) {
	t := task.Task{CorrelationID: uuid.New(), Endpoint: key}
	return m.scheduler.SubmitRead(ctx, t, req, cb)
}

// SubmitOneTimeWrite submits a single write against key, invoking cb
// when it completes (or fails after retries).
func (m *Manager) SubmitOneTimeWrite(ctx context.Context, key endpoint.Key, req request.WriteRequest, cb task.Callback) (uuid.UUID, error) {
	t := task.Task{CorrelationID: uuid.New(), Endpoint: key}
	return m.scheduler.SubmitWrite(ctx, t, req, cb)
}

// RegisterRegularPoll registers a periodic read/write and returns its
// key, used later to unregister it.
func (m *Manager) RegisterRegularPoll(reg task.PollRegistration) (task.PollKey, error) {
	if reg.Key == (task.PollKey{}) {
		reg.Key = task.NewPollKey()
	}
	if err := m.scheduler.RegisterRegularPoll(reg); err != nil {
		return task.PollKey{}, err
	}
	return reg.Key, nil
}

// UnregisterRegularPoll stops a previously registered periodic poll.
func (m *Manager) UnregisterRegularPoll(key task.PollKey) error {
	return m.scheduler.UnregisterRegularPoll(key)
}

// RegisteredPolls returns the currently registered periodic polls.
func (m *Manager) RegisteredPolls() []task.PollRegistration {
	return m.scheduler.RegisteredPolls()
}

// SetEndpointPoolConfiguration installs cfg for key's endpoint and
// notifies every registered Listener of the change.
func (m *Manager) SetEndpointPoolConfiguration(key endpoint.Key, cfg endpoint.PoolConfig) {
	m.pool.SetEndpointPoolConfiguration(key, cfg)

	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, l := range listeners {
		l.OnEndpointPoolConfigChanged(key, cfg)
	}
}

// GetEndpointPoolConfiguration returns the configuration in effect for key.
func (m *Manager) GetEndpointPoolConfiguration(key endpoint.Key) endpoint.PoolConfig {
	return m.pool.GetEndpointPoolConfiguration(key)
}

// AddListener registers l to be notified of future pool configuration
// changes.
func (m *Manager) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// RemoveListener unregisters l. It is a no-op if l was never added.
func (m *Manager) RemoveListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.listeners {
		if existing == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// Active reports whether the Manager is currently activated.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
