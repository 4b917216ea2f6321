// Package task holds the types shared between the scheduler and the
// executor — pulled out on their own so neither package has to import
// the other to describe "a unit of work and what happens when it's
// done".
package task

import (
	"time"

	"github.com/google/uuid"
	"github.com/simpleiot/modbusmgr/endpoint"
	"github.com/simpleiot/modbusmgr/request"
)

// Op names what a Task asks the executor to do.
type Op int

// Defined operations.
const (
	OpRead Op = iota
	OpWrite
)

// Task is one logical unit of work submitted to the scheduler: a request
// against one endpoint, plus the callbacks that receive its outcome.
// CorrelationID ties together the log lines for one submitted task across
// the scheduler, pool and executor, the way simpleiot tags nodes/devices
// with a uuid for log correlation.
type Task struct {
	CorrelationID uuid.UUID
	Endpoint      endpoint.Key
	Op            Op
	Read          request.ReadRequest
	Write         request.WriteRequest
	Callback      Callback
	Submitted     time.Time
}

// Callback receives the outcome of a Task. Exactly one of OnRead/OnWrite
// fires, matching Op, and OnError fires instead of either if every retry
// attempt failed.
type Callback interface {
	OnRead(result request.ReadResult)
	OnWrite(result request.WriteResult)
	OnError(err error)
}

// CallbackFuncs adapts plain functions to the Callback interface; a nil
// func is simply skipped, so callers only need to set the fields they
// care about.
type CallbackFuncs struct {
	Read  func(request.ReadResult)
	Write func(request.WriteResult)
	Error func(error)
}

// OnRead implements Callback.
func (c CallbackFuncs) OnRead(result request.ReadResult) {
	if c.Read != nil {
		c.Read(result)
	}
}

// OnWrite implements Callback.
func (c CallbackFuncs) OnWrite(result request.WriteResult) {
	if c.Write != nil {
		c.Write(result)
	}
}

// OnError implements Callback.
func (c CallbackFuncs) OnError(err error) {
	if c.Error != nil {
		c.Error(err)
	}
}

// PollKey identifies one registered periodic poll, so callers can
// unregister it later without holding onto a pointer or channel.
type PollKey uuid.UUID

// NewPollKey returns a fresh, random PollKey.
func NewPollKey() PollKey {
	return PollKey(uuid.New())
}

func (k PollKey) String() string {
	return uuid.UUID(k).String()
}

// PollRegistration describes a periodic read/write submitted to the
// scheduler: Task.Submitted is ignored (the scheduler stamps each tick's
// submission time itself); InitialDelay and Period define the fixed-rate
// schedule, nominal tick k fires at InitialDelay + k*Period measured from
// registration time, regardless of how long callback processing for
// earlier ticks took.
type PollRegistration struct {
	Key          PollKey
	Task         Task
	InitialDelay time.Duration
	Period       time.Duration
}
