package task

import (
	"errors"
	"testing"

	"github.com/simpleiot/modbusmgr/request"
)

func TestCallbackFuncsSkipsNilFields(t *testing.T) {
	c := CallbackFuncs{}
	// must not panic when none of the fields are set
	c.OnRead(request.ReadResult{})
	c.OnWrite(request.WriteResult{})
	c.OnError(errors.New("boom"))
}

func TestCallbackFuncsInvokesSetFields(t *testing.T) {
	var gotRead bool
	var gotErr error
	c := CallbackFuncs{
		Read:  func(request.ReadResult) { gotRead = true },
		Error: func(err error) { gotErr = err },
	}
	c.OnRead(request.ReadResult{})
	if !gotRead {
		t.Error("expected Read callback to fire")
	}
	c.OnError(errors.New("boom"))
	if gotErr == nil {
		t.Error("expected Error callback to fire")
	}
}

func TestNewPollKeyIsUnique(t *testing.T) {
	a := NewPollKey()
	b := NewPollKey()
	if a == b {
		t.Error("expected distinct poll keys")
	}
	if a.String() == "" {
		t.Error("expected a non-empty string form")
	}
}
