// Package request defines the read/write request and response types the
// scheduler and executor pass around — the "what to do" half of a task,
// as distinct from the endpoint package's "where to do it".
package request

import (
	"fmt"
	"time"

	"github.com/simpleiot/modbusmgr/wire"
)

// RegisterKind names which Modbus register table a request addresses.
type RegisterKind int

// Defined register kinds.
const (
	KindCoil RegisterKind = iota
	KindDiscreteInput
	KindHoldingRegister
	KindInputRegister
)

func (k RegisterKind) String() string {
	switch k {
	case KindCoil:
		return "coil"
	case KindDiscreteInput:
		return "discrete-input"
	case KindHoldingRegister:
		return "holding-register"
	case KindInputRegister:
		return "input-register"
	default:
		return "unknown"
	}
}

// Writable reports whether k can be targeted by a write request.
func (k RegisterKind) Writable() bool {
	return k == KindCoil || k == KindHoldingRegister
}

// ReadRequest asks for Count bits/registers of Kind starting at Address.
type ReadRequest struct {
	Kind    RegisterKind
	Address uint16
	Count   uint16
	// MaxTries, if nonzero, overrides the endpoint's pool-level
	// MaxRetries+1 attempt budget for this one request. Must be >= 1
	// when set.
	MaxTries int
}

// PDU builds the wire.PDU for this read request.
func (r ReadRequest) PDU() (wire.PDU, error) {
	switch r.Kind {
	case KindCoil:
		return wire.ReadCoils(r.Address, r.Count), nil
	case KindDiscreteInput:
		return wire.ReadDiscreteInputs(r.Address, r.Count), nil
	case KindHoldingRegister:
		return wire.ReadHoldingRegs(r.Address, r.Count), nil
	case KindInputRegister:
		return wire.ReadInputRegs(r.Address, r.Count), nil
	default:
		return wire.PDU{}, errUnknownKind(r.Kind)
	}
}

// WriteRequest writes Bits (KindCoil) or Registers (KindHoldingRegister)
// starting at Address. Exactly one of Bits or Registers should be
// populated, matching Kind. WriteMultiple selects which function code family is emitted:
// false emits the single-element write (FC5/6), true emits the
// multiple-element write (FC15/16) even when Bits/Registers holds exactly
// one element.
type WriteRequest struct {
	Kind          RegisterKind
	Address       uint16
	Bits          []bool
	Registers     []uint16
	WriteMultiple bool
	// MaxTries, if nonzero, overrides the endpoint's pool-level
	// MaxRetries+1 attempt budget for this one request. Must be >= 1
	// when set.
	MaxTries int
}

// PDU builds the wire.PDU for this write request.
func (w WriteRequest) PDU() (wire.PDU, error) {
	switch w.Kind {
	case KindCoil:
		if !w.WriteMultiple {
			if len(w.Bits) != 1 {
				return wire.PDU{}, fmt.Errorf("request: single coil write requires exactly 1 bit, got %d", len(w.Bits))
			}
			return wire.WriteSingleCoil(w.Address, w.Bits[0]), nil
		}
		return wire.WriteMultipleCoils(w.Address, w.Bits), nil
	case KindHoldingRegister:
		if !w.WriteMultiple {
			if len(w.Registers) != 1 {
				return wire.PDU{}, fmt.Errorf("request: single register write requires exactly 1 register, got %d", len(w.Registers))
			}
			return wire.WriteSingleReg(w.Address, w.Registers[0]), nil
		}
		return wire.WriteMultipleRegs(w.Address, w.Registers), nil
	default:
		return wire.PDU{}, errUnknownKind(w.Kind)
	}
}

func errUnknownKind(k RegisterKind) error {
	return &unknownKindError{k}
}

type unknownKindError struct{ kind RegisterKind }

func (e *unknownKindError) Error() string {
	return "request: register kind " + e.kind.String() + " is not valid for this operation"
}

// ReadResult carries the decoded outcome of a ReadRequest.
type ReadResult struct {
	Bits      []bool
	Registers []uint16
	Started   time.Time
	Finished  time.Time
	Attempts  int
}

// Bit returns the i-th decoded bit, bounds-checked rather than panicking
// when i is outside what the response actually returned.
func (r ReadResult) Bit(i int) (bool, error) {
	if i < 0 || i >= len(r.Bits) {
		return false, fmt.Errorf("request: bit index %d out of range (have %d)", i, len(r.Bits))
	}
	return r.Bits[i], nil
}

// WriteResult carries the outcome of a WriteRequest. Modbus write
// responses echo the request on success, so there is no payload beyond
// confirmation of success and timing/attempt bookkeeping.
type WriteResult struct {
	Started  time.Time
	Finished time.Time
	Attempts int
}
