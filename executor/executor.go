// Package executor drives a single Modbus transaction end to end: borrow
// a connection from the pool, encode and write a request, read and
// decode the response, classify any failure, and retry according to the
// endpoint's policy.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/simpleiot/modbusmgr/endpoint"
	"github.com/simpleiot/modbusmgr/mberrors"
	"github.com/simpleiot/modbusmgr/metrics"
	"github.com/simpleiot/modbusmgr/pool"
	"github.com/simpleiot/modbusmgr/request"
	"github.com/simpleiot/modbusmgr/wire"
)

// maxResponseSize bounds any Modbus ADU: the PDU itself is capped at 253
// bytes by the protocol; MBAP adds 7 bytes and RTU 3, while ASCII
// hex-encodes unit id, PDU and LRC and adds ':' and CRLF (1+2*255+2).
const maxResponseSize = 513

// Executor runs transactions against a shared Pool.
type Executor struct {
	Pool    *pool.Pool
	Metrics metrics.Collector
	Log     zerolog.Logger
}

// New creates an Executor. metrics may be nil, in which case observations
// are discarded.
func New(p *pool.Pool, m metrics.Collector, log zerolog.Logger) *Executor {
	if m == nil {
		m = metrics.Noop()
	}
	return &Executor{Pool: p, Metrics: m, Log: log}
}

// Read executes a read transaction against key, retrying per its pool
// configuration's MaxRetries, and returns the decoded result.
func (e *Executor) Read(ctx context.Context, key endpoint.Key, req request.ReadRequest, correlationID uuid.UUID) (request.ReadResult, error) {
	result := request.ReadResult{Started: time.Now()}

	pdu, err := req.PDU()
	if err != nil {
		return result, mberrors.Unknown(key.String(), err)
	}

	respPDU, attempts, err := e.run(ctx, key, pdu, correlationID, req.MaxTries)
	result.Attempts = attempts
	result.Finished = time.Now()
	if err != nil {
		return result, err
	}

	switch req.Kind {
	case request.KindCoil, request.KindDiscreteInput:
		bits, err := wire.RespReadBits(respPDU, int(req.Count))
		if err != nil {
			return result, mberrors.DecodeError(key.String(), err)
		}
		result.Bits = bits
	default:
		regs, err := wire.RespReadRegs(respPDU)
		if err != nil {
			return result, mberrors.DecodeError(key.String(), err)
		}
		result.Registers = regs
	}

	return result, nil
}

// Write executes a write transaction against key, retrying per its pool
// configuration's MaxRetries.
func (e *Executor) Write(ctx context.Context, key endpoint.Key, req request.WriteRequest, correlationID uuid.UUID) (request.WriteResult, error) {
	result := request.WriteResult{Started: time.Now()}

	pdu, err := req.PDU()
	if err != nil {
		return result, mberrors.Unknown(key.String(), err)
	}

	_, attempts, err := e.run(ctx, key, pdu, correlationID, req.MaxTries)
	result.Attempts = attempts
	result.Finished = time.Now()
	return result, err
}

// run performs the borrow/encode/write/read/decode cycle for pdu against
// key, retrying transient failures up to an attempt budget: maxTries if
// nonzero (a per-request override), otherwise the endpoint's configured
// MaxRetries+1. It returns the response PDU (on success), the number of
// attempts made, and the final error (nil on success). A connection-acquire
// failure is never retried regardless of budget — see mberrors.Retryable —
// so it always returns after exactly one attempt.
func (e *Executor) run(ctx context.Context, key endpoint.Key, pdu wire.PDU, correlationID uuid.UUID, maxTries int) (wire.PDU, int, error) {
	cfg := e.Pool.GetEndpointPoolConfiguration(key)
	endpointStr := key.String()

	limit := cfg.MaxRetries + 1
	if maxTries > 0 {
		limit = maxTries
	}

	var lastErr error
	attempts := 0

	for attempts = 1; attempts <= limit; attempts++ {
		start := time.Now()
		resp, err := e.attempt(ctx, key, pdu, correlationID)
		e.Metrics.ObserveTransactionDuration(endpointStr, time.Since(start).Seconds())

		if err == nil {
			if attempts > 1 {
				e.Metrics.IncTransactionRetries(endpointStr, attempts-1)
			}
			return resp, attempts, nil
		}

		lastErr = err
		if mberrors.KindOf(err) == mberrors.KindConnectionFailed {
			e.Metrics.IncConnectFailure(endpointStr)
		}

		if !mberrors.Retryable(err) {
			break
		}

		e.Log.Debug().Str("endpoint", endpointStr).Str("correlationID", correlationID.String()).
			Int("attempt", attempts).Err(err).Msg("transaction attempt failed, retrying")

		select {
		case <-ctx.Done():
			return wire.PDU{}, attempts, ctx.Err()
		default:
		}
	}

	if attempts > limit {
		attempts = limit
	}
	if attempts > 1 {
		e.Metrics.IncTransactionRetries(endpointStr, attempts-1)
	}
	return wire.PDU{}, attempts, lastErr
}

// attempt performs exactly one borrow/encode/write/read/decode cycle.
func (e *Executor) attempt(ctx context.Context, key endpoint.Key, pdu wire.PDU, correlationID uuid.UUID) (wire.PDU, error) {
	endpointStr := key.String()

	lease, err := e.Pool.Borrow(ctx, key)
	if err != nil {
		return wire.PDU{}, mberrors.ConnectionFailed(endpointStr, err)
	}
	conn := lease.Conn

	adu := wire.ADU{UnitID: key.UnitID, PDU: pdu}
	if !conn.Codec.Headless() {
		adu.TransactionID = conn.NextTransactionID()
	}

	raw, err := conn.Codec.Encode(adu)
	if err != nil {
		txErr := mberrors.Unknown(endpointStr, err)
		lease.Return(txErr)
		return wire.PDU{}, txErr
	}

	e.Log.Trace().Str("endpoint", endpointStr).Str("correlationID", correlationID.String()).
		Str("tx", wire.HexDump(raw)).Msg("writing modbus request")

	if _, err := conn.Write(raw); err != nil {
		txErr := mberrors.IOError(endpointStr, err)
		lease.Return(txErr)
		return wire.PDU{}, txErr
	}

	buf := make([]byte, maxResponseSize)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		txErr := mberrors.IOError(endpointStr, err)
		lease.Return(txErr)
		return wire.PDU{}, txErr
	}
	raw = buf[:n]

	e.Log.Trace().Str("endpoint", endpointStr).Str("correlationID", correlationID.String()).
		Str("rx", wire.HexDump(raw)).Msg("read modbus response")

	respADU, err := conn.Codec.Decode(raw)
	if err != nil {
		txErr := mberrors.DecodeError(endpointStr, err)
		lease.Return(txErr)
		return wire.PDU{}, txErr
	}

	if !conn.Codec.Headless() && respADU.TransactionID != adu.TransactionID {
		txErr := mberrors.TransactionIDMismatch(endpointStr,
			errTransactionIDMismatch(adu.TransactionID, respADU.TransactionID))
		lease.Return(txErr)
		return wire.PDU{}, txErr
	}

	if respADU.PDU.IsException() {
		txErr := mberrors.SlaveException(endpointStr, respADU.PDU.Exception())
		lease.Return(txErr)
		return wire.PDU{}, txErr
	}

	lease.Return(nil)
	return respADU.PDU, nil
}

type transactionIDMismatchErr struct {
	want, got uint16
}

func errTransactionIDMismatch(want, got uint16) error {
	return &transactionIDMismatchErr{want, got}
}

func (e *transactionIDMismatchErr) Error() string {
	return "executor: response transaction id does not match request"
}
