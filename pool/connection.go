package pool

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.bug.st/serial"

	"github.com/simpleiot/modbusmgr/endpoint"
	"github.com/simpleiot/modbusmgr/mberrors"
	"github.com/simpleiot/modbusmgr/wire"
)

// errChunkTimeout indicates no response arrived within the overall
// timeout (as opposed to a gap within an already-started response).
var errChunkTimeout = errors.New("pool: timed out waiting for a response")

// gapFramedConn wraps a live link and turns it into a io.ReadWriteCloser
// that frames a Modbus response the way a prompt/response serial device
// actually behaves: the slave takes some variable time to start replying,
// then streams the whole ADU continuously, so a quiet gap of chunkTimeout
// after the first byte reliably marks the end of the response without
// having to parse it on the fly. Write flushes any stale bytes left over
// from a response the executor gave up on before writing the next
// request, so a late reply can never bleed into the next transaction.
type gapFramedConn struct {
	rw           io.ReadWriteCloser
	timeout      time.Duration
	chunkTimeout time.Duration
	data         chan []byte
}

func newGapFramedConn(rw io.ReadWriteCloser, timeout, chunkTimeout time.Duration) *gapFramedConn {
	c := &gapFramedConn{rw: rw, timeout: timeout, chunkTimeout: chunkTimeout, data: make(chan []byte)}
	go c.pump()
	return c
}

// pump runs for the life of the connection, since a blocked Read on the
// underlying link cannot otherwise be interrupted; it exits once rw.Read
// errors, which Close forces by closing the link out from under it.
func (c *gapFramedConn) pump() {
	for {
		buf := make([]byte, 128)
		n, err := c.rw.Read(buf)
		if err != nil {
			close(c.data)
			return
		}
		c.data <- buf[:n]
	}
}

func (c *gapFramedConn) Read(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, errors.New("pool: read buffer must be non-zero length")
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	count := 0

	for {
		select {
		case chunk, ok := <-c.data:
			for i := 0; count < len(buffer) && i < len(chunk); i++ {
				buffer[count] = chunk[i]
				count++
			}
			if !ok {
				return count, io.EOF
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.chunkTimeout)

		case <-timer.C:
			if count > 0 {
				return count, nil
			}
			return count, errChunkTimeout
		}
	}
}

// flush discards any bytes still arriving from a prior response the
// caller abandoned, so a late reply never gets mistaken for the next
// transaction's response.
func (c *gapFramedConn) flush() {
	timer := time.NewTimer(c.chunkTimeout)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-c.data:
			if !ok {
				return
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.chunkTimeout)
		case <-timer.C:
			return
		}
	}
}

func (c *gapFramedConn) Write(buffer []byte) (int, error) {
	c.flush()
	return c.rw.Write(buffer)
}

func (c *gapFramedConn) Close() error {
	return c.rw.Close()
}

// Connection is one open physical link (socket or serial port) plus the
// codec needed to frame/unframe it, and the bookkeeping the pool and
// executor need to decide when to retire it.
type Connection struct {
	ID      uuid.UUID
	Key     endpoint.Key
	Codec   wire.Codec
	rw      io.ReadWriteCloser
	Opened  time.Time
	lastUse time.Time
	nextTID uint16
}

// NextTransactionID returns the next MBAP transaction id for this
// connection, wrapping at 16 bits. RTU/ASCII connections never call
// this; their codec ignores ADU.TransactionID.
func (c *Connection) NextTransactionID() uint16 {
	c.nextTID++
	return c.nextTID
}

// Write writes raw framed bytes to the underlying link.
func (c *Connection) Write(data []byte) (int, error) {
	return c.rw.Write(data)
}

// Read reads raw framed bytes from the underlying link.
func (c *Connection) Read(data []byte) (int, error) {
	return c.rw.Read(data)
}

// Close tears down the underlying link.
func (c *Connection) Close() error {
	return c.rw.Close()
}

// Age reports how long this connection has been open.
func (c *Connection) Age() time.Duration {
	return time.Since(c.Opened)
}

// dial opens a fresh Connection for key using cfg's timeouts, logging
// the attempt at debug level the way a link-layer driver would.
func dial(key endpoint.Key, cfg endpoint.PoolConfig, log zerolog.Logger) (*Connection, error) {
	id := uuid.New()
	log.Debug().Str("endpoint", key.String()).Str("connID", id.String()).Msg("dialing endpoint")

	var rw io.ReadWriteCloser
	var codec wire.Codec
	var err error

	switch key.Transport {
	case endpoint.TransportTCP:
		rw, err = dialTCP(key, cfg)
		codec = wire.NewTCPCodec()
	case endpoint.TransportUDP:
		rw, err = dialUDP(key, cfg)
		codec = wire.NewTCPCodec()
	case endpoint.TransportRTU:
		rw, err = dialSerial(key, cfg)
		codec = wire.NewRTUCodec()
	case endpoint.TransportASCII:
		rw, err = dialSerial(key, cfg)
		codec = wire.NewASCIICodec()
	default:
		return nil, mberrors.ConnectionFailed(key.String(), fmt.Errorf("pool: unknown transport %v", key.Transport))
	}
	if err != nil {
		return nil, mberrors.ConnectionFailed(key.String(), err)
	}

	now := time.Now()
	return &Connection{
		ID:      id,
		Key:     key,
		Codec:   codec,
		rw:      rw,
		Opened:  now,
		lastUse: now,
	}, nil
}

func dialTCP(key endpoint.Key, cfg endpoint.PoolConfig) (io.ReadWriteCloser, error) {
	addr := fmt.Sprintf("%s:%d", key.Host, key.Port)
	conn, err := net.DialTimeout("tcp", addr, cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	return newGapFramedConn(conn, cfg.ResponseTimeout, 30*time.Millisecond), nil
}

func dialUDP(key endpoint.Key, cfg endpoint.PoolConfig) (io.ReadWriteCloser, error) {
	addr := fmt.Sprintf("%s:%d", key.Host, key.Port)
	conn, err := net.DialTimeout("udp", addr, cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	return newGapFramedConn(conn, cfg.ResponseTimeout, 30*time.Millisecond), nil
}

func dialSerial(key endpoint.Key, cfg endpoint.PoolConfig) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: key.BaudRate,
		DataBits: key.DataBits,
		StopBits: serialStopBits(key.StopBits),
		Parity:   serialParity(key.Parity),
	}
	port, err := serial.Open(key.SerialPort, mode)
	if err != nil {
		return nil, err
	}
	return newGapFramedConn(port, cfg.ResponseTimeout, 30*time.Millisecond), nil
}

func serialParity(p endpoint.Parity) serial.Parity {
	switch p {
	case endpoint.ParityEven:
		return serial.EvenParity
	case endpoint.ParityOdd:
		return serial.OddParity
	default:
		return serial.NoParity
	}
}

func serialStopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}
