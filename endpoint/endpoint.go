// Package endpoint defines the addressing and pooling-policy types shared
// by every other package in this module: the identity of a physical link
// (EndpointKey) and the policy the connection pool applies to it
// (PoolConfig).
package endpoint

import (
	"fmt"
	"time"
)

// TransportKind names the wire transport a Key addresses.
type TransportKind string

// Defined transport kinds.
const (
	TransportTCP   TransportKind = "tcp"
	TransportUDP   TransportKind = "udp"
	TransportRTU   TransportKind = "rtu"
	TransportASCII TransportKind = "ascii"
)

// Parity names a serial parity setting.
type Parity string

// Defined parity settings.
const (
	ParityNone Parity = "none"
	ParityEven Parity = "even"
	ParityOdd  Parity = "odd"
)

// Key uniquely identifies one physical/logical Modbus link. Two requests
// whose Key compares equal (==) share the same pool slot and are subject
// to the pool's single-concurrent-transaction cap for that link — this is
// a comparable struct specifically so it can be used as a map key.
//
// For TCP/UDP, the link is the (Host, Port) pair; UnitID addresses a
// slave that may be multiplexed over the same socket (a gateway), but
// requests to different UnitIDs on the same Host/Port still serialize
// through the same pool slot, since they share one physical connection.
// For RTU/ASCII, the link is the serial port; UnitID addresses a slave on
// the bus, and again shares the port's single pool slot with every other
// UnitID on that bus.
type Key struct {
	Transport TransportKind
	UnitID    byte

	// TCP/UDP
	Host string
	Port int

	// RTU/ASCII
	SerialPort string
	BaudRate   int
	DataBits   int
	Parity     Parity
	StopBits   int
}

// NewTCPKey builds a Key for a Modbus TCP endpoint.
func NewTCPKey(host string, port int, unitID byte) Key {
	return Key{Transport: TransportTCP, Host: host, Port: port, UnitID: unitID}
}

// NewUDPKey builds a Key for a Modbus UDP endpoint.
func NewUDPKey(host string, port int, unitID byte) Key {
	return Key{Transport: TransportUDP, Host: host, Port: port, UnitID: unitID}
}

// NewRTUKey builds a Key for a Modbus RTU serial endpoint.
func NewRTUKey(serialPort string, baud int, unitID byte) Key {
	return Key{
		Transport:  TransportRTU,
		SerialPort: serialPort,
		BaudRate:   baud,
		DataBits:   8,
		Parity:     ParityNone,
		StopBits:   1,
		UnitID:     unitID,
	}
}

// NewASCIIKey builds a Key for a Modbus ASCII serial endpoint.
func NewASCIIKey(serialPort string, baud int, unitID byte) Key {
	return Key{
		Transport:  TransportASCII,
		SerialPort: serialPort,
		BaudRate:   baud,
		DataBits:   7,
		Parity:     ParityEven,
		StopBits:   1,
		UnitID:     unitID,
	}
}

// PoolKey returns the Key with UnitID zeroed, identifying the physical
// link (socket or serial port) the pool slot actually guards — as
// distinct from Key itself, which additionally identifies a slave on
// that link for the executor's own bookkeeping.
func (k Key) PoolKey() Key {
	k.UnitID = 0
	return k
}

func (k Key) String() string {
	switch k.Transport {
	case TransportTCP, TransportUDP:
		return fmt.Sprintf("%s://%s:%d#%d", k.Transport, k.Host, k.Port, k.UnitID)
	default:
		return fmt.Sprintf("%s://%s@%d#%d", k.Transport, k.SerialPort, k.BaudRate, k.UnitID)
	}
}

// Headless reports whether this key's transport has no transaction id
// (RTU/ASCII), matching wire.Codec.Headless.
func (k Key) Headless() bool {
	return k.Transport == TransportRTU || k.Transport == TransportASCII
}

// PoolConfig is the per-endpoint (per pool key) policy the connection
// pool applies: how long to wait to dial, how long to wait for a
// response, how to pace back-to-back transactions, and when to force a
// reconnect.
type PoolConfig struct {
	// ConnectTimeout bounds dialing a new connection.
	ConnectTimeout time.Duration
	// ResponseTimeout bounds waiting for a response once a request has
	// been written.
	ResponseTimeout time.Duration
	// MinTransactionInterval is the minimum spacing enforced between the
	// end of one transaction and the start of the next borrowed
	// transaction on the same pool slot — required by slow slaves that
	// need a quiet bus interval between requests.
	MinTransactionInterval time.Duration
	// MaxRetries bounds the executor's retry attempts for a single
	// logical request before it reports failure.
	MaxRetries int
	// ReconnectAfterAge, if nonzero, forces the pool to close and redial
	// a connection once it has been open this long, regardless of
	// whether it is still functioning — a defense against slaves that
	// silently wedge long-lived sockets.
	ReconnectAfterAge time.Duration
	// DisconnectOnError, if true, tears down the connection immediately
	// whenever a transaction fails with an I/O or decode error (as
	// opposed to a slave exception, which does not indicate the link is
	// unhealthy).
	DisconnectOnError bool
}

// DefaultPoolConfig returns reasonable defaults for kind, matching the
// timing conventions real Modbus masters use for each transport family:
// roughly 60ms between back-to-back TCP/UDP transactions and 35ms on
// serial links, both defending against real PLCs that simply cannot
// field requests faster than that.
func DefaultPoolConfig(kind TransportKind) PoolConfig {
	switch kind {
	case TransportTCP, TransportUDP:
		return PoolConfig{
			ConnectTimeout:         5 * time.Second,
			ResponseTimeout:        2 * time.Second,
			MinTransactionInterval: 60 * time.Millisecond,
			MaxRetries:             2,
			ReconnectAfterAge:      0,
			DisconnectOnError:      true,
		}
	default: // RTU/ASCII
		return PoolConfig{
			ConnectTimeout:         1 * time.Second,
			ResponseTimeout:        1 * time.Second,
			MinTransactionInterval: 35 * time.Millisecond,
			MaxRetries:             3,
			ReconnectAfterAge:      0,
			DisconnectOnError:      false,
		}
	}
}
