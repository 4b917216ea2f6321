package wire

import (
	"fmt"
	"io"
)

// IoSimPort is one end of an IoSim pair.
type IoSimPort struct {
	name  string
	tx    chan byte
	rx    chan byte
	debug bool
}

// NewIoSimPort returns a new port of an IoSim.
func NewIoSimPort(name string, tx chan byte, rx chan byte, debug bool) *IoSimPort {
	return &IoSimPort{
		name:  name,
		tx:    tx,
		rx:    rx,
		debug: debug,
	}
}

// Read reads data from the IoSimPort.
func (isp *IoSimPort) Read(data []byte) (int, error) {
	data[0] = <-isp.rx
	if isp.debug {
		fmt.Printf("%v Read (1): %v\n", isp.name, HexDump(data[:1]))
	}
	return 1, nil
}

// Write writes data to the IoSimPort.
func (isp *IoSimPort) Write(data []byte) (int, error) {
	for _, b := range data {
		isp.tx <- b
	}
	if isp.debug {
		fmt.Printf("%v Write: %v\n", isp.name, HexDump(data))
	}
	return len(data), nil
}

// IoSim simulates a back-to-back serial cable, exposing an io.ReadWriter
// for both ends, as a stand-in for a real serial port or socket. None of
// this module's tests use it.
type IoSim struct {
	aToB  chan byte
	bToA  chan byte
	debug bool
}

// NewIoSim creates a new IO simulator.
func NewIoSim(debug bool) *IoSim {
	return &IoSim{
		aToB:  make(chan byte, 500),
		bToA:  make(chan byte, 500),
		debug: debug,
	}
}

// GetA returns the A port from an IoSim.
func (is *IoSim) GetA() io.ReadWriter {
	return NewIoSimPort("A", is.aToB, is.bToA, is.debug)
}

// GetB returns the B port from an IoSim.
func (is *IoSim) GetB() io.ReadWriter {
	return NewIoSimPort("B", is.bToA, is.aToB, is.debug)
}
