package wire

import (
	"encoding/binary"
	"fmt"
)

// mbapHeaderLen is the length of the Modbus Application Protocol header:
// transaction id (2) + protocol id (2) + length (2) + unit id (1).
const mbapHeaderLen = 7

// modbusProtocolID is always 0 for Modbus; other values are reserved.
const modbusProtocolID = 0

// TCPCodec frames ADUs with a real Modbus MBAP header, used for both TCP
// and UDP transports (Modbus/UDP reuses the TCP ADU layout). This fixes
// the RTU-over-TCP shortcut that framed "TCP" traffic with a CRC16
// trailer instead of a transaction-id-bearing header.
type TCPCodec struct{}

// NewTCPCodec returns a Codec for Modbus TCP/UDP (MBAP) framing.
func NewTCPCodec() *TCPCodec {
	return &TCPCodec{}
}

// Headless reports that TCP/UDP carries a transaction id to validate.
func (TCPCodec) Headless() bool { return false }

// Encode serializes adu as an MBAP header followed by the PDU.
func (TCPCodec) Encode(adu ADU) ([]byte, error) {
	pduLen := 1 + len(adu.PDU.Data) // function code + data
	ret := make([]byte, mbapHeaderLen+pduLen)

	binary.BigEndian.PutUint16(ret[0:2], adu.TransactionID)
	binary.BigEndian.PutUint16(ret[2:4], modbusProtocolID)
	binary.BigEndian.PutUint16(ret[4:6], uint16(pduLen+1)) // + unit id
	ret[6] = adu.UnitID
	ret[7] = byte(adu.PDU.FunctionCode)
	copy(ret[8:], adu.PDU.Data)

	return ret, nil
}

// Decode parses a raw MBAP frame, validating the protocol id and the
// declared length against the bytes actually present.
func (TCPCodec) Decode(raw []byte) (ADU, error) {
	if len(raw) < mbapHeaderLen+1 {
		return ADU{}, fmt.Errorf("wire: short MBAP packet, got %d bytes", len(raw))
	}

	transactionID := binary.BigEndian.Uint16(raw[0:2])
	protocolID := binary.BigEndian.Uint16(raw[2:4])
	length := binary.BigEndian.Uint16(raw[4:6])
	unitID := raw[6]

	if protocolID != modbusProtocolID {
		return ADU{}, fmt.Errorf("wire: unexpected MBAP protocol id %d", protocolID)
	}
	if int(length) != len(raw)-6 {
		return ADU{}, fmt.Errorf("wire: MBAP length %d does not match payload of %d bytes", length, len(raw)-6)
	}

	return ADU{
		TransactionID: transactionID,
		UnitID:        unitID,
		PDU: PDU{
			FunctionCode: FunctionCode(raw[7]),
			Data:         raw[8:],
		},
	}, nil
}
