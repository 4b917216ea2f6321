package wire

import (
	"encoding/binary"
	"fmt"
)

// RTUCodec frames ADUs for Modbus RTU serial: unit id, PDU, CRC16, no
// transaction id. Decode reports the responding unit id in ADU.UnitID;
// nothing in this module compares it with the request's unit id.
type RTUCodec struct{}

// NewRTUCodec returns a Codec for Modbus RTU framing.
func NewRTUCodec() *RTUCodec {
	return &RTUCodec{}
}

// Headless reports that RTU carries no transaction id.
func (RTUCodec) Headless() bool { return true }

// Encode serializes adu as unitID | functionCode | data | crc16.
func (RTUCodec) Encode(adu ADU) ([]byte, error) {
	ret := make([]byte, 2+len(adu.PDU.Data)+2)
	ret[0] = adu.UnitID
	ret[1] = byte(adu.PDU.FunctionCode)
	copy(ret[2:], adu.PDU.Data)
	crc := RtuCrc(ret[:len(ret)-2])
	binary.BigEndian.PutUint16(ret[len(ret)-2:], crc)
	return ret, nil
}

// Decode parses a raw RTU frame, validating its CRC16.
func (RTUCodec) Decode(raw []byte) (ADU, error) {
	if err := CheckRtuCrc(raw); err != nil {
		return ADU{}, err
	}
	if len(raw) < 4 {
		return ADU{}, fmt.Errorf("wire: short RTU packet, got %d bytes", len(raw))
	}
	return ADU{
		UnitID: raw[0],
		PDU: PDU{
			FunctionCode: FunctionCode(raw[1]),
			Data:         raw[2 : len(raw)-2],
		},
	}, nil
}
