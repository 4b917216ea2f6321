package request

import (
	"testing"

	"github.com/simpleiot/modbusmgr/wire"
)

func TestReadRequestPDU(t *testing.T) {
	cases := []struct {
		kind RegisterKind
		fc   wire.FunctionCode
	}{
		{KindCoil, wire.FuncCodeReadCoils},
		{KindDiscreteInput, wire.FuncCodeReadDiscreteInputs},
		{KindHoldingRegister, wire.FuncCodeReadHoldingRegisters},
		{KindInputRegister, wire.FuncCodeReadInputRegisters},
	}
	for _, c := range cases {
		pdu, err := ReadRequest{Kind: c.kind, Address: 10, Count: 2}.PDU()
		if err != nil {
			t.Fatalf("%v: %v", c.kind, err)
		}
		if pdu.FunctionCode != c.fc {
			t.Errorf("%v: expected function code %v, got %v", c.kind, c.fc, pdu.FunctionCode)
		}
	}
}

func TestWriteRequestPDUSingleVsMultiple(t *testing.T) {
	pdu, err := WriteRequest{Kind: KindCoil, Address: 5, Bits: []bool{true}}.PDU()
	if err != nil {
		t.Fatal(err)
	}
	if pdu.FunctionCode != wire.FuncCodeWriteSingleCoil {
		t.Errorf("expected single-coil write, got %v", pdu.FunctionCode)
	}

	pdu, err = WriteRequest{Kind: KindCoil, Address: 5, Bits: []bool{true, false, true}, WriteMultiple: true}.PDU()
	if err != nil {
		t.Fatal(err)
	}
	if pdu.FunctionCode != wire.FuncCodeWriteMultipleCoils {
		t.Errorf("expected multiple-coil write, got %v", pdu.FunctionCode)
	}

	// WriteMultiple forces FC15/16 even for a single element.
	pdu, err = WriteRequest{Kind: KindCoil, Address: 5, Bits: []bool{true}, WriteMultiple: true}.PDU()
	if err != nil {
		t.Fatal(err)
	}
	if pdu.FunctionCode != wire.FuncCodeWriteMultipleCoils {
		t.Errorf("expected multiple-coil write for a single-element WriteMultiple request, got %v", pdu.FunctionCode)
	}

	pdu, err = WriteRequest{Kind: KindHoldingRegister, Address: 5, Registers: []uint16{1}}.PDU()
	if err != nil {
		t.Fatal(err)
	}
	if pdu.FunctionCode != wire.FuncCodeWriteSingleRegister {
		t.Errorf("expected single-register write, got %v", pdu.FunctionCode)
	}

	pdu, err = WriteRequest{Kind: KindHoldingRegister, Address: 5, Registers: []uint16{1, 2}, WriteMultiple: true}.PDU()
	if err != nil {
		t.Fatal(err)
	}
	if pdu.FunctionCode != wire.FuncCodeWriteMultipleRegisters {
		t.Errorf("expected multiple-register write, got %v", pdu.FunctionCode)
	}

	// A single register with WriteMultiple set still takes FC16.
	pdu, err = WriteRequest{Kind: KindHoldingRegister, Address: 5, Registers: []uint16{1}, WriteMultiple: true}.PDU()
	if err != nil {
		t.Fatal(err)
	}
	if pdu.FunctionCode != wire.FuncCodeWriteMultipleRegisters {
		t.Errorf("expected multiple-register write for a single-element WriteMultiple request, got %v", pdu.FunctionCode)
	}
}

func TestRequestPDURejectsUnwritableKind(t *testing.T) {
	if _, err := (ReadRequest{Kind: RegisterKind(99)}).PDU(); err == nil {
		t.Error("expected an error for an unknown register kind")
	}
	if _, err := (WriteRequest{Kind: KindDiscreteInput}).PDU(); err == nil {
		t.Error("expected an error writing to a read-only register kind")
	}
}

func TestRegisterKindWritable(t *testing.T) {
	if !KindCoil.Writable() || !KindHoldingRegister.Writable() {
		t.Error("coils and holding registers should be writable")
	}
	if KindDiscreteInput.Writable() || KindInputRegister.Writable() {
		t.Error("discrete inputs and input registers should not be writable")
	}
}
