package wire

import "testing"

func TestPutUint16ArrayAndBack(t *testing.T) {
	in := []uint16{1, 0x1234, 0xffff, 0}
	data := PutUint16Array(in...)
	out := Uint16Array(data)

	if len(out) != len(in) {
		t.Fatalf("expected %v elements, got %v", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %v: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func TestHexDump(t *testing.T) {
	if got := HexDump(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := HexDump([]byte{0x01, 0xab}); got != "01 ab" {
		t.Errorf("expected %q, got %q", "01 ab", got)
	}
}
