package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/simpleiot/modbusmgr/endpoint"
	"github.com/simpleiot/modbusmgr/request"
)

const sampleYAML = `
endpoints:
  - id: plc1
    transport: tcp
    host: 10.0.0.5
    port: 502
    unit_id: 1
    pool:
      max_retries: 5
      min_transaction_interval_ms: 25
    polls:
      - id: temps
        kind: holding_register
        address: 100
        count: 4
        initial_delay_ms: 0
        period_ms: 1000
  - id: rtu1
    transport: rtu
    serial_port: /dev/ttyUSB0
    baud_rate: 19200
    unit_id: 3
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "modbusmgr.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesEndpointsAndPolls(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(f.Endpoints))
	}

	plc1 := f.Endpoints[0]
	key, err := plc1.Key()
	if err != nil {
		t.Fatal(err)
	}
	want := endpoint.NewTCPKey("10.0.0.5", 502, 1)
	if key != want {
		t.Errorf("expected key %v, got %v", want, key)
	}

	if len(plc1.Polls) != 1 {
		t.Fatalf("expected 1 poll, got %d", len(plc1.Polls))
	}
	reg, err := plc1.Polls[0].PollRegistration(key)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Task.Read.Kind != request.KindHoldingRegister || reg.Task.Read.Address != 100 || reg.Task.Read.Count != 4 {
		t.Errorf("unexpected read request: %+v", reg.Task.Read)
	}
	if reg.Period != time.Second {
		t.Errorf("expected 1s period, got %v", reg.Period)
	}
}

func TestEndpointConfigPoolConfigMergesOverridesOntoDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	cfg := f.Endpoints[0].PoolConfig(endpoint.TransportTCP)
	if cfg.MaxRetries != 5 {
		t.Errorf("expected overridden MaxRetries=5, got %d", cfg.MaxRetries)
	}
	if cfg.MinTransactionInterval != 25*time.Millisecond {
		t.Errorf("expected overridden interval, got %v", cfg.MinTransactionInterval)
	}
	def := endpoint.DefaultPoolConfig(endpoint.TransportTCP)
	if cfg.ConnectTimeout != def.ConnectTimeout {
		t.Errorf("expected unset ConnectTimeout to fall back to default, got %v", cfg.ConnectTimeout)
	}
}

func TestEndpointConfigKeyForRTU(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	key, err := f.Endpoints[1].Key()
	if err != nil {
		t.Fatal(err)
	}
	if key.Transport != endpoint.TransportRTU || key.SerialPort != "/dev/ttyUSB0" || key.BaudRate != 19200 {
		t.Errorf("unexpected rtu key: %+v", key)
	}
}

func TestEndpointConfigKeyRejectsUnknownTransport(t *testing.T) {
	ec := EndpointConfig{ID: "bad", Transport: "carrier-pigeon"}
	if _, err := ec.Key(); err == nil {
		t.Error("expected an error for an unknown transport")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/modbusmgr.yaml"); err == nil {
		t.Error("expected an error for a missing file")
	}
}
