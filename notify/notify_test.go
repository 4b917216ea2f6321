package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/simpleiot/modbusmgr/endpoint"
)

func TestPoolConfigChangeMarshalsToJSON(t *testing.T) {
	change := PoolConfigChange{
		Endpoint:  endpoint.NewTCPKey("10.0.0.1", 502, 1).String(),
		Timestamp: time.Now(),
		Config:    endpoint.DefaultPoolConfig(endpoint.TransportTCP),
	}

	data, err := json.Marshal(change)
	if err != nil {
		t.Fatal(err)
	}

	var decoded PoolConfigChange
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Endpoint != change.Endpoint {
		t.Errorf("expected endpoint %q, got %q", change.Endpoint, decoded.Endpoint)
	}
}
