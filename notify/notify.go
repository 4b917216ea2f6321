// Package notify republishes Manager pool-configuration changes onto
// NATS for out-of-process observers, implementing manager.Listener.
// Entirely optional — manager.Manager works with zero Listeners.
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/simpleiot/modbusmgr/endpoint"
)

// SubjectPrefix is prepended to every published subject, mirroring the
// "device.<id>.cmd"-style subject hierarchy this corpus's NATS publishers
// use.
const SubjectPrefix = "modbusmgr"

// PoolConfigChange is the JSON payload published when an endpoint's pool
// configuration changes.
type PoolConfigChange struct {
	Endpoint  string    `json:"endpoint"`
	Timestamp time.Time `json:"timestamp"`
	Config    endpoint.PoolConfig
}

// Publisher republishes config changes onto a NATS connection.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher wraps an already-connected NATS client.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// OnEndpointPoolConfigChanged implements manager.Listener by publishing
// the change to "modbusmgr.endpoint.config.changed".
func (p *Publisher) OnEndpointPoolConfigChanged(key endpoint.Key, cfg endpoint.PoolConfig) {
	change := PoolConfigChange{
		Endpoint:  key.String(),
		Timestamp: time.Now(),
		Config:    cfg,
	}

	data, err := json.Marshal(change)
	if err != nil {
		return
	}

	subject := fmt.Sprintf("%s.endpoint.config.changed", SubjectPrefix)
	_ = p.nc.Publish(subject, data)
}
