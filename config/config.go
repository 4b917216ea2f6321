// Package config is an optional, declarative YAML front end for the
// Manager: it turns a list of endpoints and polls into the typed
// endpoint.Key/task.PollRegistration values manager.Manager consumes.
// This is not part of the core: the manager package never imports it,
// so an application that wants its own config source (a database, a
// flag set, a discovery service) can ignore this package entirely.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/simpleiot/modbusmgr/endpoint"
	"github.com/simpleiot/modbusmgr/request"
	"github.com/simpleiot/modbusmgr/task"
)

// File is the top-level YAML document shape.
type File struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig describes one physical link and the pool policy and
// poll list to apply to it.
type EndpointConfig struct {
	ID         string     `yaml:"id"`
	Transport  string     `yaml:"transport"` // tcp, udp, rtu, ascii
	Host       string     `yaml:"host"`
	Port       int        `yaml:"port"`
	SerialPort string     `yaml:"serial_port"`
	BaudRate   int        `yaml:"baud_rate"`
	UnitID     uint8      `yaml:"unit_id"`
	Pool       PoolConfig `yaml:"pool"`
	Polls      []PollSpec `yaml:"polls"`
}

// PoolConfig mirrors endpoint.PoolConfig with YAML-friendly millisecond
// fields, matching the *_ms convention this corpus's config loaders use.
type PoolConfig struct {
	ConnectTimeoutMs         int  `yaml:"connect_timeout_ms"`
	ResponseTimeoutMs        int  `yaml:"response_timeout_ms"`
	MinTransactionIntervalMs int  `yaml:"min_transaction_interval_ms"`
	MaxRetries               int  `yaml:"max_retries"`
	ReconnectAfterAgeMs      int  `yaml:"reconnect_after_age_ms"`
	DisconnectOnError        bool `yaml:"disconnect_on_error"`
}

// PollSpec describes one periodic read registered against an endpoint.
type PollSpec struct {
	ID             string `yaml:"id"`
	Kind           string `yaml:"kind"` // coil, discrete_input, holding_register, input_register
	Address        uint16 `yaml:"address"`
	Count          uint16 `yaml:"count"`
	InitialDelayMs int    `yaml:"initial_delay_ms"`
	PeriodMs       int    `yaml:"period_ms"`
}

// Load reads and parses path into a File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &f, nil
}

// Key builds the endpoint.Key described by ec.
func (ec EndpointConfig) Key() (endpoint.Key, error) {
	switch ec.Transport {
	case "tcp":
		return endpoint.NewTCPKey(ec.Host, ec.Port, byte(ec.UnitID)), nil
	case "udp":
		return endpoint.NewUDPKey(ec.Host, ec.Port, byte(ec.UnitID)), nil
	case "rtu":
		return endpoint.NewRTUKey(ec.SerialPort, ec.BaudRate, byte(ec.UnitID)), nil
	case "ascii":
		return endpoint.NewASCIIKey(ec.SerialPort, ec.BaudRate, byte(ec.UnitID)), nil
	default:
		return endpoint.Key{}, fmt.Errorf("config: endpoint %s: unknown transport %q", ec.ID, ec.Transport)
	}
}

// PoolConfig converts the YAML pool block to endpoint.PoolConfig,
// falling back to endpoint.DefaultPoolConfig for any zero-valued numeric
// field. DisconnectOnError is always taken from the YAML block, so
// leaving it out sets it to false even where the default is true.
func (ec EndpointConfig) PoolConfig(kind endpoint.TransportKind) endpoint.PoolConfig {
	def := endpoint.DefaultPoolConfig(kind)
	cfg := ec.Pool

	out := def
	if cfg.ConnectTimeoutMs > 0 {
		out.ConnectTimeout = time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond
	}
	if cfg.ResponseTimeoutMs > 0 {
		out.ResponseTimeout = time.Duration(cfg.ResponseTimeoutMs) * time.Millisecond
	}
	if cfg.MinTransactionIntervalMs > 0 {
		out.MinTransactionInterval = time.Duration(cfg.MinTransactionIntervalMs) * time.Millisecond
	}
	if cfg.MaxRetries > 0 {
		out.MaxRetries = cfg.MaxRetries
	}
	if cfg.ReconnectAfterAgeMs > 0 {
		out.ReconnectAfterAge = time.Duration(cfg.ReconnectAfterAgeMs) * time.Millisecond
	}
	out.DisconnectOnError = cfg.DisconnectOnError

	return out
}

func registerKind(s string) (request.RegisterKind, error) {
	switch s {
	case "coil":
		return request.KindCoil, nil
	case "discrete_input":
		return request.KindDiscreteInput, nil
	case "holding_register":
		return request.KindHoldingRegister, nil
	case "input_register":
		return request.KindInputRegister, nil
	default:
		return 0, fmt.Errorf("config: unknown register kind %q", s)
	}
}

// PollRegistration builds a task.PollRegistration from ps for key,
// suitable for passing straight to manager.Manager.RegisterRegularPoll.
func (ps PollSpec) PollRegistration(key endpoint.Key) (task.PollRegistration, error) {
	kind, err := registerKind(ps.Kind)
	if err != nil {
		return task.PollRegistration{}, err
	}

	return task.PollRegistration{
		Key: task.NewPollKey(),
		Task: task.Task{
			Endpoint: key,
			Op:       task.OpRead,
			Read: request.ReadRequest{
				Kind:    kind,
				Address: ps.Address,
				Count:   ps.Count,
			},
		},
		InitialDelay: time.Duration(ps.InitialDelayMs) * time.Millisecond,
		Period:       time.Duration(ps.PeriodMs) * time.Millisecond,
	}, nil
}
