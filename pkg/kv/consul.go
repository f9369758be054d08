package kv

import (
	"strconv"

	capi "github.com/hashicorp/consul/api"
)

// ConsulKV stores state in a consul cluster's KV store, for multi-host
// deployments where more than one ProcessManager instance (or a monitoring
// tool) needs to observe the current scheme.
type ConsulKV struct {
	client *capi.Client
	kv     *capi.KV
}

// NewConsulKV connects to the consul agent at addr ("" for the default
// local agent).
func NewConsulKV(addr string) (*ConsulKV, error) {
	cfg := capi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := capi.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &ConsulKV{client: client, kv: client.KV()}, nil
}

// Get returns the value stored at key.
func (c *ConsulKV) Get(key string) (string, error) {
	pair, _, err := c.kv.Get(key, nil)
	if err != nil {
		return "", err
	}
	if pair == nil {
		return "", &notFoundError{key: key}
	}
	return string(pair.Value), nil
}

// Put stores value at key.
func (c *ConsulKV) Put(key, value string) error {
	_, err := c.kv.Put(&capi.KVPair{Key: key, Value: []byte(value)}, nil)
	return err
}

// Delete removes key.
func (c *ConsulKV) Delete(key string) error {
	_, err := c.kv.Delete(key, nil)
	return err
}

// List returns every key with the given prefix.
func (c *ConsulKV) List(prefix string) ([]string, error) {
	keys, _, err := c.kv.Keys(prefix, "", nil)
	return keys, err
}

// Close is a no-op: the consul client owns no persistent handle.
func (c *ConsulKV) Close() error { return nil }

// ResolveRelayAddr looks up the third-level relay's host:port from consul
// service discovery under the given service name (the CLI's default is
// "sgct-relay"), used when the
// engine is not configured with a static relay host/port (see
// pkg/thirdlevel). Returns "" with no error if the service is not
// registered, so callers can fall back to static configuration.
func ResolveRelayAddr(addr, service string) (string, error) {
	cfg := capi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := capi.NewClient(cfg)
	if err != nil {
		return "", err
	}
	entries, _, err := client.Health().Service(service, "", true, nil)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	svc := entries[0].Service
	return svc.Address + ":" + strconv.Itoa(svc.Port), nil
}
