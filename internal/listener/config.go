package listener

import (
	"runtime"
	"time"
)

// Config tunes the three MQTT subscriber workers (spec.md §4.4, §6.5).
type Config struct {
	BrokerURL      string // e.g. "tcp://broker:1883" or "ssl://broker:8883"
	Username       string
	Password       string
	ClientIDPrefix string
	KeepAlive      time.Duration // default 60s
	QoS            byte          // default 1
	ConnectTimeout time.Duration // default 10s
	MaxReconnect   time.Duration // backoff ceiling, default 30s
	WorkerPool     int           // concurrent message-processing goroutines, default 4*NumCPU
}

// DefaultConfig matches spec.md §6.5's documented defaults.
func DefaultConfig() Config {
	return Config{
		KeepAlive:      60 * time.Second,
		QoS:            1,
		ConnectTimeout: 10 * time.Second,
		MaxReconnect:   30 * time.Second,
		WorkerPool:     4 * runtime.NumCPU(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.KeepAlive <= 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.QoS == 0 {
		c.QoS = d.QoS
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.MaxReconnect <= 0 {
		c.MaxReconnect = d.MaxReconnect
	}
	if c.WorkerPool <= 0 {
		c.WorkerPool = d.WorkerPool
	}
	return c
}
