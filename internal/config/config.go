// Package config loads runtime configuration from the environment, the
// same os.Getenv-with-default idiom every teacher cmd/*/main.go uses
// (apps/audit-service, apps/cdc-worker, apps/notification-service) — no
// config file parser, no reflection-based env library.
package config

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Mongo holds the document-store connection settings (spec.md §6.2).
type Mongo struct {
	URI            string
	Database       string
	AuditDatabase  string
}

// MQTT holds the broker connection settings (spec.md §6.5).
type MQTT struct {
	BrokerURL      string
	Username       string
	Password       string
	ClientIDPrefix string
	KeepAlive      time.Duration
	QoS            int
}

// DataFlow holds the event emitter/broadcaster settings (spec.md §6.5).
type DataFlow struct {
	ChannelCapacity int
	RingBufferSize  int
	CollectorURL    string
	HTTPAddr        string
}

// Writer holds the dual-write protocol settings (spec.md §6.5).
type Writer struct {
	MaxRetries        int
	ProtocolTimeout   time.Duration
	PerPatientStripes int
}

// Resolver holds the patient-resolution cache settings (spec.md §6.5).
type Resolver struct {
	CacheTTL time.Duration
	RedisURL string // empty disables Redis: in-memory cache when CacheTTL > 0, no cache otherwise
}

// Listener holds the MQTT dispatch concurrency setting (spec.md §6.5).
type Listener struct {
	WorkerPool int
}

// Shutdown holds the graceful-shutdown drain budgets (spec.md §5).
type Shutdown struct {
	DrainHandlers time.Duration // time to let in-flight MQTT handlers finish
	FlushFlow     time.Duration // time to let the flow emitter drain its channel
}

// Vault holds secret-manager connection settings, unchanged from the
// teacher's VAULT_ADDR/VAULT_TOKEN/VAULT_SECRET_PATH triad.
type Vault struct {
	Address    string
	Token      string
	SecretPath string
}

// Config is the fully resolved runtime configuration for cmd/core.
type Config struct {
	Mongo        Mongo
	MQTT         MQTT
	DataFlow     DataFlow
	Writer       Writer
	Resolver     Resolver
	Listener     Listener
	Shutdown     Shutdown
	Vault        Vault
	OTelEndpoint string
}

// Load builds a Config from the environment, filling in spec.md §6.5's
// documented defaults wherever a variable is unset.
func Load() Config {
	return Config{
		Mongo: Mongo{
			URI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:      getEnv("MONGO_DATABASE", "AMY"),
			AuditDatabase: getEnv("MONGO_AUDIT_DATABASE", "AMY"),
		},
		MQTT: MQTT{
			BrokerURL:      getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
			Username:       getEnv("MQTT_USERNAME", ""),
			Password:       getEnv("MQTT_PASSWORD", ""),
			ClientIDPrefix: getEnv("MQTT_CLIENT_ID_PREFIX", "amy-core"),
			KeepAlive:      getEnvDurationSeconds("MQTT_KEEPALIVE_S", 60),
			QoS:            getEnvInt("MQTT_QOS", 1),
		},
		DataFlow: DataFlow{
			ChannelCapacity: getEnvInt("DATAFLOW_CHANNEL_CAPACITY", 1000),
			RingBufferSize:  getEnvInt("DATAFLOW_RING_BUFFER_SIZE", 500),
			CollectorURL:    getEnv("DATAFLOW_COLLECTOR_URL", ""),
			HTTPAddr:        getEnv("DATAFLOW_HTTP_ADDR", ":8090"),
		},
		Writer: Writer{
			MaxRetries:        getEnvInt("WRITER_MAX_RETRIES", 3),
			ProtocolTimeout:   getEnvDurationSeconds("WRITER_PROTOCOL_TIMEOUT_S", 15),
			PerPatientStripes: getEnvInt("WRITER_PER_PATIENT_STRIPES", 1024),
		},
		Resolver: Resolver{
			CacheTTL: getEnvDurationSeconds("RESOLVER_CACHE_TTL_S", 60),
			RedisURL: getEnv("RESOLVER_REDIS_URL", ""),
		},
		Listener: Listener{
			WorkerPool: getEnvInt("LISTENER_WORKER_POOL", 4*runtime.NumCPU()),
		},
		Shutdown: Shutdown{
			DrainHandlers: getEnvDurationSeconds("SHUTDOWN_DRAIN_S", 10),
			FlushFlow:     getEnvDurationSeconds("SHUTDOWN_FLOW_FLUSH_S", 2),
		},
		Vault: Vault{
			Address:    getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:      getEnv("VAULT_TOKEN", "root"),
			SecretPath: getEnv("VAULT_SECRET_PATH", "secret/data/arc/amy-core"),
		},
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDurationSeconds(key string, fallbackSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackSeconds)) * time.Second
}
