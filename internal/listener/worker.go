package listener

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/arc-self/amy-core/internal/codec"
)

// Dispatcher is invoked once per inbound MQTT message; the Runtime
// implements it. family is resolved from the topic, since the AVA4
// worker's connection carries both the gateway and sub-device families on
// separate topics (spec.md §4.4).
type Dispatcher interface {
	Dispatch(family codec.Family, topic string, payload []byte)
}

// worker owns one MQTT connection and its topic subscriptions, matching
// spec.md §4.4's "three independent subscriber workers" — one per device
// group (AVA4, Kati, Qube). Grounded on the Aadityaa2004 mqtingestor
// Start/Stop/onMessage shape (other_examples), adapted from a single flat
// topic to a fixed topic set per group and state-machine tracking
// (spec.md §4.8).
type worker struct {
	group   string
	topics  []string
	cfg     Config
	logger  *zap.Logger
	dispatcher Dispatcher
	sem     chan struct{}

	mu     sync.Mutex
	client mqtt.Client
	state  atomic.Value // WorkerState
}

func newWorker(group string, topics []string, cfg Config, sem chan struct{}, dispatcher Dispatcher, logger *zap.Logger) *worker {
	w := &worker{
		group:      group,
		topics:     topics,
		cfg:        cfg,
		logger:     logger.With(zap.String("worker_group", group)),
		dispatcher: dispatcher,
		sem:        sem,
	}
	w.setState(StateDisconnected)
	return w
}

func (w *worker) State() WorkerState {
	return w.state.Load().(WorkerState)
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(s)
}

// Start connects to the broker and subscribes every topic for this
// family. Connection loss triggers paho's own reconnect loop, bounded to
// spec.md §4.4's 1s->30s exponential backoff via MaxReconnectInterval.
func (w *worker) Start() error {
	w.setState(StateConnecting)

	opts := mqtt.NewClientOptions().
		AddBroker(w.cfg.BrokerURL).
		SetClientID(fmt.Sprintf("%s-%s", w.cfg.ClientIDPrefix, w.group)).
		SetOrderMatters(false).
		SetKeepAlive(w.cfg.KeepAlive).
		SetConnectTimeout(w.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(w.cfg.MaxReconnect).
		SetConnectRetry(true).
		SetConnectRetryInterval(1 * time.Second).
		SetCleanSession(false)

	if w.cfg.Username != "" {
		opts.SetUsername(w.cfg.Username)
		opts.SetPassword(w.cfg.Password)
	}

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		w.setState(StateDisconnected)
		w.logger.Warn("mqtt connection lost", zap.Error(err))
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		w.setState(StateConnecting)
	}
	opts.OnConnect = func(c mqtt.Client) {
		for _, topic := range w.topics {
			token := c.Subscribe(topic, w.cfg.QoS, w.onMessage)
			if token.Wait() && token.Error() != nil {
				w.logger.Error("subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
				continue
			}
			w.logger.Info("subscribed", zap.String("topic", topic))
		}
		w.setState(StateSubscribed)
		w.setState(StateRunning)
	}

	w.mu.Lock()
	w.client = mqtt.NewClient(opts)
	client := w.client
	w.mu.Unlock()

	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		w.setState(StateDisconnected)
		return fmt.Errorf("listener: connect %s worker: %w", w.group, token.Error())
	}
	return nil
}

// Stop disconnects, terminal from any state (spec.md §4.8).
func (w *worker) Stop() {
	w.mu.Lock()
	client := w.client
	w.mu.Unlock()
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
	w.setState(StateTerminated)
}

// onMessage bounds concurrent processing to cfg.WorkerPool (spec.md §6.5
// listener.worker_pool) via the shared semaphore, then hands off to the
// dispatcher. Message order within a single paho callback is not
// preserved across the pool — per-patient ordering is enforced downstream
// by the writer's striped lock (spec.md §4.4, §4.3).
func (w *worker) onMessage(_ mqtt.Client, m mqtt.Message) {
	family, ok := codec.FamilyForTopic(m.Topic())
	if !ok {
		w.logger.Warn("message on unrecognised topic", zap.String("topic", m.Topic()))
		return
	}
	w.sem <- struct{}{}
	defer func() { <-w.sem }()
	w.dispatcher.Dispatch(family, m.Topic(), m.Payload())
}
