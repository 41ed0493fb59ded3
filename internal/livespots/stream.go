package livespots

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/arunderwood/nextskip-sub005/internal/domain"
	"github.com/arunderwood/nextskip-sub005/internal/logging"
)

// Config describes the reception-report broker subscription.
type Config struct {
	Broker   string // e.g. "tcp://mqtt.pskreporter.info:1883"
	Topic    string
	ClientID string // a random suffix is appended per process
}

// Stream subscribes to the live reception-report feed and pushes every
// parsed report into the rolling window. The broker pushes; there is no
// fetch cycle, no retry policy and no persistence on this path.
type Stream struct {
	cfg    Config
	window *Window
	client mqtt.Client

	lastMessage atomic.Int64 // unix nanos of the last parsed report
	parsed      atomic.Int64
	malformed   atomic.Int64
}

// reportPayload is the broker's wire format: terse keys, frequency in
// Hz, timestamp in unix seconds.
type reportPayload struct {
	FrequencyHz  float64 `json:"f"`
	Mode         string  `json:"md"`
	Report       int     `json:"rp"`
	Time         int64   `json:"t"`
	SenderCall   string  `json:"sc"`
	SenderLoc    string  `json:"sl"`
	ReceiverCall string  `json:"rc"`
	ReceiverLoc  string  `json:"rl"`
}

// NewStream creates a stream feeding window. Call Start to connect.
func NewStream(cfg Config, window *Window) *Stream {
	return &Stream{
		cfg:    cfg,
		window: window,
	}
}

// Start connects to the broker in the background. Subscribing happens in
// the on-connect handler so it survives reconnects. A broker that is
// down at startup is not an error; the client keeps retrying and the
// health surface shows the stream as disconnected until it recovers.
func (s *Stream) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", s.cfg.ClientID, uuid.NewString()[:8]))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logging.Info("Live stream connected", "broker", s.cfg.Broker)
		token := c.Subscribe(s.cfg.Topic, 0, s.handleMessage)
		go func() {
			token.Wait()
			if err := token.Error(); err != nil {
				logging.Error("Live stream subscribe failed", "topic", s.cfg.Topic, "error", err)
				return
			}
			logging.Debug("Live stream subscribed", "topic", s.cfg.Topic)
		}()
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logging.Warn("Live stream connection lost", "broker", s.cfg.Broker, "error", err)
	})

	s.client = mqtt.NewClient(opts)

	token := s.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logging.Warn("Live stream still connecting", "broker", s.cfg.Broker)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.cfg.Broker, err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *Stream) Close() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	logging.Info("Live stream closed",
		"parsed", s.parsed.Load(),
		"malformed", s.malformed.Load())
}

func (s *Stream) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var p reportPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		s.malformed.Add(1)
		logging.Debug("Live stream payload dropped", "topic", msg.Topic(), "error", err)
		return
	}

	reportedAt := time.Unix(p.Time, 0).UTC()
	if p.Time <= 0 {
		reportedAt = time.Now().UTC()
	}

	s.window.Add(domain.PathReport{
		Band:            domain.BandForFrequency(p.FrequencyHz / 1000),
		Mode:            domain.NormalizeMode(p.Mode),
		SenderCall:      p.SenderCall,
		ReceiverCall:    p.ReceiverCall,
		SenderLocator:   p.SenderLoc,
		ReceiverLocator: p.ReceiverLoc,
		SNR:             p.Report,
		ReportedAt:      reportedAt,
	})
	s.parsed.Add(1)
	s.lastMessage.Store(time.Now().UnixNano())
}

// Connected reports whether the broker connection is currently up.
func (s *Stream) Connected() bool {
	return s.client != nil && s.client.IsConnectionOpen()
}

// LastMessageAt returns the wall-clock time the last report arrived, or
// the zero time when nothing has arrived yet.
func (s *Stream) LastMessageAt() time.Time {
	nanos := s.lastMessage.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
