package embeddednats

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"atlas-overwatch/pkg/shared"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

type Config struct {
	Host            string
	Port            int
	DataDir         string
	MaxMemory       int64
	MaxFileStore    int64
	JetStreamDomain string
	DontListen      bool
}

type EmbeddedNATS struct {
	server  *server.Server
	nc      *nats.Conn
	js      nats.JetStreamContext
	config  *Config
	streams map[string]*StreamConfig

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

type StreamConfig struct {
	Name            string
	Subjects        []string
	Retention       nats.RetentionPolicy
	MaxMsgs         int64
	MaxBytes        int64
	MaxAge          time.Duration
	MaxMsgSize      int32
	Replicas        int
	DuplicateWindow time.Duration
	AllowRollup     bool
	AllowDirect     bool
	DiscardPolicy   nats.DiscardPolicy
}

func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            4222,
		DataDir:         "./data/nats",
		MaxMemory:       256 * 1024 * 1024,      // 256MB
		MaxFileStore:    1 * 1024 * 1024 * 1024, // 1GB
		JetStreamDomain: "atlas",
	}
}

func New(cfg *Config) (*EmbeddedNATS, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &EmbeddedNATS{
		config:  cfg,
		streams: make(map[string]*StreamConfig),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

func (en *EmbeddedNATS) Start() error {
	opts := &server.Options{
		Host:       en.config.Host,
		Port:       en.config.Port,
		JetStream:  true,
		StoreDir:   en.config.DataDir,
		DontListen: en.config.DontListen,
		NoSigs:     true,
	}

	// Configure JetStream limits
	opts.JetStreamMaxMemory = en.config.MaxMemory
	opts.JetStreamMaxStore = en.config.MaxFileStore

	if en.config.JetStreamDomain != "" {
		opts.JetStreamDomain = en.config.JetStreamDomain
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}

	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("NATS server not ready for connections")
	}

	en.server = ns

	if err := en.connect(); err != nil {
		return fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	if en.config.DontListen {
		log.Println("[NATS] Embedded server started in-process")
	} else {
		log.Printf("[NATS] Embedded server started on port %d", en.config.Port)
	}
	return nil
}

func (en *EmbeddedNATS) connect() error {
	opts := []nats.Option{
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Printf("[NATS] error: %v", err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[NATS] disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("[NATS] reconnected")
		}),
	}

	url := en.server.ClientURL()
	if en.config.DontListen {
		opts = append(opts, nats.InProcessServer(en.server))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	en.nc = nc
	en.js = js
	return nil
}

func (en *EmbeddedNATS) AddStream(streamConfig *StreamConfig) error {
	if en.js == nil {
		return fmt.Errorf("JetStream not initialized")
	}

	config := &nats.StreamConfig{
		Name:        streamConfig.Name,
		Subjects:    streamConfig.Subjects,
		Retention:   streamConfig.Retention,
		MaxMsgs:     streamConfig.MaxMsgs,
		MaxBytes:    streamConfig.MaxBytes,
		MaxAge:      streamConfig.MaxAge,
		MaxMsgSize:  streamConfig.MaxMsgSize,
		Replicas:    streamConfig.Replicas,
		Duplicates:  streamConfig.DuplicateWindow,
		AllowRollup: streamConfig.AllowRollup,
		AllowDirect: streamConfig.AllowDirect,
		Discard:     streamConfig.DiscardPolicy,
	}

	// Update the stream if it exists, otherwise create it
	stream, err := en.js.StreamInfo(streamConfig.Name)
	if err == nil {
		stream, err = en.js.UpdateStream(config)
		if err != nil {
			return fmt.Errorf("failed to update stream %s: %w", streamConfig.Name, err)
		}
	} else {
		stream, err = en.js.AddStream(config)
		if err != nil {
			return fmt.Errorf("failed to add stream %s: %w", streamConfig.Name, err)
		}
	}

	en.streams[streamConfig.Name] = streamConfig
	log.Printf("[NATS] Stream ready: %s with subjects: %v", stream.Config.Name, stream.Config.Subjects)

	return nil
}

// CreateAtlasStreams declares the inbound transport stream and the engine
// event stream.
func (en *EmbeddedNATS) CreateAtlasStreams() error {
	streams := []StreamConfig{
		{
			Name:            shared.StreamInbound,
			Subjects:        []string{shared.SubjectInboundAll},
			Retention:       nats.LimitsPolicy,
			MaxMsgs:         100000,
			MaxBytes:        256 * 1024 * 1024, // 256MB
			MaxAge:          1 * time.Hour,
			MaxMsgSize:      1024 * 1024, // 1MB
			Replicas:        1,
			DuplicateWindow: 2 * time.Minute,
			AllowRollup:     false,
			AllowDirect:     true,
			DiscardPolicy:   nats.DiscardOld,
		},
		{
			Name:            shared.StreamEvents,
			Subjects:        []string{shared.SubjectEventsAll},
			Retention:       nats.LimitsPolicy,
			MaxMsgs:         50000,
			MaxBytes:        128 * 1024 * 1024, // 128MB
			MaxAge:          24 * time.Hour,
			MaxMsgSize:      256 * 1024, // 256KB
			Replicas:        1,
			DuplicateWindow: 2 * time.Minute,
			AllowRollup:     false,
			AllowDirect:     true,
			DiscardPolicy:   nats.DiscardOld,
		},
	}

	for _, stream := range streams {
		if err := en.AddStream(&stream); err != nil {
			return err
		}
	}

	consumers := []struct {
		name    string
		subject string
	}{
		{shared.ConsumerCOTProcessor, shared.SubjectInboundCOT},
		{shared.ConsumerTaskProcessor, shared.SubjectInboundTask},
		{shared.ConsumerChatProcessor, shared.SubjectInboundChat},
	}
	for _, c := range consumers {
		if err := en.CreateDurableConsumer(shared.StreamInbound, c.name, c.subject); err != nil {
			return err
		}
	}

	return en.CreateDurableConsumer(shared.StreamEvents, shared.ConsumerEventLogger, shared.SubjectEventsAll)
}

func (en *EmbeddedNATS) PublishWithDedup(subject string, data []byte, msgID string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, msgID)

	_, err := en.js.PublishMsg(msg)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// NewMsgID returns a time-ordered unique id for JetStream deduplication.
func (en *EmbeddedNATS) NewMsgID() string {
	en.entropyMu.Lock()
	defer en.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), en.entropy).String()
}

// PublishInbound puts a transport message onto the inbound stream under its
// message type subject. Redelivered frames for the same feature and time are
// dropped by the stream's duplicate window.
func (en *EmbeddedNATS) PublishInbound(msg shared.Message) error {
	if msg.Type == "" {
		return fmt.Errorf("inbound message has no type")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal inbound message: %w", err)
	}
	msgID, ok := inboundMsgID(msg)
	if !ok {
		msgID = en.NewMsgID()
	}
	return en.PublishWithDedup(shared.InboundSubject(msg.Type), data, msgID)
}

// inboundMsgID derives a dedup id from the frame type, feature id and
// feature time. Frames without both fall back to a unique id.
func inboundMsgID(msg shared.Message) (string, bool) {
	var frame struct {
		ID         string `json:"id"`
		Properties struct {
			Time string `json:"time"`
		} `json:"properties"`
	}
	if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &frame) != nil {
		return "", false
	}
	if frame.ID == "" || frame.Properties.Time == "" {
		return "", false
	}
	return fmt.Sprintf("%s:%s:%s", msg.Type, frame.ID, frame.Properties.Time), true
}

func (en *EmbeddedNATS) CreateDurableConsumer(streamName, consumerName string, filterSubject string) error {
	config := &nats.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: filterSubject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 1000,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}

	_, err := en.js.ConsumerInfo(streamName, consumerName)
	if err == nil {
		log.Printf("[NATS] Durable consumer already exists: %s on stream: %s", consumerName, streamName)
		return nil
	}

	_, err = en.js.AddConsumer(streamName, config)
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", consumerName, err)
	}

	log.Printf("[NATS] Created durable consumer: %s on stream: %s", consumerName, streamName)
	return nil
}

func (en *EmbeddedNATS) Connection() *nats.Conn {
	return en.nc
}

func (en *EmbeddedNATS) JetStream() nats.JetStreamContext {
	return en.js
}

func (en *EmbeddedNATS) Shutdown(ctx context.Context) error {
	if en.nc != nil {
		en.nc.Close()
	}

	if en.server != nil {
		en.server.Shutdown()
		en.server.WaitForShutdown()
	}

	return nil
}

func (en *EmbeddedNATS) HealthCheck() error {
	if en.nc == nil {
		return fmt.Errorf("NATS connection not initialized")
	}

	if !en.nc.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}

	if en.server != nil && !en.server.Running() {
		return fmt.Errorf("NATS server not running")
	}

	return nil
}
