package embeddednats

import (
	"context"
	"encoding/json"
	"testing"

	"atlas-overwatch/pkg/shared"

	"github.com/go-playground/assert/v2"
)

func startTestNATS(t *testing.T) *EmbeddedNATS {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.DontListen = true

	en, err := New(cfg)
	assert.Equal(t, err, nil)
	if err := en.Start(); err != nil {
		t.Fatalf("failed to start NATS: %v", err)
	}
	t.Cleanup(func() { en.Shutdown(context.Background()) })

	if err := en.CreateAtlasStreams(); err != nil {
		t.Fatalf("failed to create streams: %v", err)
	}
	return en
}

func TestPublishInbound(t *testing.T) {
	en := startTestNATS(t)
	assert.Equal(t, en.HealthCheck(), nil)

	msg := shared.Message{Type: shared.MessageCOT, Data: json.RawMessage(`{"id":"a"}`)}
	assert.Equal(t, en.PublishInbound(msg), nil)

	info, err := en.JetStream().StreamInfo(shared.StreamInbound)
	assert.Equal(t, err, nil)
	assert.Equal(t, info.State.Msgs, uint64(1))

	sub, err := en.JetStream().PullSubscribe(shared.SubjectInboundCOT, shared.ConsumerCOTProcessor)
	assert.Equal(t, err, nil)
	msgs, err := sub.Fetch(1)
	assert.Equal(t, err, nil)
	assert.Equal(t, msgs[0].Subject, shared.SubjectInboundCOT)

	var got shared.Message
	assert.Equal(t, json.Unmarshal(msgs[0].Data, &got), nil)
	assert.Equal(t, string(got.Data), `{"id":"a"}`)
}

func TestPublishInboundDedup(t *testing.T) {
	tests := []struct {
		name   string
		frames []string
		want   uint64
	}{
		{
			name:   "same feature and time",
			frames: []string{`{"id":"a","properties":{"time":"2024-01-01T12:00:00Z"}}`, `{"id":"a","properties":{"time":"2024-01-01T12:00:00Z"}}`},
			want:   1,
		},
		{
			name:   "newer time",
			frames: []string{`{"id":"a","properties":{"time":"2024-01-01T12:00:00Z"}}`, `{"id":"a","properties":{"time":"2024-01-01T12:00:05Z"}}`},
			want:   2,
		},
		{
			name:   "no time",
			frames: []string{`{"id":"a"}`, `{"id":"a"}`},
			want:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			en := startTestNATS(t)
			for _, frame := range tt.frames {
				msg := shared.Message{Type: shared.MessageCOT, Data: json.RawMessage(frame)}
				assert.Equal(t, en.PublishInbound(msg), nil)
			}

			info, err := en.JetStream().StreamInfo(shared.StreamInbound)
			assert.Equal(t, err, nil)
			assert.Equal(t, info.State.Msgs, tt.want)
		})
	}
}

func TestInboundMsgID(t *testing.T) {
	id, ok := inboundMsgID(shared.Message{Type: shared.MessageCOT, Data: json.RawMessage(`{"id":"a","properties":{"time":"t1"}}`)})
	assert.Equal(t, ok, true)
	assert.Equal(t, id, shared.MessageCOT+":a:t1")

	_, ok = inboundMsgID(shared.Message{Type: shared.MessageCOT, Data: json.RawMessage(`not json`)})
	assert.Equal(t, ok, false)
}

func TestPublishInboundRequiresType(t *testing.T) {
	en := startTestNATS(t)
	assert.NotEqual(t, en.PublishInbound(shared.Message{}), nil)
}

func TestPublishWithDedup(t *testing.T) {
	en := startTestNATS(t)

	subject := shared.EventSubject(shared.EventTypeChat)
	assert.Equal(t, en.PublishWithDedup(subject, []byte(`{}`), "same"), nil)
	assert.Equal(t, en.PublishWithDedup(subject, []byte(`{}`), "same"), nil)

	info, err := en.JetStream().StreamInfo(shared.StreamEvents)
	assert.Equal(t, err, nil)
	assert.Equal(t, info.State.Msgs, uint64(1))
}

func TestMsgIDsAreUnique(t *testing.T) {
	en := startTestNATS(t)
	seen := make(map[string]bool)
	for range 100 {
		id := en.NewMsgID()
		assert.Equal(t, seen[id], false)
		seen[id] = true
	}
}
