package render

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"atlas-overwatch/pkg/ontology"
	embeddednats "atlas-overwatch/pkg/services/embedded-nats"
	"atlas-overwatch/pkg/shared"

	"github.com/go-playground/assert/v2"
	"github.com/nats-io/nats.go"
)

func startTestNATS(t *testing.T) *embeddednats.EmbeddedNATS {
	t.Helper()
	cfg := embeddednats.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.DontListen = true

	en, err := embeddednats.New(cfg)
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

func TestPublishDiff(t *testing.T) {
	en := startTestNATS(t)
	p := NewPublisher(en)

	sub, err := en.Connection().SubscribeSync(shared.SubjectRenderDiff)
	assert.Equal(t, err, nil)
	assert.Equal(t, en.Connection().Flush(), nil)

	diff := ontology.NewDiff()
	diff.Remove = append(diff.Remove, "a")
	assert.Equal(t, p.PublishDiff(diff), nil)

	msg, err := sub.NextMsg(2 * time.Second)
	assert.Equal(t, err, nil)

	var got ontology.Diff
	assert.Equal(t, json.Unmarshal(msg.Data, &got), nil)
	assert.Equal(t, got.Remove, []string{"a"})
}

func TestPublishMission(t *testing.T) {
	en := startTestNATS(t)
	p := NewPublisher(en)

	sub, err := en.Connection().SubscribeSync(shared.RenderMissionSubject("g1"))
	assert.Equal(t, err, nil)
	assert.Equal(t, en.Connection().Flush(), nil)

	assert.Equal(t, p.PublishMission("g1", ontology.NewRenderedCollection(nil)), nil)

	msg, err := sub.NextMsg(2 * time.Second)
	assert.Equal(t, err, nil)
	assert.Equal(t, msg.Subject, "atlas.render.mission.g1")
}

func TestNotify(t *testing.T) {
	en := startTestNATS(t)
	p := NewPublisher(en)
	p.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	p.Notify(shared.EventTypeChat, map[string]any{"remarks": "hello"})

	sub, err := en.JetStream().SubscribeSync(shared.EventSubject(shared.EventTypeChat), nats.DeliverAll())
	assert.Equal(t, err, nil)
	msg, err := sub.NextMsg(2 * time.Second)
	assert.Equal(t, err, nil)

	var event shared.Event
	assert.Equal(t, json.Unmarshal(msg.Data, &event), nil)
	assert.Equal(t, event.Type, shared.EventTypeChat)
	assert.Equal(t, event.Source, "atlas")
	assert.Equal(t, event.Data["remarks"], "hello")
	assert.Equal(t, event.Timestamp.Equal(p.now()), true)
	assert.Equal(t, msg.Header.Get(nats.MsgIdHdr), event.ID)
}
