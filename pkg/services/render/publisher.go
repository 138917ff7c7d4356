// Package render publishes engine output onto NATS: diffs and mission
// collections for renderers on core subjects, engine events on the events
// stream.
package render

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"atlas-overwatch/pkg/ontology"
	"atlas-overwatch/pkg/shared"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const source = "atlas"

// Bus is the slice of the embedded NATS service the publisher needs.
type Bus interface {
	Connection() *nats.Conn
	PublishWithDedup(subject string, data []byte, msgID string) error
}

type Publisher struct {
	bus Bus
	now func() time.Time
}

func NewPublisher(bus Bus) *Publisher {
	return &Publisher{bus: bus, now: time.Now}
}

func (p *Publisher) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", subject, err)
	}
	if err := p.bus.Connection().Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// PublishDiff sends a render diff. Diffs are transient; a renderer that
// misses one resynchronises from the collection endpoint.
func (p *Publisher) PublishDiff(diff ontology.Diff) error {
	return p.publish(shared.SubjectRenderDiff, diff)
}

func (p *Publisher) PublishMission(guid string, collection ontology.RenderedCollection) error {
	return p.publish(shared.RenderMissionSubject(guid), collection)
}

// Notify records an engine event on the events stream. Failures are logged.
func (p *Publisher) Notify(eventType string, data map[string]any) {
	event := shared.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Subject:   shared.EventSubject(eventType),
		Data:      data,
		Timestamp: p.now().UTC(),
		Source:    source,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Render] failed to marshal %s event: %v", eventType, err)
		return
	}
	if err := p.bus.PublishWithDedup(event.Subject, payload, event.ID); err != nil {
		log.Printf("[Render] failed to publish %s event: %v", eventType, err)
	}
}
