package workers

import (
	"context"
	"encoding/json"
	"log"

	"atlas-overwatch/pkg/shared"

	"github.com/nats-io/nats.go"
)

// EventWorker keeps an audit trail of engine events in the log.
type EventWorker struct {
	*BaseWorker
}

func NewEventWorker(nc *nats.Conn, js nats.JetStreamContext) *EventWorker {
	return &EventWorker{
		BaseWorker: NewBaseWorker(
			"EventWorker",
			nc,
			js,
			shared.StreamEvents,
			shared.ConsumerEventLogger,
			shared.SubjectEventsAll,
		),
	}
}

func (w *EventWorker) Start(ctx context.Context) error {
	return w.processMessages(ctx, func(_ context.Context, msg *nats.Msg) error {
		var event shared.Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[%s] Raw message data: %s", w.Name(), string(msg.Data))
			return nil
		}
		log.Printf("[%s] %s %s from %s", w.Name(), event.Type, event.ID, event.Source)
		return nil
	})
}
