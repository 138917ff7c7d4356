package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"atlas-overwatch/pkg/shared"

	"github.com/nats-io/nats.go"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// Dispatcher applies an inbound transport message to the engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg shared.Message) error
}

type BaseWorker struct {
	name     string
	nc       *nats.Conn
	js       nats.JetStreamContext
	mu       sync.Mutex
	sub      *nats.Subscription
	consumer string
	stream   string
	subject  string
}

func NewBaseWorker(name string, nc *nats.Conn, js nats.JetStreamContext, stream, consumer, subject string) *BaseWorker {
	return &BaseWorker{
		name:     name,
		nc:       nc,
		js:       js,
		consumer: consumer,
		stream:   stream,
		subject:  subject,
	}
}

func (w *BaseWorker) Name() string {
	return w.name
}

func (w *BaseWorker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub != nil {
		return w.sub.Drain()
	}
	return nil
}

// processMessages pulls from the durable consumer until ctx is done. Messages
// are acked once handled; a handler error is logged and the message is not
// redelivered unless handling was cancelled.
func (w *BaseWorker) processMessages(ctx context.Context, handler func(context.Context, *nats.Msg) error) error {
	sub, err := w.js.PullSubscribe(w.subject, w.consumer,
		nats.ManualAck(),
		nats.Bind(w.stream, w.consumer),
	)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()

	log.Printf("[%s] Starting worker for stream: %s, consumer: %s", w.name, w.stream, w.consumer)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[%s] Worker stopping", w.name)
			return ctx.Err()
		default:
			msgs, err := sub.Fetch(10, nats.MaxWait(2*time.Second))
			if err != nil && !errors.Is(err, nats.ErrTimeout) {
				if ctx.Err() != nil {
					continue
				}
				log.Printf("[%s] Error fetching messages: %v", w.name, err)
				time.Sleep(500 * time.Millisecond)
				continue
			}

			for _, msg := range msgs {
				if err := handler(ctx, msg); err != nil {
					if errors.Is(err, context.Canceled) {
						msg.Nak()
						continue
					}
					log.Printf("[%s] Error handling message on %s: %v", w.name, msg.Subject, err)
				}
				if err := msg.Ack(); err != nil {
					log.Printf("[%s] Error acknowledging message: %v", w.name, err)
				}
			}
		}
	}
}

// dispatchMessage decodes a bus message back into the transport envelope.
func dispatchMessage(ctx context.Context, dispatcher Dispatcher, msg *nats.Msg) error {
	var m shared.Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		return err
	}
	return dispatcher.Dispatch(ctx, m)
}
