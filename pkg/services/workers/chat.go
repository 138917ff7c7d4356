package workers

import (
	"context"

	"atlas-overwatch/pkg/shared"

	"github.com/nats-io/nats.go"
)

type ChatWorker struct {
	*BaseWorker
	dispatcher Dispatcher
}

func NewChatWorker(nc *nats.Conn, js nats.JetStreamContext, dispatcher Dispatcher) *ChatWorker {
	return &ChatWorker{
		BaseWorker: NewBaseWorker(
			"ChatWorker",
			nc,
			js,
			shared.StreamInbound,
			shared.ConsumerChatProcessor,
			shared.SubjectInboundChat,
		),
		dispatcher: dispatcher,
	}
}

func (w *ChatWorker) Start(ctx context.Context) error {
	return w.processMessages(ctx, func(ctx context.Context, msg *nats.Msg) error {
		return dispatchMessage(ctx, w.dispatcher, msg)
	})
}
