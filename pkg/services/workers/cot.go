package workers

import (
	"context"

	"atlas-overwatch/pkg/shared"

	"github.com/nats-io/nats.go"
)

type COTWorker struct {
	*BaseWorker
	dispatcher Dispatcher
}

func NewCOTWorker(nc *nats.Conn, js nats.JetStreamContext, dispatcher Dispatcher) *COTWorker {
	return &COTWorker{
		BaseWorker: NewBaseWorker(
			"COTWorker",
			nc,
			js,
			shared.StreamInbound,
			shared.ConsumerCOTProcessor,
			shared.SubjectInboundCOT,
		),
		dispatcher: dispatcher,
	}
}

func (w *COTWorker) Start(ctx context.Context) error {
	return w.processMessages(ctx, func(ctx context.Context, msg *nats.Msg) error {
		return dispatchMessage(ctx, w.dispatcher, msg)
	})
}
