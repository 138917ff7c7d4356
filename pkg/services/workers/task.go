package workers

import (
	"context"

	"atlas-overwatch/pkg/shared"

	"github.com/nats-io/nats.go"
)

type TaskWorker struct {
	*BaseWorker
	dispatcher Dispatcher
}

func NewTaskWorker(nc *nats.Conn, js nats.JetStreamContext, dispatcher Dispatcher) *TaskWorker {
	return &TaskWorker{
		BaseWorker: NewBaseWorker(
			"TaskWorker",
			nc,
			js,
			shared.StreamInbound,
			shared.ConsumerTaskProcessor,
			shared.SubjectInboundTask,
		),
		dispatcher: dispatcher,
	}
}

func (w *TaskWorker) Start(ctx context.Context) error {
	return w.processMessages(ctx, func(ctx context.Context, msg *nats.Msg) error {
		return dispatchMessage(ctx, w.dispatcher, msg)
	})
}
