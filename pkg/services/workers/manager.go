package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	embeddednats "atlas-overwatch/pkg/services/embedded-nats"

	"github.com/nats-io/nats.go"
)

type Manager struct {
	workers []Worker
	nc      *nats.Conn
	js      nats.JetStreamContext
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewManager builds one worker per inbound message type, all feeding the
// same dispatcher, plus the event audit worker.
func NewManager(natsClient *embeddednats.EmbeddedNATS, dispatcher Dispatcher) (*Manager, error) {
	nc := natsClient.Connection()
	if nc == nil {
		return nil, fmt.Errorf("NATS connection not initialized")
	}

	js := natsClient.JetStream()
	if js == nil {
		return nil, fmt.Errorf("JetStream not initialized")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		nc:     nc,
		js:     js,
		ctx:    ctx,
		cancel: cancel,
		workers: []Worker{
			NewCOTWorker(nc, js, dispatcher),
			NewTaskWorker(nc, js, dispatcher),
			NewChatWorker(nc, js, dispatcher),
			NewEventWorker(nc, js),
		},
	}, nil
}

func (m *Manager) Start() error {
	log.Println("Starting NATS workers...")

	for _, worker := range m.workers {
		m.wg.Add(1)
		go func(w Worker) {
			defer m.wg.Done()

			log.Printf("Starting worker: %s", w.Name())
			if err := w.Start(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Worker %s error: %v", w.Name(), err)
			}
			log.Printf("Worker %s stopped", w.Name())
		}(worker)
	}

	log.Printf("Started %d workers", len(m.workers))
	return nil
}

// Stop cancels every worker and waits for them. The NATS connection belongs
// to the embedded server and is left open.
func (m *Manager) Stop() error {
	log.Println("Stopping NATS workers...")

	m.cancel()

	for _, worker := range m.workers {
		if err := worker.Stop(); err != nil {
			log.Printf("Error stopping worker %s: %v", worker.Name(), err)
		}
	}

	m.wg.Wait()

	log.Println("All workers stopped")
	return nil
}
