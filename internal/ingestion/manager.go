package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/billion-eyes/incident-pipeline/internal/config"
	"github.com/billion-eyes/incident-pipeline/internal/worker"
)

// Manager consumes raw detections from the queue and runs each through
// the pipeline on a worker pool. Ack/nack decisions live here: the
// pipeline only classifies failures, the transport owns retry semantics.
type Manager struct {
	cfg      *config.Config
	pipeline *Pipeline
	pool     *worker.Pool[amqp.Delivery]
	conn     *amqp.Connection
	channel  *amqp.Channel
	wg       sync.WaitGroup
}

func NewManager(cfg *config.Config, pipeline *Pipeline) *Manager {
	return &Manager{
		cfg:      cfg,
		pipeline: pipeline,
	}
}

func (m *Manager) Start(ctx context.Context) error {
	conn, err := amqp.Dial(m.cfg.Queue.URL)
	if err != nil {
		return fmt.Errorf("error connecting to queue: %w", err)
	}
	m.conn = conn

	channel, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("error opening channel: %w", err)
	}
	m.channel = channel

	if _, err := channel.QueueDeclare(m.cfg.Queue.Name, false, false, false, false, nil); err != nil {
		return fmt.Errorf("error declaring queue: %w", err)
	}
	if err := channel.Qos(m.cfg.Queue.Prefetch, 0, false); err != nil {
		return fmt.Errorf("error setting prefetch: %w", err)
	}

	deliveries, err := channel.Consume(m.cfg.Queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("error starting consumer: %w", err)
	}

	m.pool = worker.NewPool(m.cfg.Worker.Count, m.cfg.Worker.BufferSize, m.process)
	m.pool.Start(ctx)

	m.wg.Add(1)
	go m.consume(ctx, deliveries)

	slog.Info("queue consumer started", "queue", m.cfg.Queue.Name, "workers", m.cfg.Worker.Count)
	return nil
}

func (m *Manager) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer shutting down")
			return
		case d, ok := <-deliveries:
			if !ok {
				slog.Warn("delivery channel closed")
				return
			}
			m.pool.Submit(d)
		}
	}
}

func (m *Manager) process(ctx context.Context, d amqp.Delivery) error {
	_, err := m.pipeline.Handle(ctx, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			slog.Error("error acking delivery", "error", ackErr)
		}
	case IsReject(err):
		// Dropped permanently; the raw payload is logged so the message
		// can be reprocessed offline.
		slog.Warn("detection rejected", "reason", err, "body", string(d.Body))
		if nackErr := d.Nack(false, false); nackErr != nil {
			slog.Error("error nacking delivery", "error", nackErr)
		}
	default:
		// Downstream failure: hand the retry decision back to the broker.
		slog.Error("processing failed, requeueing", "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			slog.Error("error nacking delivery", "error", nackErr)
		}
	}
	return err
}

func (m *Manager) Stop() {
	m.wg.Wait()
	if m.pool != nil {
		m.pool.Stop()
	}
	if m.channel != nil {
		m.channel.Close()
	}
	if m.conn != nil {
		m.conn.Close()
	}
	slog.Info("ingestion manager stopped")
}
