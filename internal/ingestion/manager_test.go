package ingestion

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/billion-eyes/incident-pipeline/internal/config"
)

// fakeAcker records the ack/nack decision for one delivery.
type fakeAcker struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAcker) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcker) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAcker) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func delivery(acker *fakeAcker, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: 1, Body: body}
}

func TestManagerProcess_AcksValidDetection(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	m := NewManager(&config.Config{}, p)

	acker := &fakeAcker{}
	err := m.process(context.Background(), delivery(acker, testPayload(`"pothole"`, `"2025-03-07T12:00:00Z"`)))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !acker.acked || acker.nacked {
		t.Errorf("valid detection should ack: %+v", acker)
	}
}

func TestManagerProcess_AcksSkippedDetection(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	m := NewManager(&config.Config{}, p)

	acker := &fakeAcker{}
	err := m.process(context.Background(), delivery(acker, testPayload(`"office chair"`, `"2025-03-07T12:00:00Z"`)))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if !acker.acked {
		t.Errorf("skipped detection is still a handled message: %+v", acker)
	}
}

func TestManagerProcess_DropsRejects(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	m := NewManager(&config.Config{}, p)

	acker := &fakeAcker{}
	err := m.process(context.Background(), delivery(acker, []byte(`{not json`)))
	if err == nil {
		t.Fatal("expected a rejection error")
	}
	if !acker.nacked || acker.requeue {
		t.Errorf("bad payload should nack without requeue: %+v", acker)
	}
}

func TestManagerProcess_RequeuesTransientFailures(t *testing.T) {
	p, db, _ := newTestPipeline(t)
	m := NewManager(&config.Config{}, p)

	// A closed store makes every downstream call fail.
	db.Close()

	acker := &fakeAcker{}
	err := m.process(context.Background(), delivery(acker, testPayload(`"pothole"`, `"2025-03-07T12:00:00Z"`)))
	if err == nil {
		t.Fatal("expected a downstream error")
	}
	if IsReject(err) {
		t.Errorf("store failure must not classify as rejection: %v", err)
	}
	if !acker.nacked || !acker.requeue {
		t.Errorf("transient failure should nack with requeue: %+v", acker)
	}
}
