package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lostfound-api/internal/client"
	"lostfound-api/internal/util"
)

// Event types emitted by the identity flows.
const (
	EventIdentityRegistered = "identity.registered"
	EventOTPIssued          = "otp.issued"
	EventOTPVerified        = "otp.verified"
	EventOTPLocked          = "otp.locked"
)

// Event is an audit record. KeyHash is a digest of the identity key;
// raw keys, credentials, and codes never enter the trail.
type Event struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	IdentityKind string    `json:"identity_kind"`
	KeyHash      string    `json:"key_hash"`
	Outcome      string    `json:"outcome"`
	EventTime    time.Time `json:"event_time"`
}

const (
	insertEventsQuery = `INSERT INTO auth_events (event_id, event_type, identity_kind, key_hash, outcome, event_time)`
	flushInterval     = 5 * time.Second
	batchLimit        = 100
)

// Recorder buffers audit events and flushes them to ClickHouse in
// batches while publishing each batch to Kafka. Both sinks are optional;
// a nil Recorder drops events silently so callers need no guards.
type Recorder struct {
	clickhouse *client.ClickHouseClient
	kafka      *client.KafkaProducer
	topic      string

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewRecorder(clickhouseClient *client.ClickHouseClient, kafkaProducer *client.KafkaProducer, topic string) *Recorder {
	r := &Recorder{
		clickhouse: clickhouseClient,
		kafka:      kafkaProducer,
		topic:      topic,
		events:     make(chan Event, 1024),
		done:       make(chan struct{}),
	}

	r.wg.Add(1)
	go r.flushLoop()

	return r
}

// Record enqueues an event without blocking the request path. Events
// are dropped when the buffer is full.
func (r *Recorder) Record(eventType, identityKind, keyHash, outcome string) {
	if r == nil {
		return
	}

	event := Event{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		IdentityKind: identityKind,
		KeyHash:      keyHash,
		Outcome:      outcome,
		EventTime:    time.Now().UTC(),
	}

	select {
	case r.events <- event:
	default:
		util.Warn("Audit buffer full, dropping event",
			zap.String("event_type", eventType))
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, batchLimit)

	for {
		select {
		case event := <-r.events:
			batch = append(batch, event)
			if len(batch) >= batchLimit {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.done:
			// Drain whatever is still buffered before exiting.
			for {
				select {
				case event := <-r.events:
					batch = append(batch, event)
				default:
					if len(batch) > 0 {
						r.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if r.clickhouse != nil {
		rows := make([][]interface{}, 0, len(batch))
		for _, e := range batch {
			rows = append(rows, []interface{}{
				e.EventID, e.EventType, e.IdentityKind, e.KeyHash, e.Outcome, e.EventTime,
			})
		}
		if err := r.clickhouse.BatchInsert(ctx, insertEventsQuery, rows); err != nil {
			util.Error("Failed to flush audit events to ClickHouse",
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
		}
	}

	if r.kafka != nil {
		for _, e := range batch {
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := r.kafka.ProduceMessage(ctx, r.topic, []byte(e.KeyHash), payload, map[string]string{
				"event_type": e.EventType,
			}); err != nil {
				util.Error("Failed to publish audit event",
					zap.String("event_type", e.EventType),
					zap.Error(err))
			}
		}
	}
}

// Close stops the flush loop after draining buffered events.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	close(r.done)
	r.wg.Wait()
}
