// Package events publishes optional completion notifications — one per
// harvest run, Solr update run, or source retirement — to Kafka, so a
// downstream consumer (a cache invalidator, a dashboard, another pipeline)
// can react without polling the Record Store or Solr directly. Publishing
// is best-effort: RecordManager's own pipelines never block on or fail
// because of it, grounded on the reference repository's Kafka producer
// restated over this domain's own event shapes instead of the generic
// entity/relationship events it was built around.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/recordmanager/internal/telemetry"
)

// Event types a Publisher emits.
const (
	TypeHarvestCompleted = "harvest.completed"
	TypeIndexUpdated     = "index.updated"
	TypeRecordDeleted    = "record.deleted"
	TypeGroupMerged      = "group.merged"
	TypeSourceRetired    = "source.retired"
)

// Event is one completion notification.
type Event struct {
	EventType string    `json:"event_type"`
	SourceID  string    `json:"source_id"`
	RecordID  string    `json:"record_id,omitempty"`
	GroupID   string    `json:"group_id,omitempty"`
	MemberIDs []string  `json:"member_ids,omitempty"`
	Added     int       `json:"added,omitempty"`
	Deleted   int       `json:"deleted,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HarvestCompleted reports a finished harvest run for sourceID.
func HarvestCompleted(sourceID string, added, deleted int) Event {
	return Event{EventType: TypeHarvestCompleted, SourceID: sourceID, Added: added, Deleted: deleted}
}

// IndexUpdated reports a finished Solr Update Pipeline run for sourceID.
func IndexUpdated(sourceID string, added, deleted int) Event {
	return Event{EventType: TypeIndexUpdated, SourceID: sourceID, Added: added, Deleted: deleted}
}

// RecordDeleted reports a single soft-deleted record.
func RecordDeleted(sourceID, recordID string) Event {
	return Event{EventType: TypeRecordDeleted, SourceID: sourceID, RecordID: recordID}
}

// GroupMerged reports a dedup group settling on its current membership.
func GroupMerged(groupID string, memberIDs []string) Event {
	return Event{EventType: TypeGroupMerged, GroupID: groupID, MemberIDs: memberIDs}
}

// SourceRetired reports a completed `manage --func=deletesolr` run.
func SourceRetired(sourceID string) Event {
	return Event{EventType: TypeSourceRetired, SourceID: sourceID}
}

// PublisherConfig carries the Kafka publisher settings, filled from the
// Kafka fields of the environment-driven config.Config.
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// DefaultPublisherConfig mirrors the reference producer's defaults.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		BatchSize:    100,
		BatchTimeout: time.Second,
		RequiredAcks: 1,
		Compression:  "snappy",
	}
}

// Publisher writes Events to a configured Kafka topic.
type Publisher struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// NewPublisher constructs a Publisher.
func NewPublisher(cfg PublisherConfig, logger ectologger.Logger) *Publisher {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Publisher{writer: writer, logger: logger, topic: cfg.Topic}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Publish writes a single Event. A failed write is both logged and returned;
// callers that treat publishing as fire-and-forget may ignore the error.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	ctx, span := telemetry.StartSpan(ctx, "events.Publisher.Publish")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := event.SourceID
	if key == "" {
		key = event.GroupID
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source_id", Value: []byte(event.SourceID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("failed to publish event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.EventType,
		"source_id":  event.SourceID,
	}).Debug("published event")
	return nil
}

// PublishBatch writes every event in one Kafka write, used when a run
// produces several completion events at once (e.g. one GroupMerged per
// settled group alongside a single run-level IndexUpdated).
func (p *Publisher) PublishBatch(ctx context.Context, events []Event) error {
	ctx, span := telemetry.StartSpan(ctx, "events.Publisher.PublishBatch")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		key := event.SourceID
		if key == "" {
			key = event.GroupID
		}
		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(key),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "source_id", Value: []byte(event.SourceID)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"batch_size": len(events)}).Error("failed to publish event batch")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{"batch_size": len(events)}).Debug("published event batch")
	return nil
}
