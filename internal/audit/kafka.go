package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"enrollsync/pkg/domain"
)

// KafkaPublisher produces events to a single topic, keyed by org so one
// tenant's trail stays ordered within a partition. Publishing is
// fire-and-forget: a delivery failure is logged, never returned, because
// the pipeline must not stall on the audit trail.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

type kafkaPayload struct {
	Action         string         `json:"action"`
	OrgID          string         `json:"org_id,omitempty"`
	RegistrationID string         `json:"registration_id,omitempty"`
	GuardianID     string         `json:"guardian_id,omitempty"`
	Detail         map[string]any `json:"detail,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

// ensureTopic creates the trail topic on first boot; an already-exists
// response is the steady state.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 3, -1, nil, topic)
	if err != nil {
		return err
	}
	for _, r := range resp {
		if r.Err != nil && r.Err != kerr.TopicAlreadyExists {
			return r.Err
		}
	}
	return nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload := kafkaPayload{
		Action:     event.Action,
		Detail:     event.Detail,
		OccurredAt: event.OccurredAt,
	}
	if !event.OrgID.IsNil() {
		payload.OrgID = event.OrgID.String()
	}
	if !event.RegistrationID.IsNil() {
		payload.RegistrationID = event.RegistrationID.String()
	}
	if !event.GuardianID.IsNil() {
		payload.GuardianID = event.GuardianID.String()
	}

	value, err := json.Marshal(payload)
	if err != nil {
		p.logger.ErrorContext(ctx, "audit event marshal failed", "error", err, "action", event.Action)
		return
	}
	record := &kgo.Record{Key: recordKey(event.OrgID), Value: value}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit event delivery failed", "error", err, "action", event.Action)
		}
	})
}

func (p *KafkaPublisher) Close() {
	p.client.Flush(context.Background())
	p.client.Close()
}

func recordKey(orgID domain.OrgID) []byte {
	if orgID.IsNil() {
		return nil
	}
	return []byte(orgID.String())
}
