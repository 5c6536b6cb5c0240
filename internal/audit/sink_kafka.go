package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes sealed records to the audit stream for live ingestion.
// Records are keyed by subject so per-subject ordering survives partitioning.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink builds the stream sink over an existing franz-go client.
func NewKafkaSink(client *kgo.Client, topic string) *KafkaSink {
	return &KafkaSink{client: client, topic: topic}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit stream marshal: %w", err)
	}
	res := s.client.ProduceSync(ctx, &kgo.Record{
		Topic: s.topic,
		Key:   []byte(rec.SubjectID),
		Value: payload,
	})
	if err := res.FirstErr(); err != nil {
		return fmt.Errorf("audit stream produce: %w", err)
	}
	return nil
}
