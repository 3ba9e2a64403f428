package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kgo"

	"mintgate/pkg/platform/circuit"
)

// LogSink writes events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, e Event) error {
	s.logger.InfoContext(ctx, "audit",
		"action", e.Action,
		"owner", e.Owner,
		"token_id", e.TokenID,
		"category", e.Category,
		"transaction_hash", e.TransactionHash,
		"source", e.Source,
		"request_id", e.RequestID,
		"reason", e.Reason,
	)
	return nil
}

// Producer is the subset of *kgo.Client the Kafka sink uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink publishes JSON events keyed by token id so one token's history
// stays on one partition.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Write(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	rec := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(strconv.FormatInt(e.TokenID, 10)),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(e.Action)},
		},
	}
	if err := s.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// FailoverSink writes to primary while it is healthy and to fallback when a
// write fails or the breaker is open, so no event is lost to a broker outage.
type FailoverSink struct {
	primary  Sink
	fallback Sink
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFailoverSink(primary, fallback Sink, breaker *circuit.Breaker, logger *slog.Logger) *FailoverSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverSink{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (s *FailoverSink) Write(ctx context.Context, e Event) error {
	if !s.breaker.Allow() {
		return s.fallback.Write(ctx, e)
	}
	if err := s.primary.Write(ctx, e); err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.logger.WarnContext(ctx, "audit sink circuit opened", "breaker", s.breaker.Name(), "error", err)
		}
		return s.fallback.Write(ctx, e)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "audit sink circuit closed", "breaker", s.breaker.Name())
	}
	return nil
}
