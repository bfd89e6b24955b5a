package main

import (
	"context"
	"errors"
	"log/slog"

	"nftregistry/internal/platform/config"
	audit "nftregistry/pkg/platform/audit"
	"nftregistry/pkg/platform/audit/kafka"
	"nftregistry/pkg/platform/audit/publisher"
	auditmemory "nftregistry/pkg/platform/audit/store/memory"
)

type auditSink struct {
	publisher  *publisher.Publisher
	background []func(ctx context.Context) error
	close      func()
}

// openAudit builds the audit publisher. With the kafka sink, events are
// produced to the topic and a consumer materializes them into memory so
// /audit can still serve them.
func openAudit(ctx context.Context, cfg config.Server, log *slog.Logger) (*auditSink, error) {
	opts := []publisher.Option{publisher.WithLogger(log)}
	if cfg.Audit.AsyncBuffer > 0 {
		opts = append(opts, publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer))
	}

	switch cfg.Audit.Sink {
	case config.AuditSinkMemory:
		pub := publisher.NewPublisher(auditmemory.NewInMemoryStore(), opts...)
		return &auditSink{publisher: pub, close: pub.Close}, nil

	case config.AuditSinkKafka:
		producer, err := kafka.New(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic)
		if err != nil {
			return nil, err
		}
		if err := producer.EnsureTopic(ctx, cfg.Audit.KafkaPartitions, cfg.Audit.KafkaReplication); err != nil {
			producer.Close()
			return nil, err
		}
		view := auditmemory.NewInMemoryStore()
		consumer, err := kafka.NewConsumer(cfg.Audit.KafkaBrokers, producer.Topic(), "", view, log)
		if err != nil {
			producer.Close()
			return nil, err
		}
		pub := publisher.NewPublisher(&materializedStore{Store: producer, view: view}, opts...)
		return &auditSink{
			publisher: pub,
			background: []func(ctx context.Context) error{func(ctx context.Context) error {
				return ignoreCanceled(consumer.Run(ctx))
			}},
			close: func() {
				pub.Close()
				consumer.Close()
				producer.Close()
			},
		}, nil
	}
	return nil, errors.New("unknown audit sink " + cfg.Audit.Sink)
}

// materializedStore appends to Kafka and answers queries from the view the
// consumer keeps up to date.
type materializedStore struct {
	*kafka.Store
	view *auditmemory.InMemoryStore
}

func (m *materializedStore) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return m.view.ListBySubject(ctx, subject)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
