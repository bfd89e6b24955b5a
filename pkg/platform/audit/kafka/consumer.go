package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "nftregistry/pkg/platform/audit"
)

// Consumer reads audit records from the topic and materializes them into a
// queryable store.
type Consumer struct {
	client *kgo.Client
	sink   audit.Store
	logger *slog.Logger
	group  bool
}

// NewConsumer joins group when set. Without a group it reads every
// partition from the start.
func NewConsumer(brokers []string, topic, group string, sink audit.Store, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka audit consumer: no brokers")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	if group != "" {
		opts = append(opts, kgo.ConsumerGroup(group), kgo.DisableAutoCommit())
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, sink: sink, logger: logger, group: group != ""}, nil
}

// Run polls until ctx is done or the client is closed. Malformed records are
// logged and skipped so one bad payload cannot wedge the partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Warn("audit fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.handle(ctx, record)
		})
		if c.group {
			if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
				c.logger.Warn("audit offset commit failed", "error", err)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, record *kgo.Record) {
	var event audit.Event
	if err := json.Unmarshal(record.Value, &event); err != nil {
		c.logger.Warn("skipping malformed audit record",
			"key", string(record.Key),
			"offset", record.Offset,
			"error", err,
		)
		return
	}
	if err := c.sink.Append(ctx, event); err != nil {
		c.logger.Error("failed to materialize audit event",
			"event_id", event.ID,
			"action", event.Action,
			"error", err,
		)
	}
}

func (c *Consumer) Close() {
	c.client.Close()
}
