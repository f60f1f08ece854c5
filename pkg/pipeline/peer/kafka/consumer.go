package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Handler receives consumed messages. Returning an error stops consumption.
type Handler func(msg *sarama.ConsumerMessage) error

// Consume reads topic from every partition until ctx is done or handler fails.
// With fromOldest the partitions are read from the beginning, otherwise only
// new messages are delivered.
func Consume(ctx context.Context, cfg Config, topic string, fromOldest bool, handler Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.setDefaults()
	conf, err := cfg.ToSaramaConfig()
	if err != nil {
		return fmt.Errorf("failed to create sarama config: %w", err)
	}

	consumer, err := sarama.NewConsumer(cfg.Brokers, conf)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	defer consumer.Close()

	return consume(ctx, consumer, topic, fromOldest, handler, logger)
}

func consume(ctx context.Context, consumer sarama.Consumer, topic string, fromOldest bool, handler Handler, logger *zap.Logger) error {
	partitions, err := consumer.Partitions(topic)
	if err != nil {
		return fmt.Errorf("failed to list partitions of %s: %w", topic, err)
	}

	offset := sarama.OffsetNewest
	if fromOldest {
		offset = sarama.OffsetOldest
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages := make(chan *sarama.ConsumerMessage)
	var wg sync.WaitGroup
	for _, partition := range partitions {
		pc, err := consumer.ConsumePartition(topic, partition, offset)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to start consumer for partition %d: %w", partition, err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if err := pc.Close(); err != nil {
					logger.Warn("Failed to close partition consumer", zap.Int32("partition", partition), zap.Error(err))
				}
			}()
			for {
				select {
				case msg, ok := <-pc.Messages():
					if !ok {
						return
					}
					select {
					case messages <- msg:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	consumed := 0
	defer func() {
		cancel()
		wg.Wait()
		logger.Info("Consumption finished", zap.String("topic", topic), zap.Int("consumed", consumed))
	}()

	for {
		select {
		case msg := <-messages:
			consumed++
			logger.Debug("Consumed message",
				zap.Int64("offset", msg.Offset),
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition))
			if err := handler(msg); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
