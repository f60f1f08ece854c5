package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// EnsureTopics creates the configured topics that do not exist yet.
func EnsureTopics(ctx context.Context, cfg *Config, conf *sarama.Config, logger *zap.Logger) error {
	admin, err := sarama.NewClusterAdmin(cfg.Brokers, conf)
	if err != nil {
		return fmt.Errorf("failed to create cluster admin: %w", err)
	}
	defer admin.Close()
	return ensureTopics(ctx, admin, cfg, logger)
}

func ensureTopics(ctx context.Context, admin sarama.ClusterAdmin, cfg *Config, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	existing, err := admin.ListTopics()
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}

	retention := fmt.Sprintf("%d", cfg.RetentionMS)
	for _, topic := range cfg.Topics {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := existing[topic]; ok {
			continue
		}
		detail := &sarama.TopicDetail{
			NumPartitions:     cfg.Partitions,
			ReplicationFactor: cfg.Replicas,
			ConfigEntries: map[string]*string{
				"retention.ms": &retention,
			},
		}
		if err := admin.CreateTopic(topic, detail, false); err != nil {
			return fmt.Errorf("failed to create topic %s: %w", topic, err)
		}
		logger.Info("Created topic", zap.String("topic", topic))
	}
	return nil
}
