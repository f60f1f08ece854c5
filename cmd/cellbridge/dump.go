package cellbridge

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/edgeflare/cellbridge/pkg/pipeline/codec"
	"github.com/edgeflare/cellbridge/pkg/pipeline/peer/kafka"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dumpFromBeginning bool
	dumpCodec         string
)

var dumpCmd = &cobra.Command{
	Use:   "dump <topic>",
	Short: "Print the events published to a Kafka topic",
	Long: `Consumes a topic with the brokers of the configured kafka producer and prints
each decoded event as a JSON line until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpFromBeginning, "from-beginning", false, "read the topic from the oldest offset")
	dumpCmd.Flags().StringVar(&dumpCodec, "codec", "", "event encoding, defaults to the configured codec")
}

type dumpRecord struct {
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
	Key       string `json:"key"`
	Table     string `json:"table"`
	Family    string `json:"family"`
	Qualifier string `json:"qualifier"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Delete    bool   `json:"delete"`
}

func runDump(cmd *cobra.Command, args []string) error {
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	switch cfg.Producer.ConnectorName {
	case pipeline.ProducerKafka, pipeline.ProducerKafkaGo:
	default:
		return fmt.Errorf("dump needs a kafka producer, configured connector is %q", cfg.Producer.ConnectorName)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Both kafka connectors share the brokers key.
	var kcfg kafka.Config
	raw, err := json.Marshal(cfg.Producer.Config)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &kcfg); err != nil {
		return fmt.Errorf("error parsing kafka config: %w", err)
	}

	dec, err := codec.Get(cmp.Or(dumpCodec, cfg.Codec))
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	enc := json.NewEncoder(cmd.OutOrStdout())
	handler := func(msg *sarama.ConsumerMessage) error {
		ev, err := dec.Decode(msg.Value)
		if err != nil {
			logger.Warn("Skipping undecodable message",
				zap.Int32("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
			return nil
		}
		return enc.Encode(dumpRecord{
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       string(ev.Key),
			Table:     string(ev.Table),
			Family:    string(ev.Family),
			Qualifier: string(ev.Qualifier),
			Value:     string(ev.Value),
			Timestamp: ev.Timestamp,
			Delete:    ev.Delete,
		})
	}

	err = kafka.Consume(ctx, kcfg, args[0], dumpFromBeginning, handler, logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
