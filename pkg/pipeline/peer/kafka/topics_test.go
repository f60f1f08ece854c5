package kafka

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdmin struct {
	sarama.ClusterAdmin
	topics  map[string]sarama.TopicDetail
	created map[string]*sarama.TopicDetail
}

func (a *fakeAdmin) ListTopics() (map[string]sarama.TopicDetail, error) {
	return a.topics, nil
}

func (a *fakeAdmin) CreateTopic(topic string, detail *sarama.TopicDetail, _ bool) error {
	a.created[topic] = detail
	return nil
}

func TestEnsureTopicsCreatesMissing(t *testing.T) {
	admin := &fakeAdmin{
		topics:  map[string]sarama.TopicDetail{"audit": {}},
		created: map[string]*sarama.TopicDetail{},
	}
	cfg := Config{Topics: []string{"audit", "picked"}}
	cfg.setDefaults()

	require.NoError(t, ensureTopics(context.Background(), admin, &cfg, nil))
	require.Len(t, admin.created, 1)

	detail := admin.created["picked"]
	require.NotNil(t, detail)
	assert.Equal(t, int32(1), detail.NumPartitions)
	assert.Equal(t, int16(1), detail.ReplicationFactor)
	assert.Equal(t, "604800000", *detail.ConfigEntries["retention.ms"])
}

func TestConsumeDeliversFromEveryPartition(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"audit": {0, 1}})
	consumer.ExpectConsumePartition("audit", 0, sarama.OffsetOldest).
		YieldMessage(&sarama.ConsumerMessage{Key: []byte("r1"), Value: []byte("a")})
	consumer.ExpectConsumePartition("audit", 1, sarama.OffsetOldest).
		YieldMessage(&sarama.ConsumerMessage{Key: []byte("r2"), Value: []byte("b")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	keys := map[string]bool{}
	err := consume(ctx, consumer, "audit", true, func(msg *sarama.ConsumerMessage) error {
		keys[string(msg.Key)] = true
		if len(keys) == 2 {
			cancel()
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"r1": true, "r2": true}, keys)
}
