package stream

import (
	"context"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type partitionOffsets struct {
	oldest, newest int64
}

// fakeOffsets answers offset lookups for a single topic.
type fakeOffsets map[int32]partitionOffsets

func (f fakeOffsets) Partitions(string) ([]int32, error) {
	var partitions []int32
	for p := range f {
		partitions = append(partitions, p)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })
	return partitions, nil
}

func (f fakeOffsets) GetOffset(_ string, partition int32, time int64) (int64, error) {
	o, ok := f[partition]
	if !ok {
		return 0, sarama.ErrUnknownTopicOrPartition
	}
	if time == sarama.OffsetOldest {
		return o.oldest, nil
	}
	return o.newest, nil
}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func message(offset int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Offset:    offset,
		Key:       []byte("key"),
		Value:     []byte(value),
		Timestamp: time.Unix(1700000000, 0),
	}
}

func receiveAll(t *testing.T, r *Receiver) []Message {
	t.Helper()

	var out []Message
	for {
		msg, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Partition != out[j].Partition {
			return out[i].Partition < out[j].Partition
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

func TestMonitorLastMessages(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.ExpectConsumePartition("alerts", 0, 8).
		YieldMessage(message(8, "1:80")).
		YieldMessage(message(9, "1:90"))
	consumer.ExpectConsumePartition("alerts", 1, 0).
		YieldMessage(message(0, "2:10"))

	offsets := fakeOffsets{
		0: {oldest: 0, newest: 10},
		1: {oldest: 0, newest: 1},
		2: {oldest: 5, newest: 5},
	}
	c := NewConsumerFromClient(consumer, offsets, fakeCodec{}, testLogger())

	r, err := c.Monitor(context.Background(), MonitorRequest{Topic: "alerts", Count: 2})
	require.NoError(t, err)

	msgs := receiveAll(t, r)
	require.Len(t, msgs, 3)

	assert.Equal(t, "alerts", msgs[0].Topic)
	assert.Equal(t, int32(0), msgs[0].Partition)
	assert.Equal(t, int64(8), msgs[0].Offset)
	assert.Equal(t, "key", msgs[0].Key)
	assert.Equal(t, 1, msgs[0].SchemaID)
	require.NotNil(t, msgs[0].Alert)
	assert.Equal(t, int64(80), msgs[0].Alert.Fields[KeyField])

	assert.Equal(t, int64(9), msgs[1].Offset)
	assert.Equal(t, int32(1), msgs[2].Partition)
	assert.Equal(t, 2, msgs[2].SchemaID)
}

func TestMonitorKeepsUndecodableMessages(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.ExpectConsumePartition("alerts", 0, 0).
		YieldMessage(message(0, "garbage")).
		YieldMessage(message(1, "3:30"))

	c := NewConsumerFromClient(consumer, fakeOffsets{0: {oldest: 0, newest: 2}}, fakeCodec{}, testLogger())

	r, err := c.Monitor(context.Background(), MonitorRequest{Topic: "alerts", Partitions: []int32{0}, Count: 25})
	require.NoError(t, err)

	msgs := receiveAll(t, r)
	require.Len(t, msgs, 2)
	assert.Nil(t, msgs[0].Alert)
	assert.Contains(t, msgs[0].Error, "malformed")
	assert.NotNil(t, msgs[1].Alert)
	assert.Empty(t, msgs[1].Error)
}

func TestMonitorFollowUntilStopped(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.ExpectConsumePartition("alerts", 0, 0).
		YieldMessage(message(0, "1:1"))

	c := NewConsumerFromClient(consumer, fakeOffsets{0: {oldest: 0, newest: 0}}, fakeCodec{}, testLogger())

	r, err := c.Monitor(context.Background(), MonitorRequest{Topic: "alerts", Count: 5, Follow: true})
	require.NoError(t, err)

	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(0), msg.Offset)

	r.Stop()
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestMonitorErrors(t *testing.T) {
	c := NewConsumerFromClient(mocks.NewConsumer(t, nil), fakeOffsets{}, fakeCodec{}, testLogger())

	_, err := c.Monitor(context.Background(), MonitorRequest{Topic: "alerts"})
	assert.Error(t, err)

	_, err = c.Monitor(context.Background(), MonitorRequest{Topic: "alerts", Count: 1})
	assert.Error(t, err)
}

func TestConsumeEmptyPartition(t *testing.T) {
	c := NewConsumerFromClient(mocks.NewConsumer(t, nil), fakeOffsets{0: {oldest: 3, newest: 3}}, fakeCodec{}, testLogger())
	r := &Receiver{ctx: context.Background(), messageC: make(chan Message)}

	err := c.consume(r, "alerts", 0, 10, false)
	assert.True(t, errors.Is(err, ErrNoMessages))
}

func TestMonitorStopWithoutDraining(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	for _, partition := range []int32{0, 1} {
		consumer.ExpectConsumePartition("alerts", partition, 0).
			YieldMessage(message(0, "1:1")).
			YieldMessage(message(1, "1:2")).
			YieldMessage(message(2, "1:3"))
	}

	offsets := fakeOffsets{0: {oldest: 0, newest: 3}, 1: {oldest: 0, newest: 3}}
	c := NewConsumerFromClient(consumer, offsets, fakeCodec{}, testLogger())

	r, err := c.Monitor(context.Background(), MonitorRequest{Topic: "alerts", Count: 3})
	require.NoError(t, err)

	_, err = r.Next()
	require.NoError(t, err)

	// the partition consumers return although nobody reads anymore
	r.Stop()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("partition consumers did not return after Stop")
	}

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}
