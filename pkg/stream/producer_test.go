package stream

import (
	"context"
	"fmt"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-ch/alertpacket/pkg/packet"
)

var errEncoding = errors.New("cannot encode")

// fakeCodec frames alerts as their ID and schema ID.
type fakeCodec struct{}

func (fakeCodec) Encode(rec packet.AlertRecord, schemaID int) ([]byte, error) {
	if _, ok := rec.Fields["broken"]; ok {
		return nil, errEncoding
	}
	return []byte(fmt.Sprintf("%d:%v", schemaID, rec.Fields[KeyField])), nil
}

func (fakeCodec) Decode(msg []byte) (packet.AlertRecord, int, error) {
	var schemaID, alertID int64
	if _, err := fmt.Sscanf(string(msg), "%d:%d", &schemaID, &alertID); err != nil {
		return packet.AlertRecord{}, 0, errors.Wrap(packet.ErrMalformedData, err.Error())
	}
	return packet.AlertRecord{Fields: map[string]interface{}{KeyField: alertID}}, int(schemaID), nil
}

func alert(id int64) packet.AlertRecord {
	return packet.AlertRecord{Fields: map[string]interface{}{KeyField: id}}
}

func expectKey(key string) mocks.MessageChecker {
	return func(msg *sarama.ProducerMessage) error {
		got, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(got) != key {
			return errors.Errorf("key %q, expected %q", got, key)
		}
		return nil
	}
}

func TestPublish(t *testing.T) {
	client := mocks.NewSyncProducer(t, nil)
	client.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectKey("1234"))
	client.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != "7:99" {
			return errors.Errorf("unexpected value %q", val)
		}
		return nil
	})

	published := NewPublishedCounter(prometheus.NewRegistry())
	p := NewProducerFromClient(client, fakeCodec{}, nil).WithMetrics(published)

	require.NoError(t, p.Publish("alerts", alert(1234), 7))
	require.NoError(t, p.Publish("alerts", alert(99), 7))
	require.NoError(t, p.Close())

	assert.Equal(t, 2.0, testutil.ToFloat64(published.WithLabelValues("alerts", "ok")))
}

func TestPublishAll(t *testing.T) {
	client := mocks.NewSyncProducer(t, nil)
	client.ExpectSendMessageAndSucceed()
	client.ExpectSendMessageAndFail(sarama.ErrMessageSizeTooLarge)
	client.ExpectSendMessageAndSucceed()

	published := NewPublishedCounter(nil)
	p := NewProducerFromClient(client, fakeCodec{}, nil).WithMetrics(published)

	broken := alert(3)
	broken.Fields["broken"] = true
	records := []packet.AlertRecord{alert(1), alert(2), broken, alert(4)}

	sent, err := p.PublishAll(context.Background(), "alerts", records, 1)
	require.NoError(t, p.Close())
	assert.Equal(t, 2, sent)
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrMessageSizeTooLarge)
	assert.ErrorIs(t, err, errEncoding)

	var recErr *packet.RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, 1, recErr.Index)

	assert.Equal(t, 2.0, testutil.ToFloat64(published.WithLabelValues("alerts", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(published.WithLabelValues("alerts", "error")))
}

func TestPublishAllCancelled(t *testing.T) {
	client := mocks.NewSyncProducer(t, nil)
	p := NewProducerFromClient(client, fakeCodec{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sent, err := p.PublishAll(ctx, "alerts", []packet.AlertRecord{alert(1)}, 1)
	require.NoError(t, p.Close())
	assert.Zero(t, sent)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewProducerWithoutBrokers(t *testing.T) {
	_, err := NewProducer(Config{}, fakeCodec{}, nil)
	assert.Error(t, err)

	_, err = NewConsumer(Config{}, fakeCodec{}, nil)
	assert.Error(t, err)
}
