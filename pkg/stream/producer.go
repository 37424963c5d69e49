package stream

import (
	"context"

	"github.com/Shopify/sarama"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/open-ch/alertpacket/pkg/packet"
)

// KeyField is the alert field used as message key.
const KeyField = "alertId"

type encoder interface {
	Encode(rec packet.AlertRecord, schemaID int) ([]byte, error)
}

// Producer publishes framed alerts to Kafka.
type Producer struct {
	client    sarama.SyncProducer
	codec     encoder
	log       logrus.FieldLogger
	published *prometheus.CounterVec
}

// NewProducer connects to the brokers of c.
func NewProducer(c Config, codec encoder, log logrus.FieldLogger) (*Producer, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("no broker set")
	}

	sc, err := saramaConfig(c)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewSyncProducer(c.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to Kafka")
	}

	return NewProducerFromClient(client, codec, log), nil
}

// NewProducerFromClient wraps an existing sync producer.
func NewProducerFromClient(client sarama.SyncProducer, codec encoder, log logrus.FieldLogger) *Producer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Producer{client: client, codec: codec, log: log}
}

// WithMetrics counts published messages by topic and result in vec, which
// must carry the labels topic and result.
func (p *Producer) WithMetrics(vec *prometheus.CounterVec) *Producer {
	p.published = vec
	return p
}

// NewPublishedCounter returns the counter expected by WithMetrics,
// registered with reg unless reg is nil.
func NewPublishedCounter(reg prometheus.Registerer) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertpacket_published_total",
			Help: "Alerts published to Kafka by topic and result",
		},
		[]string{"topic", "result"},
	)
	if reg != nil {
		reg.MustRegister(vec)
	}
	return vec
}

// Publish frames rec with schemaID and sends it to topic, keyed by its
// alert ID.
func (p *Producer) Publish(topic string, rec packet.AlertRecord, schemaID int) error {
	value, err := p.codec.Encode(rec, schemaID)
	if err != nil {
		p.count(topic, "error")
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(value),
	}
	if id, ok := rec.Fields[KeyField]; ok {
		key, err := cast.ToStringE(id)
		if err == nil {
			msg.Key = sarama.StringEncoder(key)
		}
	}

	partition, offset, err := p.client.SendMessage(msg)
	if err != nil {
		p.count(topic, "error")
		return errors.Wrapf(err, "cannot send alert to %s", topic)
	}

	p.count(topic, "ok")
	p.log.WithFields(logrus.Fields{
		"topic":     topic,
		"partition": partition,
		"offset":    offset,
	}).Debug("Published alert")
	return nil
}

// PublishAll sends every record and returns the number sent. A failing
// record does not stop the batch; all failures are returned together.
func (p *Producer) PublishAll(ctx context.Context, topic string, records []packet.AlertRecord, schemaID int) (int, error) {
	var (
		sent   int
		result *multierror.Error
	)
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}

		if err := p.Publish(topic, rec, schemaID); err != nil {
			p.log.WithError(err).WithField("index", i).Warn("Skipping alert")
			result = multierror.Append(result, &packet.RecordError{Index: i, Err: err})
			continue
		}
		sent++
	}

	return sent, result.ErrorOrNil()
}

func (p *Producer) count(topic, result string) {
	if p.published != nil {
		p.published.WithLabelValues(topic, result).Inc()
	}
}

func (p *Producer) Close() error {
	return p.client.Close()
}
