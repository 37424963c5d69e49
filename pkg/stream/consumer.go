package stream

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/open-ch/alertpacket/pkg/packet"
)

// ErrNoMessages is returned for partitions that hold no messages.
var ErrNoMessages = errors.New("no messages available")

// Message is an alert read from Kafka. Alerts that cannot be decoded carry
// the error instead.
type Message struct {
	Topic     string              `json:"topic"`
	Partition int32               `json:"partition"`
	Offset    int64               `json:"offset"`
	Timestamp time.Time           `json:"timestamp"`
	Key       string              `json:"key,omitempty"`
	SchemaID  int                 `json:"schemaId,omitempty"`
	Alert     *packet.AlertRecord `json:"alert,omitempty"`
	Error     string              `json:"error,omitempty"`
}

type decoder interface {
	Decode(msg []byte) (packet.AlertRecord, int, error)
}

type offsetSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

// Consumer reads framed alerts from Kafka.
type Consumer struct {
	consumer sarama.Consumer
	offsets  offsetSource
	codec    decoder
	log      logrus.FieldLogger
	closers  []io.Closer
}

// MonitorRequest selects the messages Monitor returns: the last Count
// messages of each partition, and with Follow everything produced later.
type MonitorRequest struct {
	Topic      string
	Partitions []int32
	Count      int64
	Follow     bool
}

// NewConsumer connects to the brokers of c.
func NewConsumer(c Config, codec decoder, log logrus.FieldLogger) (*Consumer, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("no broker set")
	}

	sc, err := saramaConfig(c)
	if err != nil {
		return nil, err
	}

	client, err := sarama.NewClient(c.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, "cannot connect to Kafka")
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "cannot create consumer")
	}

	cons := NewConsumerFromClient(consumer, client, codec, log)
	cons.closers = append(cons.closers, client)
	return cons, nil
}

// NewConsumerFromClient consumes with consumer and looks up partitions and
// offsets in offsets.
func NewConsumerFromClient(consumer sarama.Consumer, offsets offsetSource, codec decoder, log logrus.FieldLogger) *Consumer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Consumer{
		consumer: consumer,
		offsets:  offsets,
		codec:    codec,
		log:      log,
		closers:  []io.Closer{consumer},
	}
}

func (c *Consumer) Close() error {
	var first error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Receiver hands out the messages of a Monitor call.
type Receiver struct {
	cancel   context.CancelFunc
	ctx      context.Context
	messageC chan Message
	// done is closed once every partition consumer has returned.
	done chan struct{}
}

// Stop instructs the receiver to finish receiving messages.
// Does not block until all goroutines have finished. Instead,
// Next() can be called to drain the remaining messages and
// wait until all goroutines have finished.
func (r *Receiver) Stop() {
	r.cancel()
}

// Next retrieves the next message. If there are no more messages,
// io.EOF is returned. Not thread-safe.
func (r *Receiver) Next() (Message, error) {
	msg, ok := <-r.messageC
	if !ok {
		return Message{}, io.EOF
	}
	return msg, nil
}

// Monitor starts one goroutine per partition and returns the receiver
// delivering their messages.
func (c *Consumer) Monitor(ctx context.Context, req MonitorRequest) (*Receiver, error) {
	if req.Count <= 0 {
		return nil, errors.New("desired message count needs to be larger than 0")
	}

	if len(req.Partitions) == 0 {
		p, err := c.offsets.Partitions(req.Topic)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot list partitions of %s", req.Topic)
		}

		req.Partitions = p
	}
	if len(req.Partitions) == 0 {
		return nil, errors.Errorf("topic %s has no partitions", req.Topic)
	}

	ctx, cancel := context.WithCancel(ctx)

	rec := &Receiver{
		cancel:   cancel,
		ctx:      ctx,
		messageC: make(chan Message),
		done:     make(chan struct{}),
	}

	var wg sync.WaitGroup
	for _, partition := range req.Partitions {
		partition := partition

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.consume(rec, req.Topic, partition, req.Count, req.Follow); err != nil {
				if errors.Is(err, ErrNoMessages) {
					c.log.Warnf("no messages available on partition %d", partition)
				} else {
					c.log.Error(err)
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(rec.messageC)
		close(rec.done)
	}()

	return rec, nil
}

func (c *Consumer) consume(receiver *Receiver, topic string, partition int32, count int64, follow bool) error {
	offsetNewest, err := c.offsets.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return err
	}

	offsetOldest, err := c.offsets.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return err
	}

	if offsetOldest == offsetNewest && !follow {
		return ErrNoMessages
	}

	offsetStart := offsetNewest - count
	if offsetStart < offsetOldest {
		offsetStart = offsetOldest
	}

	offsetEnd := offsetNewest - 1
	if follow {
		offsetEnd = sarama.OffsetNewest
	}

	c.log.Infof("starting consumer for partition %d at offset %d", partition, offsetStart)

	pc, err := c.consumer.ConsumePartition(topic, partition, offsetStart)
	if err != nil {
		return errors.Wrapf(err, "cannot consume partition %d", partition)
	}
	defer pc.Close()

	for {
		select {
		case <-receiver.ctx.Done():
			return nil

		case message, ok := <-pc.Messages():
			if !ok {
				return nil
			}

			msg := c.decode(message)

			select {
			case <-receiver.ctx.Done():
				return nil
			case receiver.messageC <- msg:
			}

			if msg.Offset == offsetEnd {
				return nil
			}
		}
	}
}

// decode turns a Kafka message into a Message. A decoding failure is kept
// in the message so that reading goes on.
func (c *Consumer) decode(message *sarama.ConsumerMessage) Message {
	msg := Message{
		Topic:     message.Topic,
		Partition: message.Partition,
		Offset:    message.Offset,
		Timestamp: message.Timestamp,
		Key:       string(message.Key),
	}

	rec, id, err := c.codec.Decode(message.Value)
	msg.SchemaID = id
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"partition": message.Partition,
			"offset":    message.Offset,
		}).Warn("Skipping alert")
		msg.Error = err.Error()
		return msg
	}

	msg.Alert = &rec
	return msg
}
