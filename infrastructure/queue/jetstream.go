package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helixml/memeindex/domain/queue"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamPublisher publishes to a JetStream subject.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type inflight struct {
	msg      jetstream.Msg
	received time.Time
}

// JetStream adapts a JetStream stream and durable pull consumer to
// queue.Queue. The consumer's AckWait acts as the visibility window and an
// ack deletes the message.
type JetStream struct {
	conn       *nats.Conn
	publisher  JetStreamPublisher
	consumer   jetstream.Consumer
	subject    string
	visibility time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]inflight
}

// ConnectJetStream connects to the server at url and provisions a stream
// named name with subject "<name>.new" and a durable consumer on it.
func ConnectJetStream(ctx context.Context, url, name string, visibility time.Duration, logger *slog.Logger) (*JetStream, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url, nats.Name("memeindex"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	subject := name + ".new"
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create stream %s: %w", name, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       name + "-indexer",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       visibility,
		FilterSubject: subject,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create consumer on %s: %w", name, err)
	}

	logger.Info("connected to jetstream",
		slog.String("url", url),
		slog.String("stream", name),
		slog.String("subject", subject),
	)

	q := NewJetStream(js, consumer, subject, visibility, logger)
	q.conn = conn
	return q, nil
}

// NewJetStream wraps an existing publisher and consumer.
func NewJetStream(publisher JetStreamPublisher, consumer jetstream.Consumer, subject string, visibility time.Duration, logger *slog.Logger) *JetStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &JetStream{
		publisher:  publisher,
		consumer:   consumer,
		subject:    subject,
		visibility: visibility,
		logger:     logger,
		inflight:   make(map[string]inflight),
	}
}

// Send publishes body to the stream subject.
func (q *JetStream) Send(ctx context.Context, body []byte) error {
	if _, err := q.publisher.Publish(ctx, q.subject, body); err != nil {
		return fmt.Errorf("publish to %s: %w", q.subject, err)
	}
	return nil
}

// Receive pulls up to limit messages, waiting at most wait.
func (q *JetStream) Receive(ctx context.Context, limit int, wait time.Duration) ([]queue.Message, error) {
	if q.consumer == nil {
		return nil, errors.New("jetstream queue has no consumer")
	}
	limit = max(limit, 1)
	q.prune()

	var (
		batch jetstream.MessageBatch
		err   error
	)
	if wait > 0 {
		batch, err = q.consumer.Fetch(limit, jetstream.FetchMaxWait(wait))
	} else {
		batch, err = q.consumer.FetchNoWait(limit)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch from %s: %w", q.subject, err)
	}

	msgs := make([]queue.Message, 0, limit)
	for m := range batch.Messages() {
		msgs = append(msgs, q.track(m))
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, jetstream.ErrNoMessages) {
		return msgs, fmt.Errorf("fetch from %s: %w", q.subject, err)
	}
	if len(msgs) == 0 && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return msgs, nil
}

func (q *JetStream) track(m jetstream.Msg) queue.Message {
	id := ""
	count := 1
	if meta, err := m.Metadata(); err == nil {
		id = strconv.FormatUint(meta.Sequence.Stream, 10)
		count = int(meta.NumDelivered)
	}

	receipt := uuid.NewString()
	q.mu.Lock()
	q.inflight[receipt] = inflight{msg: m, received: time.Now()}
	q.mu.Unlock()

	return queue.NewMessage(id, m.Data(), receipt, count)
}

// prune forgets receipts whose ack window has passed; the server will
// redeliver those messages under a new receipt.
func (q *JetStream) prune() {
	if q.visibility <= 0 {
		return
	}
	cutoff := time.Now().Add(-q.visibility)
	q.mu.Lock()
	defer q.mu.Unlock()
	for receipt, f := range q.inflight {
		if f.received.Before(cutoff) {
			delete(q.inflight, receipt)
		}
	}
}

// Delete acks the message held under receipt.
func (q *JetStream) Delete(ctx context.Context, receipt string) error {
	q.mu.Lock()
	f, ok := q.inflight[receipt]
	if ok {
		delete(q.inflight, receipt)
	}
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", queue.ErrUnknownReceipt, receipt)
	}

	if err := f.msg.DoubleAck(ctx); err != nil {
		return fmt.Errorf("ack on %s: %w", q.subject, err)
	}
	return nil
}

// Close drains the connection when the queue owns it.
func (q *JetStream) Close() error {
	if q.conn == nil {
		return nil
	}
	if err := q.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}

var _ queue.Queue = (*JetStream)(nil)
