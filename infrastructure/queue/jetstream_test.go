package queue

import (
	"context"
	"testing"
	"time"

	"github.com/helixml/memeindex/domain/queue"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	subjects []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, subject string, payload []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, payload)
	return &jetstream.PubAck{Stream: "memes", Sequence: uint64(len(p.payloads))}, nil
}

type fakeJSMsg struct {
	jetstream.Msg
	data      []byte
	seq       uint64
	delivered uint64
	acked     bool
}

func (m *fakeJSMsg) Data() []byte { return m.data }

func (m *fakeJSMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{
		Sequence:     jetstream.SequencePair{Stream: m.seq, Consumer: m.seq},
		NumDelivered: m.delivered,
	}, nil
}

func (m *fakeJSMsg) DoubleAck(context.Context) error {
	m.acked = true
	return nil
}

type fakeBatch struct {
	msgs chan jetstream.Msg
	err  error
}

func (b *fakeBatch) Messages() <-chan jetstream.Msg { return b.msgs }
func (b *fakeBatch) Error() error                   { return b.err }

type fakeConsumer struct {
	jetstream.Consumer
	pending  []*fakeJSMsg
	fetched  int
	noWaited int
}

func (c *fakeConsumer) batch(n int) *fakeBatch {
	count := min(n, len(c.pending))
	ch := make(chan jetstream.Msg, count)
	for _, m := range c.pending[:count] {
		ch <- m
	}
	c.pending = c.pending[count:]
	close(ch)
	return &fakeBatch{msgs: ch}
}

func (c *fakeConsumer) Fetch(n int, _ ...jetstream.FetchOpt) (jetstream.MessageBatch, error) {
	c.fetched++
	return c.batch(n), nil
}

func (c *fakeConsumer) FetchNoWait(n int) (jetstream.MessageBatch, error) {
	c.noWaited++
	return c.batch(n), nil
}

func TestJetStream_Send(t *testing.T) {
	pub := &fakePublisher{}
	q := NewJetStream(pub, &fakeConsumer{}, "memes.new", time.Minute, nil)

	require.NoError(t, q.Send(context.Background(), []byte(`{"title":"a"}`)))
	assert.Equal(t, []string{"memes.new"}, pub.subjects)
	assert.Equal(t, `{"title":"a"}`, string(pub.payloads[0]))
}

func TestJetStream_ReceiveAndDelete(t *testing.T) {
	first := &fakeJSMsg{data: []byte(`a`), seq: 7, delivered: 1}
	second := &fakeJSMsg{data: []byte(`b`), seq: 8, delivered: 4}
	consumer := &fakeConsumer{pending: []*fakeJSMsg{first, second}}
	q := NewJetStream(&fakePublisher{}, consumer, "memes.new", time.Minute, nil)
	ctx := context.Background()

	msgs, err := q.Receive(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, 1, consumer.fetched)

	assert.Equal(t, "7", msgs[0].ID())
	assert.Equal(t, "a", string(msgs[0].Body()))
	assert.Equal(t, 1, msgs[0].ReceiveCount())
	assert.Equal(t, 4, msgs[1].ReceiveCount())

	require.NoError(t, q.Delete(ctx, msgs[0].Receipt()))
	assert.True(t, first.acked)
	assert.False(t, second.acked)

	err = q.Delete(ctx, msgs[0].Receipt())
	assert.ErrorIs(t, err, queue.ErrUnknownReceipt)
}

func TestJetStream_ReceiveWithoutWait(t *testing.T) {
	consumer := &fakeConsumer{}
	q := NewJetStream(&fakePublisher{}, consumer, "memes.new", time.Minute, nil)

	msgs, err := q.Receive(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Equal(t, 1, consumer.noWaited)
}

func TestJetStream_PrunesExpiredReceipts(t *testing.T) {
	consumer := &fakeConsumer{pending: []*fakeJSMsg{{data: []byte(`a`), seq: 1, delivered: 1}}}
	q := NewJetStream(&fakePublisher{}, consumer, "memes.new", time.Millisecond, nil)
	ctx := context.Background()

	msgs, err := q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	time.Sleep(5 * time.Millisecond)
	_, err = q.Receive(ctx, 1, 0)
	require.NoError(t, err)

	err = q.Delete(ctx, msgs[0].Receipt())
	assert.ErrorIs(t, err, queue.ErrUnknownReceipt)
}

func TestJetStream_CloseWithoutConnection(t *testing.T) {
	q := NewJetStream(&fakePublisher{}, &fakeConsumer{}, "memes.new", time.Minute, nil)
	assert.NoError(t, q.Close())
}
