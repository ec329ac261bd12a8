package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/helixml/memeindex/domain/post"
	"github.com/helixml/memeindex/domain/queue"
	"github.com/helixml/memeindex/domain/repository"
	domainservice "github.com/helixml/memeindex/domain/service"
	"github.com/helixml/memeindex/infrastructure/persistence"
	"github.com/helixml/memeindex/internal/testdb"
	"github.com/stretchr/testify/require"
)

// hashEmbedder maps each word of a text onto one of dim buckets.
type hashEmbedder struct {
	dim int
}

func (e hashEmbedder) Model() string { return "hash-test" }

func (e hashEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v := make([]float64, e.dim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			v[int(h.Sum32())%e.dim]++
		}
		v[0] += 0.01
		out[i] = v
	}
	return out, nil
}

func newEmbeddingService(t *testing.T) (*domainservice.EmbeddingService, post.Store) {
	t.Helper()
	db := testdb.New(t)
	store, err := persistence.NewSQLitePostStore(db, 16, nil)
	require.NoError(t, err)
	svc, err := domainservice.NewEmbedding(store, hashEmbedder{dim: 16})
	require.NoError(t, err)
	return svc, store
}

type receiveResult struct {
	msgs []queue.Message
	err  error
}

// fakeQueue replays scripted receive results and records deletes. Once the
// script is exhausted it calls onDrained and blocks until ctx is done.
type fakeQueue struct {
	mu        sync.Mutex
	script    []receiveResult
	deleted   []string
	deleteErr error
	sent      [][]byte
	sendErr   error
	onDrained func()
}

func (q *fakeQueue) Send(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sendErr != nil {
		return q.sendErr
	}
	q.sent = append(q.sent, body)
	return nil
}

func (q *fakeQueue) Receive(ctx context.Context, _ int, _ time.Duration) ([]queue.Message, error) {
	q.mu.Lock()
	if len(q.script) > 0 {
		next := q.script[0]
		q.script = q.script[1:]
		q.mu.Unlock()
		return next.msgs, next.err
	}
	drained := q.onDrained
	q.mu.Unlock()
	if drained != nil {
		drained()
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *fakeQueue) Delete(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.deleteErr != nil {
		return q.deleteErr
	}
	q.deleted = append(q.deleted, receipt)
	return nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) Deleted() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

func (q *fakeQueue) Sent() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([][]byte(nil), q.sent...)
}

// scriptedEmbedding fails or panics for titles it is told about.
type scriptedEmbedding struct {
	mu      sync.Mutex
	fail    map[string]error
	panics  map[string]bool
	block   map[string]bool
	seen    map[string]bool
	active  int
	peak    int
	hold    time.Duration
	indexed []string
}

func newScriptedEmbedding() *scriptedEmbedding {
	return &scriptedEmbedding{
		fail:   map[string]error{},
		panics: map[string]bool{},
		block:  map[string]bool{},
		seen:   map[string]bool{},
	}
}

func (e *scriptedEmbedding) Index(ctx context.Context, c post.Candidate) (post.Post, bool, error) {
	e.mu.Lock()
	e.active++
	e.peak = max(e.peak, e.active)
	hold := e.hold
	err := e.fail[c.Title()]
	panics := e.panics[c.Title()]
	block := e.block[c.Title()]
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	if panics {
		panic("embedder exploded")
	}
	if block {
		<-ctx.Done()
		return post.Post{}, false, ctx.Err()
	}
	if hold > 0 {
		time.Sleep(hold)
	}
	if err != nil {
		return post.Post{}, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	created := !e.seen[c.Key()]
	e.seen[c.Key()] = true
	e.indexed = append(e.indexed, c.Title())
	return post.NewPost(c, []float64{1}, "scripted"), created, nil
}

func (e *scriptedEmbedding) Find(context.Context, string, ...repository.Option) ([]post.Ranked, error) {
	return nil, errors.New("not implemented")
}

func (e *scriptedEmbedding) Peak() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peak
}

type recordingMetrics struct {
	mu           sync.Mutex
	received     int
	indexed      int
	duplicates   int
	failed       map[string]int
	deadLettered map[string]int
	observed     int
	backoffs     []time.Duration
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{failed: map[string]int{}, deadLettered: map[string]int{}}
}

func (m *recordingMetrics) Received(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received += n
}

func (m *recordingMetrics) Indexed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed++
}

func (m *recordingMetrics) Duplicate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicates++
}

func (m *recordingMetrics) Failed(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[stage]++
}

func (m *recordingMetrics) DeadLettered(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadLettered[reason]++
}

func (m *recordingMetrics) Observe(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observed++
}

func (m *recordingMetrics) Backoff(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backoffs = append(m.backoffs, d)
}

func candidateMessage(t *testing.T, id, title, postURL string, receives int) queue.Message {
	t.Helper()
	body, err := post.NewCandidate(title, "https://i.redd.it/x.png", postURL, 10, 2).Encode()
	require.NoError(t, err)
	return queue.NewMessage(id, body, "receipt-"+id, receives)
}
