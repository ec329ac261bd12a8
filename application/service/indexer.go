package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/helixml/memeindex/domain/post"
	"github.com/helixml/memeindex/domain/queue"
	domainservice "github.com/helixml/memeindex/domain/service"
	"github.com/helixml/memeindex/internal/config"
	"golang.org/x/sync/errgroup"
)

// idleDelay paces the loop when the queue is polled without a wait.
const idleDelay = time.Second

// Dead-letter reasons.
const (
	ReasonPoison      = "poison"
	ReasonMaxReceives = "max_receives"
)

// BatchResult summarises one processed batch.
type BatchResult struct {
	Received     int
	Indexed      int
	Duplicates   int
	Failed       int
	DeadLettered int
}

type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeDuplicate
	outcomeFailed
	outcomeDeadLettered
)

func (r *BatchResult) add(o outcome) {
	switch o {
	case outcomeIndexed:
		r.Indexed++
	case outcomeDuplicate:
		r.Duplicates++
	case outcomeFailed:
		r.Failed++
	case outcomeDeadLettered:
		r.DeadLettered++
	}
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithDeadLetter routes poison and exhausted messages to sender.
func WithDeadLetter(sender queue.Sender) IndexerOption {
	return func(ix *Indexer) { ix.deadLetter = sender }
}

// WithIndexerMetrics sets the metrics sink.
func WithIndexerMetrics(m IndexerMetrics) IndexerOption {
	return func(ix *Indexer) {
		if m != nil {
			ix.metrics = m
		}
	}
}

// WithIndexerLogger sets the logger.
func WithIndexerLogger(l *slog.Logger) IndexerOption {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// Indexer consumes candidate messages, embeds and stores them, and deletes
// each message only after it has been persisted.
type Indexer struct {
	queue      queue.Queue
	deadLetter queue.Sender
	embedding  domainservice.Embedding
	cfg        config.IndexerConfig
	metrics    IndexerMetrics
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewIndexer creates an indexer reading from q.
func NewIndexer(q queue.Queue, embedding domainservice.Embedding, cfg config.IndexerConfig, opts ...IndexerOption) (*Indexer, error) {
	if q == nil {
		return nil, fmt.Errorf("NewIndexer: nil queue")
	}
	if embedding == nil {
		return nil, fmt.Errorf("NewIndexer: nil embedding service")
	}
	ix := &Indexer{
		queue:     q,
		embedding: embedding,
		cfg:       cfg,
		metrics:   NoopMetrics{},
		logger:    slog.Default(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Start runs the indexer loop in a goroutine until Stop is called.
func (ix *Indexer) Start(ctx context.Context) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ctx, ix.cancel = context.WithCancel(ctx)
	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		_ = ix.Run(ctx)
	}()
}

// Stop cancels the loop and waits for in-flight messages to finish.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	cancel := ix.cancel
	ix.cancel = nil
	ix.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	ix.wg.Wait()
}

// Run polls the queue until ctx is cancelled. Receive failures are retried
// with capped exponential backoff and never end the loop. Run returns nil
// on cancellation.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.logger.Info("indexer started",
		slog.Int("batch_size", ix.cfg.BatchSize()),
		slog.Int("concurrency", ix.concurrency()),
		slog.Duration("wait", ix.cfg.Wait()),
		slog.Bool("dead_letter", ix.deadLetter != nil),
	)
	backoff := newLoopBackoff(ix.cfg.BackoffInitial(), ix.cfg.BackoffMax(), ix.cfg.PersistentFailures())

	for {
		if ctx.Err() != nil {
			ix.logger.Info("indexer stopping")
			return nil
		}

		received, err := ix.iterate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				ix.logger.Info("indexer stopping")
				return nil
			}
			delay, failures, persistent := backoff.Failure()
			ix.metrics.Backoff(delay)
			attrs := []any{
				slog.String("error", err.Error()),
				slog.Int("consecutive_failures", failures),
				slog.Duration("retry_in", delay),
			}
			if persistent {
				ix.logger.Error("indexer loop failing", append(attrs, slog.Bool("persistent", true))...)
			} else {
				ix.logger.Warn("indexer loop failed", attrs...)
			}
			if err := ix.sleep(ctx, delay); err != nil {
				ix.logger.Info("indexer stopping")
				return nil
			}
			continue
		}

		if backoff.Success() {
			ix.metrics.Backoff(0)
			ix.logger.Info("indexer loop recovered")
		}
		if received == 0 && ix.cfg.Wait() <= 0 {
			if err := ix.sleep(ctx, idleDelay); err != nil {
				ix.logger.Info("indexer stopping")
				return nil
			}
		}
	}
}

// iterate receives and processes one batch. A panic escaping the batch is
// reported as a loop failure.
func (ix *Indexer) iterate(ctx context.Context) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indexer loop panicked: %v", r)
		}
	}()

	msgs, err := ix.queue.Receive(ctx, ix.cfg.BatchSize(), ix.cfg.Wait())
	if err != nil {
		return 0, fmt.Errorf("receive: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	ix.metrics.Received(len(msgs))
	ix.ProcessBatch(ctx, msgs)
	return len(msgs), nil
}

// ProcessBatch handles msgs with bounded concurrency. Failures of single
// messages are contained: they are logged, counted and either left for
// redelivery or dead-lettered.
func (ix *Indexer) ProcessBatch(ctx context.Context, msgs []queue.Message) BatchResult {
	result := BatchResult{Received: len(msgs)}
	if len(msgs) == 0 {
		return result
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(ix.concurrency())
	for _, m := range msgs {
		g.Go(func() error {
			o := ix.handle(ctx, m)
			mu.Lock()
			result.add(o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	ix.logger.Info("batch processed",
		slog.Int("received", result.Received),
		slog.Int("indexed", result.Indexed),
		slog.Int("duplicates", result.Duplicates),
		slog.Int("failed", result.Failed),
		slog.Int("dead_lettered", result.DeadLettered),
	)
	return result
}

func (ix *Indexer) concurrency() int {
	return max(ix.cfg.Concurrency(), 1)
}

func (ix *Indexer) handle(ctx context.Context, m queue.Message) outcome {
	start := time.Now()
	defer func() { ix.metrics.Observe(time.Since(start)) }()

	mctx := ctx
	if timeout := ix.cfg.MessageTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	created, perr := ix.executeWithRecovery(mctx, m)
	if perr != nil {
		return ix.fail(ctx, m, perr)
	}

	if err := ix.queue.Delete(ctx, m.Receipt()); err != nil {
		// The record is stored; a redelivery will be a no-op duplicate.
		ix.logger.Warn("indexed message not deleted",
			slog.String("message_id", m.ID()),
			slog.String("error", err.Error()),
		)
		ix.metrics.Failed(string(StageDelete))
		return outcomeFailed
	}

	if !created {
		ix.metrics.Duplicate()
		ix.logger.Debug("duplicate post skipped", slog.String("message_id", m.ID()))
		return outcomeDuplicate
	}
	ix.metrics.Indexed()
	ix.logger.Debug("post indexed", slog.String("message_id", m.ID()))
	return outcomeIndexed
}

func (ix *Indexer) executeWithRecovery(ctx context.Context, m queue.Message) (created bool, perr *ProcessError) {
	defer func() {
		if r := recover(); r != nil {
			perr = &ProcessError{MessageID: m.ID(), Stage: StageIndex, Err: fmt.Errorf("handler panicked: %v", r)}
		}
	}()

	candidate, err := post.DecodeCandidate(m.Body())
	if err != nil {
		return false, &ProcessError{MessageID: m.ID(), Stage: StageDecode, Err: err}
	}
	_, created, err = ix.embedding.Index(ctx, candidate)
	if err != nil {
		return false, &ProcessError{MessageID: m.ID(), Stage: StageIndex, Err: err}
	}
	return created, nil
}

func (ix *Indexer) fail(ctx context.Context, m queue.Message, perr *ProcessError) outcome {
	ix.logger.Error("message processing failed",
		slog.String("message_id", m.ID()),
		slog.String("stage", string(perr.Stage)),
		slog.Int("receive_count", m.ReceiveCount()),
		slog.Bool("poison", perr.Poison()),
		slog.String("error", perr.Err.Error()),
	)

	reason := ""
	switch {
	case perr.Poison():
		reason = ReasonPoison
	case ix.cfg.MaxReceives() > 0 && m.ReceiveCount() >= ix.cfg.MaxReceives():
		reason = ReasonMaxReceives
	}
	if reason != "" && ix.sendToDeadLetter(ctx, m, reason) {
		return outcomeDeadLettered
	}

	ix.metrics.Failed(string(perr.Stage))
	return outcomeFailed
}

// sendToDeadLetter copies the message to the dead-letter queue and then
// deletes the original. Without a dead-letter queue the message is left for
// redelivery.
func (ix *Indexer) sendToDeadLetter(ctx context.Context, m queue.Message, reason string) bool {
	if ix.deadLetter == nil {
		ix.logger.Warn("no dead-letter queue configured, message left for redelivery",
			slog.String("message_id", m.ID()),
			slog.String("reason", reason),
		)
		return false
	}
	if err := ix.deadLetter.Send(ctx, m.Body()); err != nil {
		ix.logger.Error("dead-letter send failed",
			slog.String("message_id", m.ID()),
			slog.String("error", err.Error()),
		)
		ix.metrics.Failed(string(StageDeadLetter))
		return false
	}
	if err := ix.queue.Delete(ctx, m.Receipt()); err != nil {
		ix.logger.Warn("dead-lettered message not deleted",
			slog.String("message_id", m.ID()),
			slog.String("error", err.Error()),
		)
	}
	ix.metrics.DeadLettered(reason)
	ix.logger.Warn("message dead-lettered",
		slog.String("message_id", m.ID()),
		slog.String("reason", reason),
		slog.Int("receive_count", m.ReceiveCount()),
	)
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
