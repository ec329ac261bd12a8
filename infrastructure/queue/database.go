// Package queue provides queue.Queue implementations: a table-backed queue
// on the application database, Amazon SQS, and NATS JetStream.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/helixml/memeindex/domain/queue"
	"github.com/helixml/memeindex/domain/repository"
	"github.com/helixml/memeindex/infrastructure/persistence"
	"github.com/helixml/memeindex/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultPollInterval = 250 * time.Millisecond

// Database is a visibility-timeout queue stored in the queue_messages table.
// Several named queues share the table.
type Database struct {
	db           database.Database
	name         string
	visibility   time.Duration
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// DatabaseOption configures a Database queue.
type DatabaseOption func(*Database)

// WithPollInterval sets how often an empty queue is re-checked while long polling.
func WithPollInterval(d time.Duration) DatabaseOption {
	return func(q *Database) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) DatabaseOption {
	return func(q *Database) {
		if now != nil {
			q.now = now
		}
	}
}

// WithDatabaseLogger sets the logger.
func WithDatabaseLogger(l *slog.Logger) DatabaseOption {
	return func(q *Database) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewDatabase creates a queue named name. The table must exist (see
// persistence.AutoMigrate).
func NewDatabase(db database.Database, name string, visibility time.Duration, opts ...DatabaseOption) (*Database, error) {
	if name == "" {
		return nil, errors.New("queue name is required")
	}
	if visibility <= 0 {
		return nil, fmt.Errorf("invalid visibility timeout %s", visibility)
	}
	q := &Database{
		db:           db,
		name:         name,
		visibility:   visibility,
		pollInterval: defaultPollInterval,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Name returns the queue name.
func (q *Database) Name() string { return q.name }

func (q *Database) clock() time.Time {
	return q.now().UTC().Truncate(time.Microsecond)
}

// Send enqueues a message that is visible immediately.
func (q *Database) Send(ctx context.Context, body []byte) error {
	now := q.clock()
	row := persistence.QueueMessageModel{
		ID:        uuid.NewString(),
		Queue:     q.name,
		Body:      body,
		VisibleAt: now,
		CreatedAt: now,
	}
	if err := q.db.Session(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("send to %s: %w", q.name, err)
	}
	return nil
}

// Receive claims up to limit visible messages, polling until wait elapses.
func (q *Database) Receive(ctx context.Context, limit int, wait time.Duration) ([]queue.Message, error) {
	limit = max(limit, 1)
	deadline := q.now().Add(wait)

	for {
		msgs, err := q.claim(ctx, limit)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}

		remaining := deadline.Sub(q.now())
		if remaining <= 0 {
			return []queue.Message{}, nil
		}
		sleep := q.pollInterval
		if remaining < sleep {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Database) claim(ctx context.Context, limit int) ([]queue.Message, error) {
	return database.WithTransactionResult(ctx, q.db, func(tx database.Database) ([]queue.Message, error) {
		now := q.clock()

		session := tx.Session(ctx)
		if tx.IsPostgres() {
			session = session.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		session = database.ApplyOptions(session.Model(&persistence.QueueMessageModel{}),
			repository.WithCondition("queue", q.name),
			repository.WithWhere("visible_at <= ?", now),
			repository.WithOrderAsc("created_at"),
			repository.WithOrderAsc("id"),
			repository.WithLimit(limit),
		)

		var rows []persistence.QueueMessageModel
		if err := session.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("receive from %s: %w", q.name, err)
		}

		msgs := make([]queue.Message, 0, len(rows))
		visibleAt := now.Add(q.visibility)
		for _, row := range rows {
			receipt := uuid.NewString()
			result := tx.Session(ctx).Model(&persistence.QueueMessageModel{}).
				Where("id = ?", row.ID).
				Updates(map[string]any{
					"receipt":       receipt,
					"visible_at":    visibleAt,
					"receive_count": gorm.Expr("receive_count + 1"),
				})
			if result.Error != nil {
				return nil, fmt.Errorf("claim %s: %w", row.ID, result.Error)
			}
			msgs = append(msgs, queue.NewMessage(row.ID, row.Body, receipt, row.ReceiveCount+1))
		}
		return msgs, nil
	})
}

// Delete removes the message held under receipt. A receipt invalidated by
// redelivery returns queue.ErrUnknownReceipt.
func (q *Database) Delete(ctx context.Context, receipt string) error {
	result := q.db.Session(ctx).
		Where("queue = ? AND receipt = ?", q.name, receipt).
		Delete(&persistence.QueueMessageModel{})
	if result.Error != nil {
		return fmt.Errorf("delete from %s: %w", q.name, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", queue.ErrUnknownReceipt, receipt)
	}
	return nil
}

// Depth returns the number of messages in the queue, visible or not.
func (q *Database) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.Session(ctx).Model(&persistence.QueueMessageModel{}).
		Where("queue = ?", q.name).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.name, err)
	}
	return count, nil
}

// Close is a no-op; the database handle is owned by the caller.
func (q *Database) Close() error {
	q.logger.Debug("database queue closed", slog.String("queue", q.name))
	return nil
}

var _ queue.Queue = (*Database)(nil)
