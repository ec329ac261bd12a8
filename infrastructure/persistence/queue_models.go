package persistence

import "time"

// QueueMessageModel is a row of the database-backed queue.
type QueueMessageModel struct {
	ID           string    `gorm:"column:id;primaryKey;size:36"`
	Queue        string    `gorm:"column:queue;size:255;not null;index:idx_queue_messages_visible,priority:1"`
	Body         []byte    `gorm:"column:body;not null"`
	VisibleAt    time.Time `gorm:"column:visible_at;not null;index:idx_queue_messages_visible,priority:2"`
	Receipt      *string   `gorm:"column:receipt;size:36;uniqueIndex"`
	ReceiveCount int       `gorm:"column:receive_count;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the queue table.
func (QueueMessageModel) TableName() string { return "queue_messages" }
