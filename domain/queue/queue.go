// Package queue defines the durable, at-least-once message queue between the
// crawler and the indexer.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownReceipt is returned when deleting with a receipt that is not, or
// no longer, held.
var ErrUnknownReceipt = errors.New("unknown receipt")

// Message is a received queue message. It stays invisible to other
// receivers for the visibility window and reappears unless deleted.
type Message struct {
	id           string
	body         []byte
	receipt      string
	receiveCount int
}

// NewMessage creates a Message.
func NewMessage(id string, body []byte, receipt string, receiveCount int) Message {
	return Message{id: id, body: body, receipt: receipt, receiveCount: receiveCount}
}

// ID returns the message identifier.
func (m Message) ID() string { return m.id }

// Body returns the raw payload.
func (m Message) Body() []byte { return m.body }

// Receipt returns the handle used to delete this delivery.
func (m Message) Receipt() string { return m.receipt }

// ReceiveCount returns how many times the message has been delivered, including this one.
func (m Message) ReceiveCount() int { return m.receiveCount }

// Sender publishes message bodies.
type Sender interface {
	Send(ctx context.Context, body []byte) error
}

// Queue is a durable queue with visibility-timeout redelivery.
type Queue interface {
	Sender
	// Receive long-polls up to wait for at most max messages. An empty
	// result with a nil error means the wait elapsed.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	// Delete removes the delivered message so it is never redelivered.
	Delete(ctx context.Context, receipt string) error
	Close() error
}
