package service

import (
	"errors"
	"fmt"

	"github.com/helixml/memeindex/domain/post"
)

// Stage names the step at which a message failed.
type Stage string

// Processing stages.
const (
	StageDecode     Stage = "decode"
	StageIndex      Stage = "index"
	StageDelete     Stage = "delete"
	StageDeadLetter Stage = "dead_letter"
)

// ProcessError reports a failure to process one queue message.
type ProcessError struct {
	MessageID string
	Stage     Stage
	Err       error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("message %s: %s: %v", e.MessageID, e.Stage, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Poison reports whether the message can never succeed, regardless of
// how often it is redelivered.
func (e *ProcessError) Poison() bool {
	return errors.Is(e.Err, post.ErrInvalidCandidate)
}
