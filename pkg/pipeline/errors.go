package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSerialization marks a batch aborted because an event could not be encoded.
	ErrSerialization = errors.New("event serialization failed")
	// ErrSend marks a message the broker did not acknowledge.
	ErrSend = errors.New("send failed")
	// ErrFlush marks a failed producer flush after the acknowledgement barrier.
	ErrFlush = errors.New("producer flush failed")

	ErrProducerNotFound = errors.New("producer not found")
	ErrProducerClosed   = errors.New("producer closed")
)

// SendError is the failure of a single dispatched message.
type SendError struct {
	Topic string
	Key   []byte
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s (key %q): %v", e.Topic, e.Key, e.Err)
}

func (e *SendError) Unwrap() []error {
	return []error{ErrSend, e.Err}
}

// BatchError is the single failure reported for a batch. Err combines every
// underlying failure and can be inspected with errors.Is / errors.As.
type BatchError struct {
	Table      string
	Dispatched int
	Failed     int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch for table %s failed (%d of %d messages failed): %v",
		e.Table, e.Failed, e.Dispatched, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
