package logsink

import "errors"

var ErrQueueFull = errors.New("pending log queue is full")

// Overflow decides what a bounded queue does when a record arrives at
// capacity.
type Overflow string

const (
	OverflowDropOldest Overflow = "drop_oldest"
	OverflowRejectNew  Overflow = "reject_new"
)

// PendingQueue holds records awaiting delivery in enqueue order.
type PendingQueue interface {
	// Push appends a record. Records whose event id is already queued are
	// ignored.
	Push(record LogRecord) error
	// Peek returns the oldest record without removing it.
	Peek() (LogRecord, bool, error)
	Remove(eventID string) error
	Len() int
}

type QueueOption func(*queueOptions)

type queueOptions struct {
	limit    int
	overflow Overflow
}

// WithLimit bounds the queue. Zero or negative means unbounded.
func WithLimit(limit int) QueueOption {
	return func(o *queueOptions) { o.limit = limit }
}

func WithOverflow(overflow Overflow) QueueOption {
	return func(o *queueOptions) {
		if overflow != "" {
			o.overflow = overflow
		}
	}
}

func newQueueOptions(opts []QueueOption) queueOptions {
	options := queueOptions{overflow: OverflowDropOldest}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

type MemoryQueue struct {
	options queueOptions
	records []LogRecord
}

var _ PendingQueue = (*MemoryQueue)(nil)

func NewMemoryQueue(opts ...QueueOption) *MemoryQueue {
	return &MemoryQueue{options: newQueueOptions(opts)}
}

func (q *MemoryQueue) Push(record LogRecord) error {
	if q.indexOf(record.EventID) >= 0 {
		return nil
	}

	if q.options.limit > 0 && len(q.records) >= q.options.limit {
		switch q.options.overflow {
		case OverflowRejectNew:
			return ErrQueueFull
		default:
			q.records = q.records[1:]
		}
	}

	q.records = append(q.records, record)
	return nil
}

func (q *MemoryQueue) Peek() (LogRecord, bool, error) {
	if len(q.records) == 0 {
		return LogRecord{}, false, nil
	}
	return q.records[0], true, nil
}

func (q *MemoryQueue) Remove(eventID string) error {
	if i := q.indexOf(eventID); i >= 0 {
		q.records = append(q.records[:i], q.records[i+1:]...)
	}
	return nil
}

func (q *MemoryQueue) Len() int { return len(q.records) }

func (q *MemoryQueue) indexOf(eventID string) int {
	for i, record := range q.records {
		if record.EventID == eventID {
			return i
		}
	}
	return -1
}
