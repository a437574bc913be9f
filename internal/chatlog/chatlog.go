package chatlog

import "time"

type EntryKind int

const (
	UserQuery EntryKind = iota + 1
	SystemNotice
	EchoedQuery
)

func (k EntryKind) String() string {
	switch k {
	case UserQuery:
		return "user"
	case SystemNotice:
		return "system"
	case EchoedQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Entry is one line of the chat transcript. Structured carries the decoded form of an
// echoed document query; Content always holds its text rendering.
type Entry struct {
	Kind       EntryKind
	Content    string
	Structured any
	CreatedAt  time.Time
}

// Log is an append-only transcript. It is not safe for concurrent writers; the owning
// session serializes access.
type Log struct {
	entries []Entry
	now     func() time.Time
}

func New() *Log {
	return &Log{now: func() time.Time { return time.Now().UTC() }}
}

func NewWithClock(now func() time.Time) *Log {
	if now == nil {
		return New()
	}
	return &Log{now: now}
}

func (l *Log) Append(entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now()
	}
	l.entries = append(l.entries, entry)
}

// All returns a snapshot in insertion order.
func (l *Log) All() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	return len(l.entries)
}
