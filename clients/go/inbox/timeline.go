package inbox

import (
	"sort"
	"sync"
	"time"

	"github.com/eldtechnologies/inbox/internal/crypto"
)

// Entry is one line of a conversation as shown to the user. It is exactly
// one of Confirmed, Pending or Failed.
type Entry interface {
	// SortTime orders entries in a timeline.
	SortTime() time.Time
	// SortKey breaks ties between entries with equal times.
	SortKey() string
	isEntry()
}

// Confirmed is a message the server has stored.
type Confirmed struct {
	Message Message
}

// Pending is a locally composed message awaiting the server's answer.
type Pending struct {
	CorrelationID string
	Draft         string
	QueuedAt      time.Time
}

// Failed is a send the server rejected or that never reached it. It stays
// out of the timeline until the user resubmits it.
type Failed struct {
	CorrelationID string
	Draft         string
	Reason        error
	FailedAt      time.Time
}

func (e Confirmed) SortTime() time.Time { return e.Message.CreatedAt }
func (e Confirmed) SortKey() string     { return e.Message.ID }
func (Confirmed) isEntry()              {}

func (e Pending) SortTime() time.Time { return e.QueuedAt }
func (e Pending) SortKey() string     { return e.CorrelationID }
func (Pending) isEntry()              {}

func (e Failed) SortTime() time.Time { return e.FailedAt }
func (e Failed) SortKey() string     { return e.CorrelationID }
func (Failed) isEntry()              {}

// Timeline merges server messages with local optimistic sends for one
// conversation. It is safe for concurrent use by senders and pollers.
type Timeline struct {
	mu        sync.Mutex
	confirmed map[string]Message // by message id
	pending   map[string]Pending // by correlation id
	failed    map[string]Failed  // by correlation id
	now       func() time.Time
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		confirmed: make(map[string]Message),
		pending:   make(map[string]Pending),
		failed:    make(map[string]Failed),
		now:       time.Now,
	}
}

// AddPending records a draft that is about to be sent and returns its
// correlation id.
func (t *Timeline) AddPending(draft string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := crypto.NewULID()
	t.pending[id] = Pending{CorrelationID: id, Draft: draft, QueuedAt: t.now()}
	return id
}

// Confirm replaces a pending entry with the stored message. It reports
// false, and changes nothing, if correlationID is not pending: unknown
// ids, repeated confirmations and sends a refresh already resolved are
// ignored.
func (t *Timeline) Confirm(correlationID string, msg Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[correlationID]; !ok {
		return false
	}
	delete(t.pending, correlationID)
	t.confirmed[msg.ID] = msg
	return true
}

// Fail moves a pending entry to the failure list. Failed sends are never
// retried without an explicit Resubmit.
func (t *Timeline) Fail(correlationID string, reason error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[correlationID]
	if !ok {
		return false
	}
	delete(t.pending, correlationID)
	t.failed[correlationID] = Failed{
		CorrelationID: correlationID,
		Draft:         p.Draft,
		Reason:        reason,
		FailedAt:      t.now(),
	}
	return true
}

// Resubmit turns a failure back into a pending entry with the same
// correlation id and returns it.
func (t *Timeline) Resubmit(correlationID string) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, ok := t.failed[correlationID]
	if !ok {
		return Pending{}, false
	}
	delete(t.failed, correlationID)
	p := Pending{CorrelationID: correlationID, Draft: f.Draft, QueuedAt: t.now()}
	t.pending[correlationID] = p
	return p, true
}

// Merge adds messages fetched from the server. Messages are keyed by id,
// so overlapping refreshes are harmless. A fetched message carrying the
// correlation id of a pending or failed send resolves that send: the
// server stored it, so it is shown once, as confirmed.
func (t *Timeline) Merge(messages []Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, msg := range messages {
		if msg.CorrelationID != "" {
			delete(t.pending, msg.CorrelationID)
			delete(t.failed, msg.CorrelationID)
		}
		t.confirmed[msg.ID] = msg
	}
}

// Entries returns confirmed and pending entries ordered by time, then id.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	entries := make([]Entry, 0, len(t.confirmed)+len(t.pending))
	for _, msg := range t.confirmed {
		entries = append(entries, Confirmed{Message: msg})
	}
	for _, p := range t.pending {
		entries = append(entries, p)
	}
	t.mu.Unlock()

	sortEntries(entries)
	return entries
}

// Failures returns failed sends, oldest first.
func (t *Timeline) Failures() []Failed {
	t.mu.Lock()
	failures := make([]Failed, 0, len(t.failed))
	for _, f := range t.failed {
		failures = append(failures, f)
	}
	t.mu.Unlock()

	sort.Slice(failures, func(i, j int) bool {
		if !failures[i].FailedAt.Equal(failures[j].FailedAt) {
			return failures[i].FailedAt.Before(failures[j].FailedAt)
		}
		return failures[i].CorrelationID < failures[j].CorrelationID
	})
	return failures
}

// Oldest returns the id of the oldest confirmed message, for paging back.
func (t *Timeline) Oldest() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var oldest *Message
	for id := range t.confirmed {
		msg := t.confirmed[id]
		if oldest == nil || msg.CreatedAt.Before(oldest.CreatedAt) ||
			(msg.CreatedAt.Equal(oldest.CreatedAt) && msg.ID < oldest.ID) {
			oldest = &msg
		}
	}
	if oldest == nil {
		return ""
	}
	return oldest.ID
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].SortTime(), entries[j].SortTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return entries[i].SortKey() < entries[j].SortKey()
	})
}
