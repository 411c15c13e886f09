package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func createPair(t *testing.T, s *SQLiteStore) (uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	a, err := s.CreateIdentity(ctx, "key-a-"+uuid.NewString(), "a")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := s.CreateIdentity(ctx, "key-b-"+uuid.NewString(), "b")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	return a.ID, b.ID
}

func TestIdentityLookups(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	created, err := s.CreateIdentity(ctx, "pk", "alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	byID, err := s.GetIdentityByID(ctx, created.ID)
	if err != nil || byID == nil || byID.Name != "alice" {
		t.Fatalf("get by id: %+v %v", byID, err)
	}
	byKey, err := s.GetIdentityByPublicKey(ctx, "pk")
	if err != nil || byKey == nil || byKey.ID != created.ID {
		t.Fatalf("get by key: %+v %v", byKey, err)
	}

	missing, err := s.GetIdentityByID(ctx, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing identity, got %+v %v", missing, err)
	}
}

func TestCreateConversationRejectsDuplicatePair(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	a, b := createPair(t, s)
	now := time.Now()

	conv, err := s.CreateConversation(ctx, a, b, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateConversation(ctx, b, a, now); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reversed pair, got %v", err)
	}

	found, err := s.FindConversationByPair(ctx, b, a)
	if err != nil || found == nil || found.ID != conv.ID {
		t.Fatalf("find by reversed pair: %+v %v", found, err)
	}

	participants, err := s.ListParticipants(ctx, conv.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(participants))
	}
}

func TestInsertMessageKeepsStrictOrder(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	a, b := createPair(t, s)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	conv, err := s.CreateConversation(ctx, a, b, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// A clock that stands still or runs backwards still yields strictly
	// increasing timestamps.
	var last time.Time
	for i, at := range []time.Time{now, now, now.Add(-time.Minute), now.Add(time.Second)} {
		msg, err := s.InsertMessage(ctx, conv.ID, a, "m", "", at)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		if i > 0 && !msg.CreatedAt.After(last) {
			t.Fatalf("message %d at %v not after %v", i, msg.CreatedAt, last)
		}
		last = msg.CreatedAt
	}

	updated, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if !updated.UpdatedAt.Equal(last) {
		t.Fatalf("expected updated_at %v, got %v", last, updated.UpdatedAt)
	}

	missing, err := s.InsertMessage(ctx, uuid.New(), a, "m", "", now)
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing conversation, got %+v %v", missing, err)
	}
}

func TestAdvanceReadCursorNeverMovesBack(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	a, b := createPair(t, s)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	conv, err := s.CreateConversation(ctx, a, b, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.InsertMessage(ctx, conv.ID, a, "hello", "", now); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if n, _ := s.CountUnread(ctx, conv.ID, b); n != 1 {
		t.Fatalf("expected 1 unread, got %d", n)
	}
	if n, _ := s.CountUnread(ctx, conv.ID, a); n != 0 {
		t.Fatalf("sender should have 0 unread, got %d", n)
	}

	later, err := s.AdvanceReadCursor(ctx, conv.ID, b, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	earlier, err := s.AdvanceReadCursor(ctx, conv.ID, b, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !earlier.LastReadAt.Equal(*later.LastReadAt) {
		t.Fatalf("cursor moved back from %v to %v", later.LastReadAt, earlier.LastReadAt)
	}
	if n, _ := s.CountUnread(ctx, conv.ID, b); n != 0 {
		t.Fatalf("expected 0 unread, got %d", n)
	}

	stranger, err := s.AdvanceReadCursor(ctx, conv.ID, uuid.New(), now)
	if err != nil || stranger != nil {
		t.Fatalf("expected nil, nil for non-participant, got %+v %v", stranger, err)
	}
}

func TestListSummariesArchiveFilter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	a, b := createPair(t, s)
	now := time.Now()

	conv, err := s.CreateConversation(ctx, a, b, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.InsertMessage(ctx, conv.ID, b, "hi", "", now); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.SetArchived(ctx, conv.ID, a, true, now); err != nil {
		t.Fatalf("archive: %v", err)
	}

	active, err := s.ListSummaries(ctx, a, false)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active summaries, got %d %v", len(active), err)
	}
	archived, err := s.ListSummaries(ctx, a, true)
	if err != nil || len(archived) != 1 {
		t.Fatalf("expected 1 archived summary, got %d %v", len(archived), err)
	}
	sum := archived[0]
	if sum.OtherID != b || sum.UnreadCount != 1 || sum.LastMessage == nil || sum.LastMessage.Content != "hi" {
		t.Fatalf("unexpected summary %+v", sum)
	}

	total, err := s.CountUnreadTotal(ctx, a)
	if err != nil || total != 0 {
		t.Fatalf("archived conversations should not count, got %d %v", total, err)
	}
	total, err = s.CountUnreadTotal(ctx, b)
	if err != nil || total != 0 {
		t.Fatalf("own messages should not count, got %d %v", total, err)
	}
}

func TestListMessagesPaging(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	a, b := createPair(t, s)
	now := time.Now()

	conv, err := s.CreateConversation(ctx, a, b, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var ids []string
	for i := 0; i < 4; i++ {
		msg, err := s.InsertMessage(ctx, conv.ID, a, "m", "", now)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	newest, err := s.ListMessages(ctx, conv.ID, 2, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(newest) != 2 || newest[0].ID != ids[2] || newest[1].ID != ids[3] {
		t.Fatalf("unexpected newest page %+v", newest)
	}

	older, err := s.ListMessages(ctx, conv.ID, 10, ids[2])
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	if len(older) != 2 || older[0].ID != ids[0] || older[1].ID != ids[1] {
		t.Fatalf("unexpected older page %+v", older)
	}
}

func TestInsertMessageStampsAfterReadCursor(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	a, b := createPair(t, s)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	conv, err := s.CreateConversation(ctx, a, b, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// b read with a clock a minute ahead of the sender's.
	p, err := s.AdvanceReadCursor(ctx, conv.ID, b, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	msg, err := s.InsertMessage(ctx, conv.ID, a, "late", "", now.Add(time.Second))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !msg.CreatedAt.After(*p.LastReadAt) {
		t.Fatalf("message at %v not after cursor %v", msg.CreatedAt, *p.LastReadAt)
	}
	if n, _ := s.CountUnread(ctx, conv.ID, b); n != 1 {
		t.Fatalf("expected 1 unread, got %d", n)
	}
}

func TestInsertMessageCorrelationID(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	a, b := createPair(t, s)
	now := time.Now()

	conv, err := s.CreateConversation(ctx, a, b, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stored, err := s.InsertMessage(ctx, conv.ID, a, "hi", "cid-1", now)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertMessage(ctx, conv.ID, a, "hi", "cid-1", now); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for reused correlation id, got %v", err)
	}
	if _, err := s.InsertMessage(ctx, conv.ID, b, "hi", "cid-1", now); err != nil {
		t.Fatalf("other sender may reuse the id: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.InsertMessage(ctx, conv.ID, a, "plain", "", now); err != nil {
			t.Fatalf("messages without correlation id never conflict: %v", err)
		}
	}

	found, err := s.GetMessageByCorrelation(ctx, conv.ID, a, "cid-1")
	if err != nil || found == nil || found.ID != stored.ID || found.CorrelationID != "cid-1" {
		t.Fatalf("lookup: %+v %v", found, err)
	}
	missing, err := s.GetMessageByCorrelation(ctx, conv.ID, a, "cid-2")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for unknown correlation id, got %+v %v", missing, err)
	}

	page, err := s.ListMessages(ctx, conv.ID, 10, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 4 || page[0].CorrelationID != "cid-1" || page[3].CorrelationID != "" {
		t.Fatalf("unexpected page %+v", page)
	}
}
