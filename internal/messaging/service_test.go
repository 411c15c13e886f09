package messaging

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inbox/internal/directory"
	"github.com/eldtechnologies/inbox/internal/events"
	"github.com/eldtechnologies/inbox/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	svc   *Service
	ds    *store.SQLiteStore
	pub   *recordingPublisher
	clock *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ds, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "inbox.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(ds.Close)

	pub := &recordingPublisher{}
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(ds, directory.New(ds, nil, zerolog.Nop()), pub, zerolog.Nop(), 0)
	svc.now = clock.Now

	return &fixture{svc: svc, ds: ds, pub: pub, clock: clock}
}

func (f *fixture) register(t *testing.T, name string) uuid.UUID {
	t.Helper()
	identity, err := f.ds.CreateIdentity(context.Background(), "pk-"+name+"-"+uuid.NewString(), name)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return identity.ID
}

func (f *fixture) send(t *testing.T, convID, sender uuid.UUID, content string) {
	t.Helper()
	if _, err := f.svc.Send(context.Background(), convID, sender, content, ""); err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
}

func (f *fixture) unread(t *testing.T, convID, self uuid.UUID) int {
	t.Helper()
	n, err := f.svc.UnreadCount(context.Background(), convID, self)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	return n
}

func TestResolveSelfIsInvalid(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	_, err := f.svc.Resolve(context.Background(), alice, alice)
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestResolveUnknownIdentity(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	_, err := f.svc.Resolve(context.Background(), alice, uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveIsSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	first, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := f.svc.Resolve(ctx, bob, alice)
	if err != nil {
		t.Fatalf("resolve reverse: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same conversation, got %s and %s", first.ID, second.ID)
	}
}

func TestResolveConcurrentFirstContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	const n = 16
	ids := make([]uuid.UUID, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			self, other := alice, bob
			if i%2 == 1 {
				self, other = bob, alice
			}
			conv, err := f.svc.Resolve(ctx, self, other)
			errs[i] = err
			if conv != nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("resolve %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("resolve %d returned %s, expected %s", i, ids[i], ids[0])
		}
	}

	participants, err := f.ds.ListParticipants(ctx, ids[0])
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(participants))
	}
	if participants[0].IdentityID == participants[1].IdentityID {
		t.Fatal("participants must be distinct identities")
	}
}

func TestConversationBetweenTwoIdentities(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Alice opens the conversation and says hello.
	f.clock.Advance(time.Second)
	f.send(t, conv.ID, alice, "  hello bob  ")

	if n := f.unread(t, conv.ID, alice); n != 0 {
		t.Errorf("sender should have 0 unread, got %d", n)
	}
	if n := f.unread(t, conv.ID, bob); n != 1 {
		t.Errorf("recipient should have 1 unread, got %d", n)
	}

	list, err := f.svc.List(ctx, bob, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(list))
	}
	sum := list[0]
	if sum.ConversationID != conv.ID || sum.OtherID != alice || sum.OtherName != "alice" {
		t.Errorf("unexpected summary: %+v", sum)
	}
	if sum.UnreadCount != 1 {
		t.Errorf("expected unread 1 in summary, got %d", sum.UnreadCount)
	}
	if sum.LastMessage == nil || sum.LastMessage.Content != "hello bob" {
		t.Fatalf("expected trimmed last message, got %+v", sum.LastMessage)
	}
	if sum.LastMessage.SenderName != "alice" {
		t.Errorf("expected sender name alice, got %q", sum.LastMessage.SenderName)
	}

	// Bob reads and replies.
	f.clock.Advance(time.Second)
	if _, err := f.svc.MarkRead(ctx, conv.ID, bob); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n := f.unread(t, conv.ID, bob); n != 0 {
		t.Errorf("expected 0 unread after read, got %d", n)
	}
	f.clock.Advance(time.Second)
	f.send(t, conv.ID, bob, "hi alice")

	if n := f.unread(t, conv.ID, alice); n != 1 {
		t.Errorf("expected alice to have 1 unread, got %d", n)
	}

	for _, reader := range []uuid.UUID{alice, bob} {
		page, err := f.svc.Messages(ctx, conv.ID, reader, Page{})
		if err != nil {
			t.Fatalf("messages: %v", err)
		}
		if len(page.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(page.Messages))
		}
		if page.Messages[0].Content != "hello bob" || page.Messages[1].Content != "hi alice" {
			t.Errorf("unexpected order: %q, %q", page.Messages[0].Content, page.Messages[1].Content)
		}
		if page.Messages[0].SenderName != "alice" || page.Messages[1].SenderName != "bob" {
			t.Errorf("unexpected sender names: %q, %q", page.Messages[0].SenderName, page.Messages[1].SenderName)
		}
		if page.HasMore {
			t.Error("expected has_more false")
		}
	}
}

func TestStrangerSeesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	mallory := f.register(t, "mallory")

	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	f.send(t, conv.ID, alice, "private")

	list, err := f.svc.List(ctx, mallory, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
	total, err := f.svc.TotalUnread(ctx, mallory)
	if err != nil {
		t.Fatalf("total unread: %v", err)
	}
	if total != 0 {
		t.Errorf("expected 0 unread, got %d", total)
	}

	if _, err := f.svc.Messages(ctx, conv.ID, mallory, Page{}); !errors.Is(err, ErrForbidden) {
		t.Errorf("messages: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Send(ctx, conv.ID, mallory, "let me in", ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("send: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.MarkRead(ctx, conv.ID, mallory); !errors.Is(err, ErrForbidden) {
		t.Errorf("mark read: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.UnreadCount(ctx, conv.ID, mallory); !errors.Is(err, ErrForbidden) {
		t.Errorf("unread: expected ErrForbidden, got %v", err)
	}
	if _, err := f.svc.Archive(ctx, conv.ID, mallory); !errors.Is(err, ErrNotFound) {
		t.Errorf("archive: expected ErrNotFound, got %v", err)
	}
}

func TestUnknownConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	missing := uuid.New()

	if _, err := f.svc.Send(ctx, missing, alice, "hello", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("send: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Messages(ctx, missing, alice, Page{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("messages: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.MarkRead(ctx, missing, alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("mark read: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Unarchive(ctx, missing, alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("unarchive: expected ErrNotFound, got %v", err)
	}
}

func TestSendValidatesContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	f.svc.maxLength = 5

	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{"empty", "", "", true},
		{"whitespace only", " \n\t ", "", true},
		{"invalid utf8", "hi\xff", "", true},
		{"too long", "abcdef", "", true},
		{"at limit in runes", "héllo", "héllo", false},
		{"trimmed to limit", "  abcde  ", "abcde", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := f.svc.Send(ctx, conv.ID, alice, tt.content, "")
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Content != tt.want {
				t.Errorf("expected content %q, got %q", tt.want, msg.Content)
			}
		})
	}
}

func TestUnreadIsMonotonicAndMarkReadIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	prev := 0
	for i := 0; i < 4; i++ {
		f.send(t, conv.ID, alice, "ping")
		n := f.unread(t, conv.ID, bob)
		if n < prev {
			t.Fatalf("unread decreased from %d to %d without a read", prev, n)
		}
		prev = n
	}
	if prev != 4 {
		t.Fatalf("expected 4 unread, got %d", prev)
	}

	first, err := f.svc.MarkRead(ctx, conv.ID, bob)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	second, err := f.svc.MarkRead(ctx, conv.ID, bob)
	if err != nil {
		t.Fatalf("mark read again: %v", err)
	}
	if second.LastReadAt.Before(*first.LastReadAt) {
		t.Fatalf("cursor moved backwards: %v -> %v", first.LastReadAt, second.LastReadAt)
	}
	if n := f.unread(t, conv.ID, bob); n != 0 {
		t.Fatalf("expected 0 unread, got %d", n)
	}

	// A message sent after the read is unread even though the clock has not moved.
	f.send(t, conv.ID, alice, "one more")
	if n := f.unread(t, conv.ID, bob); n != 1 {
		t.Fatalf("expected 1 unread, got %d", n)
	}
}

func TestMarkReadCoversMessagesAheadOfClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	f.send(t, conv.ID, alice, "from the future")
	f.clock.Advance(-time.Hour)

	p, err := f.svc.MarkRead(ctx, conv.ID, bob)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if p.LastReadAt == nil {
		t.Fatal("expected cursor to be set")
	}
	if n := f.unread(t, conv.ID, bob); n != 0 {
		t.Fatalf("expected 0 unread, got %d", n)
	}
}

func TestMessageAfterReadIsUnreadDespiteClockSkew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Bob is served by an instance whose clock runs two seconds ahead.
	ahead := &testClock{t: f.clock.Now().Add(2 * time.Second)}
	reader := NewService(f.ds, directory.New(f.ds, nil, zerolog.Nop()), &recordingPublisher{}, zerolog.Nop(), 0)
	reader.now = ahead.Now

	p, err := reader.MarkRead(ctx, conv.ID, bob)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}

	f.clock.Advance(time.Second)
	msg, err := f.svc.Send(ctx, conv.ID, alice, "sent after the read", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !msg.CreatedAt.After(*p.LastReadAt) {
		t.Fatalf("message at %v not after cursor %v", msg.CreatedAt, *p.LastReadAt)
	}
	if n := f.unread(t, conv.ID, bob); n != 1 {
		t.Fatalf("expected 1 unread, got %d", n)
	}
	total, err := f.svc.TotalUnread(ctx, bob)
	if err != nil || total != 1 {
		t.Fatalf("expected total unread 1, got %d %v", total, err)
	}
}

func TestSendWithCorrelationIDIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	first, err := f.svc.Send(ctx, conv.ID, alice, "hello", "01HZX")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	f.clock.Advance(time.Minute)
	again, err := f.svc.Send(ctx, conv.ID, alice, "hello", "01HZX")
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if again.ID != first.ID || !again.CreatedAt.Equal(first.CreatedAt) || again.CorrelationID != "01HZX" {
		t.Fatalf("resend returned %+v, want %+v", again, first)
	}
	if again.SenderName != "alice" {
		t.Fatalf("expected sender name on resend, got %q", again.SenderName)
	}

	// Correlation ids are scoped to their sender.
	if _, err := f.svc.Send(ctx, conv.ID, bob, "hi", "01HZX"); err != nil {
		t.Fatalf("send from bob: %v", err)
	}

	page, err := f.svc.Messages(ctx, conv.ID, bob, Page{})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page.Messages))
	}
	if page.Messages[0].ID != first.ID || page.Messages[0].CorrelationID != "01HZX" {
		t.Fatalf("unexpected first message %+v", page.Messages[0])
	}
	if n := f.unread(t, conv.ID, bob); n != 1 {
		t.Fatalf("expected 1 unread for bob, got %d", n)
	}

	got := f.pub.types()
	if len(got) != 2 {
		t.Fatalf("expected one event per stored message, got %v", got)
	}

	long := make([]byte, MaxCorrelationIDLength+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := f.svc.Send(ctx, conv.ID, alice, "hello", string(long)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for long correlation id, got %v", err)
	}
}

func TestConcurrentResendsStoreOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	const n = 8
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := f.svc.Send(ctx, conv.ID, alice, "once", "same-send")
			if err != nil {
				t.Errorf("send: %v", err)
				return
			}
			ids[i] = msg.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("sends returned different messages: %v", ids)
		}
	}
	page, err := f.svc.Messages(ctx, conv.ID, alice, Page{})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(page.Messages))
	}
}

func TestConcurrentSendsStayOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := alice
			if i%2 == 1 {
				sender = bob
			}
			if _, err := f.svc.Send(ctx, conv.ID, sender, "msg", ""); err != nil {
				t.Errorf("send: %v", err)
			}
		}(i)
	}
	wg.Wait()

	page, err := f.svc.Messages(ctx, conv.ID, alice, Page{Limit: MaxPageSize})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(page.Messages) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(page.Messages))
	}
	for i := 1; i < len(page.Messages); i++ {
		if !page.Messages[i].CreatedAt.After(page.Messages[i-1].CreatedAt) {
			t.Fatalf("messages %d and %d not strictly ordered", i-1, i)
		}
	}
}

func TestArchiveIsPerParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	f.send(t, conv.ID, bob, "are you there?")

	first, err := f.svc.Archive(ctx, conv.ID, alice)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	f.clock.Advance(time.Minute)
	again, err := f.svc.Archive(ctx, conv.ID, alice)
	if err != nil {
		t.Fatalf("archive again: %v", err)
	}
	if !again.ArchivedAt.Equal(*first.ArchivedAt) {
		t.Errorf("archiving twice changed archived_at: %v -> %v", first.ArchivedAt, again.ArchivedAt)
	}

	active, err := f.svc.List(ctx, alice, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected archived conversation hidden from alice, got %d", len(active))
	}
	archived, err := f.svc.List(ctx, alice, true)
	if err != nil {
		t.Fatalf("list archived: %v", err)
	}
	if len(archived) != 1 || archived[0].ArchivedAt == nil {
		t.Errorf("expected one archived conversation, got %+v", archived)
	}
	total, err := f.svc.TotalUnread(ctx, alice)
	if err != nil {
		t.Fatalf("total unread: %v", err)
	}
	if total != 0 {
		t.Errorf("archived conversations should not count toward total unread, got %d", total)
	}

	bobs, err := f.svc.List(ctx, bob, false)
	if err != nil {
		t.Fatalf("list bob: %v", err)
	}
	if len(bobs) != 1 {
		t.Errorf("archive must not affect bob, got %d conversations", len(bobs))
	}

	// Re-contact clears the archive for the caller.
	if _, err := f.svc.Resolve(ctx, alice, bob); err != nil {
		t.Fatalf("re-resolve: %v", err)
	}
	active, err = f.svc.List(ctx, alice, false)
	if err != nil {
		t.Fatalf("list after re-contact: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected conversation back in alice's list, got %d", len(active))
	}
	if active[0].UnreadCount != 1 {
		t.Errorf("expected unread 1 to survive archive, got %d", active[0].UnreadCount)
	}

	if _, err := f.svc.Archive(ctx, conv.ID, bob); err != nil {
		t.Fatalf("archive bob: %v", err)
	}
	p, err := f.svc.Unarchive(ctx, conv.ID, bob)
	if err != nil {
		t.Fatalf("unarchive: %v", err)
	}
	if p.Archived() {
		t.Error("expected unarchived participant")
	}
}

func TestListOrderedByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	carol := f.register(t, "carol")

	withBob, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve bob: %v", err)
	}
	f.clock.Advance(time.Second)
	withCarol, err := f.svc.Resolve(ctx, alice, carol)
	if err != nil {
		t.Fatalf("resolve carol: %v", err)
	}

	list, err := f.svc.List(ctx, alice, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ConversationID != withCarol.ID {
		t.Fatalf("expected newest conversation first, got %+v", list)
	}
	if list[0].LastMessage != nil {
		t.Error("expected no last message for empty conversation")
	}

	f.clock.Advance(time.Second)
	f.send(t, withBob.ID, bob, "bump")

	list, err = f.svc.List(ctx, alice, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list[0].ConversationID != withBob.ID {
		t.Fatalf("expected conversation with latest message first, got %s", list[0].ConversationID)
	}
}

func TestMessagesPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for _, content := range []string{"1", "2", "3", "4", "5"} {
		f.send(t, conv.ID, alice, content)
	}

	page, err := f.svc.Messages(ctx, conv.ID, bob, Page{Limit: 2})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if !page.HasMore || len(page.Messages) != 2 || page.Messages[0].Content != "4" || page.Messages[1].Content != "5" {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, err = f.svc.Messages(ctx, conv.ID, bob, Page{Limit: 2, Before: page.Messages[0].ID})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if !page.HasMore || page.Messages[0].Content != "2" || page.Messages[1].Content != "3" {
		t.Fatalf("unexpected second page: %+v", page)
	}

	page, err = f.svc.Messages(ctx, conv.ID, bob, Page{Limit: 2, Before: page.Messages[0].ID})
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if page.HasMore || len(page.Messages) != 1 || page.Messages[0].Content != "1" {
		t.Fatalf("unexpected last page: %+v", page)
	}
}

func TestEventsPublishedBestEffort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	conv, err := f.svc.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	f.send(t, conv.ID, alice, "hello")
	if _, err := f.svc.MarkRead(ctx, conv.ID, bob); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	got := f.pub.types()
	want := []string{events.TypeMessageCreated, events.TypeConversationRead}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected events %v, got %v", want, got)
	}

	f.pub.err = errors.New("broker down")
	if _, err := f.svc.Send(ctx, conv.ID, alice, "still delivered", ""); err != nil {
		t.Fatalf("send must not fail when publishing fails: %v", err)
	}
}
