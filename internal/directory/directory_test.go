package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/inbox/internal/models"
)

type fakeIdentities struct {
	byID  map[uuid.UUID]*models.Identity
	err   error
	calls int
}

func (f *fakeIdentities) GetIdentityByID(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byID[id], nil
}

type fakeCache struct {
	names map[uuid.UUID]string
}

func (c *fakeCache) GetDisplayName(_ context.Context, id uuid.UUID) (string, bool, error) {
	name, ok := c.names[id]
	return name, ok, nil
}

func (c *fakeCache) SetDisplayName(_ context.Context, id uuid.UUID, name string) error {
	c.names[id] = name
	return nil
}

func TestDisplayNameCachesLookups(t *testing.T) {
	id := uuid.New()
	identities := &fakeIdentities{byID: map[uuid.UUID]*models.Identity{id: {ID: id, Name: "alice"}}}
	cache := &fakeCache{names: map[uuid.UUID]string{}}
	d := New(identities, cache, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if got := d.DisplayName(context.Background(), id); got != "alice" {
			t.Fatalf("expected alice, got %q", got)
		}
	}
	if identities.calls != 1 {
		t.Fatalf("expected 1 store lookup, got %d", identities.calls)
	}
}

func TestDisplayNameDegradesToPlaceholder(t *testing.T) {
	missing := uuid.New()
	d := New(&fakeIdentities{byID: map[uuid.UUID]*models.Identity{}}, nil, zerolog.Nop())
	if got := d.DisplayName(context.Background(), missing); got != models.UnknownSender {
		t.Fatalf("expected placeholder for missing identity, got %q", got)
	}

	failing := New(&fakeIdentities{err: errors.New("db down")}, nil, zerolog.Nop())
	if got := failing.DisplayName(context.Background(), missing); got != models.UnknownSender {
		t.Fatalf("expected placeholder on error, got %q", got)
	}
}

func TestDisplayNameFallsBackToShortID(t *testing.T) {
	id := uuid.New()
	d := New(&fakeIdentities{byID: map[uuid.UUID]*models.Identity{id: {ID: id}}}, nil, zerolog.Nop())
	if got := d.DisplayName(context.Background(), id); got != id.String()[:8] {
		t.Fatalf("expected short id, got %q", got)
	}
}

func TestDisplayNamesLooksUpEachIDOnce(t *testing.T) {
	alice, bob, gone := uuid.New(), uuid.New(), uuid.New()
	identities := &fakeIdentities{byID: map[uuid.UUID]*models.Identity{
		alice: {ID: alice, Name: "alice"},
		bob:   {ID: bob, Name: "bob"},
	}}
	d := New(identities, nil, zerolog.Nop())

	names := d.DisplayNames(context.Background(), alice, bob, alice, gone, bob, alice)
	if len(names) != 3 || names[alice] != "alice" || names[bob] != "bob" || names[gone] != models.UnknownSender {
		t.Fatalf("unexpected names %v", names)
	}
	if identities.calls != 3 {
		t.Fatalf("expected 3 store lookups, got %d", identities.calls)
	}
}
