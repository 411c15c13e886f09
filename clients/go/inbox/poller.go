package inbox

import (
	"context"
	"time"
)

// MessageLister fetches a page of messages. Client implements it.
type MessageLister interface {
	ListMessages(ctx context.Context, conversationID string, limit int, before string) (*MessagePage, error)
}

// Poller refreshes a timeline from the server on an interval. It may run
// alongside a Sender on the same timeline.
type Poller struct {
	client         MessageLister
	conversationID string
	timeline       *Timeline
	interval       time.Duration
	limit          int

	// OnError is called with refresh failures. Polling continues.
	OnError func(error)
}

// NewPoller creates a Poller that fetches the newest page every interval.
func NewPoller(client MessageLister, conversationID string, timeline *Timeline, interval time.Duration) *Poller {
	return &Poller{
		client:         client,
		conversationID: conversationID,
		timeline:       timeline,
		interval:       interval,
		limit:          50,
	}
}

// Refresh fetches the newest page once and merges it.
func (p *Poller) Refresh(ctx context.Context) error {
	page, err := p.client.ListMessages(ctx, p.conversationID, p.limit, "")
	if err != nil {
		return err
	}
	p.timeline.Merge(page.Messages)
	return nil
}

// LoadOlder fetches the page before the oldest known message. It reports
// whether even older messages remain.
func (p *Poller) LoadOlder(ctx context.Context) (bool, error) {
	before := p.timeline.Oldest()
	if before == "" {
		return false, p.Refresh(ctx)
	}
	page, err := p.client.ListMessages(ctx, p.conversationID, p.limit, before)
	if err != nil {
		return false, err
	}
	p.timeline.Merge(page.Messages)
	return page.HasMore, nil
}

// Run refreshes immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil && p.OnError != nil {
			p.OnError(err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
