package inbox

import (
	"context"
	"sync"
	"time"
)

// MessageSender sends a message. Client implements it.
type MessageSender interface {
	SendMessage(ctx context.Context, conversationID, content, correlationID string) (*Message, error)
}

// Sender sends messages optimistically: the draft appears in the timeline
// immediately and the network call runs in the background.
type Sender struct {
	client         MessageSender
	conversationID string
	timeline       *Timeline
	timeout        time.Duration

	updates chan string
	wg      sync.WaitGroup
}

// NewSender creates a Sender for one conversation.
func NewSender(client MessageSender, conversationID string, timeline *Timeline) *Sender {
	return &Sender{
		client:         client,
		conversationID: conversationID,
		timeline:       timeline,
		timeout:        30 * time.Second,
		updates:        make(chan string, 64),
	}
}

// Updates emits a correlation id each time a send is confirmed or fails.
// Notifications are dropped if the channel is full; consumers should
// re-read the timeline rather than count updates.
func (s *Sender) Updates() <-chan string {
	return s.updates
}

// Send queues content and returns its correlation id without waiting for
// the server.
func (s *Sender) Send(ctx context.Context, content string) string {
	id := s.timeline.AddPending(content)
	s.dispatch(ctx, id, content)
	return id
}

// Resubmit retries a failed send. It reports false if correlationID is not
// a failure.
func (s *Sender) Resubmit(ctx context.Context, correlationID string) bool {
	p, ok := s.timeline.Resubmit(correlationID)
	if !ok {
		return false
	}
	s.dispatch(ctx, p.CorrelationID, p.Draft)
	return true
}

// Wait blocks until all in-flight sends have settled.
func (s *Sender) Wait() {
	s.wg.Wait()
}

func (s *Sender) dispatch(ctx context.Context, correlationID, content string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		msg, err := s.client.SendMessage(ctx, s.conversationID, content, correlationID)
		if err != nil {
			s.timeline.Fail(correlationID, err)
		} else {
			s.timeline.Confirm(correlationID, *msg)
		}

		select {
		case s.updates <- correlationID:
		default:
		}
	}()
}
