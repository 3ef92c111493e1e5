package transport

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sequencer hands updates to a handler one sender at a time. Updates of the same sender are
// processed in arrival order; different senders run concurrently. A sender's worker exits once
// its mailbox is empty.
type Sequencer struct {
	handler InboundHandler
	logger  *zap.Logger

	mu        sync.Mutex
	mailboxes map[string][]Update
	wg        sync.WaitGroup
}

// NewSequencer constructs a sequencer around handler.
func NewSequencer(handler InboundHandler, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{handler: handler, logger: logger, mailboxes: make(map[string][]Update)}
}

// OrderingKey is the sender an update is serialized under.
func OrderingKey(u Update) string {
	if u.SenderID != "" {
		return u.SenderID
	}
	return "chat:" + u.ChatID
}

// Dispatch queues u behind earlier updates of the same sender. It never blocks on the handler.
func (s *Sequencer) Dispatch(ctx context.Context, u Update) {
	key := OrderingKey(u)

	s.mu.Lock()
	mailbox, running := s.mailboxes[key]
	s.mailboxes[key] = append(mailbox, u)
	if running {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.drain(ctx, key)
}

// Wait blocks until every dispatched update has been handled.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

func (s *Sequencer) drain(ctx context.Context, key string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		mailbox := s.mailboxes[key]
		if len(mailbox) == 0 {
			delete(s.mailboxes, key)
			s.mu.Unlock()
			return
		}
		next := mailbox[0]
		s.mailboxes[key] = mailbox[1:]
		s.mu.Unlock()

		if err := s.handler(ctx, next); err != nil {
			s.logger.Error("inbound handler error",
				zap.Int("update_id", next.ID),
				zap.String("chat_id", next.ChatID),
				zap.String("sender_id", next.SenderID),
				zap.Error(err))
		}
	}
}
