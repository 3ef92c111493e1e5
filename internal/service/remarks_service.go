package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/transport"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// RemarksCoordinator binds a staff member's next plain-text message to the oldest status change
// still waiting for remarks. Queues are kept per (chat, actor) and processed strictly FIFO.
type RemarksCoordinator struct {
	tickets   *TicketService
	routing   *RoutingEngine
	transport transport.Transport
	logger    *zap.Logger
	maxAge    time.Duration
	now       func() time.Time

	locks  *keyLock
	mu     sync.Mutex
	queues map[string][]*domain.PendingRemarks
}

// RemarksDependencies bundles collaborators for the coordinator.
type RemarksDependencies struct {
	Tickets   *TicketService
	Routing   *RoutingEngine
	Transport transport.Transport
	Logger    *zap.Logger
	MaxAge    time.Duration
	Now       func() time.Time
}

// RemarksRequest describes a staff click that needs remarks before it can be applied.
type RemarksRequest struct {
	TicketID        string
	RequestedStatus domain.TicketStatus
	PriorStatus     domain.TicketStatus
	// Source is the card that was clicked; it is refreshed once the change is applied.
	Source transport.MessageRef
}

// EnqueueResult reports where the request landed.
type EnqueueResult struct {
	Duplicate bool
	// Waiting is the number of entries ahead of this one.
	Waiting int
}

// RemarksOutcome reports what a plain-text message did.
type RemarksOutcome struct {
	// Handled is false when nothing was waiting and the text is ordinary input.
	Handled bool
	Applied bool
	Ticket  *domain.Ticket
	// Rejection holds the error that was reported to the chat, if any.
	Rejection error
}

// NewRemarksCoordinator constructs the coordinator.
func NewRemarksCoordinator(deps RemarksDependencies) *RemarksCoordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAge := deps.MaxAge
	if maxAge <= 0 {
		maxAge = 15 * time.Minute
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &RemarksCoordinator{
		tickets:   deps.Tickets,
		routing:   deps.Routing,
		transport: deps.Transport,
		logger:    logger,
		maxAge:    maxAge,
		now:       now,
		locks:     newKeyLock(),
		queues:    make(map[string][]*domain.PendingRemarks),
	}
}

// Enqueue appends a request. The head of a queue is prompted; later entries get a waiting notice.
func (c *RemarksCoordinator) Enqueue(ctx context.Context, chatID, actorID string, req RemarksRequest) (EnqueueResult, error) {
	key := remarksKey(chatID, actorID)
	unlock := c.locks.Lock(key)
	defer unlock()

	c.pruneAndPrompt(ctx, key, chatID)

	c.mu.Lock()
	for _, existing := range c.queues[key] {
		if existing.TicketID == req.TicketID && existing.RequestedStatus == req.RequestedStatus {
			c.mu.Unlock()
			_, err := c.transport.SendDirect(ctx, chatID,
				fmt.Sprintf("Already waiting for your remarks on %s.", req.TicketID))
			return EnqueueResult{Duplicate: true}, err
		}
	}
	entry := &domain.PendingRemarks{
		ID:              uuid.NewString(),
		TicketID:        req.TicketID,
		RequestedStatus: req.RequestedStatus,
		PriorStatus:     req.PriorStatus,
		IsCancellation:  req.RequestedStatus == domain.TicketStatusCancelledStaff,
		SourceChatID:    req.Source.ChatID,
		SourceMessageID: req.Source.MessageID,
		QueuedAt:        c.now(),
	}
	c.queues[key] = append(c.queues[key], entry)
	waiting := len(c.queues[key]) - 1
	c.mu.Unlock()

	if waiting == 0 {
		return EnqueueResult{}, c.prompt(ctx, key, chatID, entry)
	}
	_, err := c.transport.SendDirect(ctx, chatID,
		fmt.Sprintf("Queued %s for %s. %d waiting before it.", req.RequestedStatus.Label(), req.TicketID, waiting))
	return EnqueueResult{Waiting: waiting}, err
}

// Resolve applies text as the remarks of the oldest entry for the key.
func (c *RemarksCoordinator) Resolve(ctx context.Context, chatID, actorID, actorName, text string) RemarksOutcome {
	key := remarksKey(chatID, actorID)
	unlock := c.locks.Lock(key)
	defer unlock()

	if dropped, _ := c.pruneAndPrompt(ctx, key, chatID); dropped > 0 {
		// the text answered a prompt that has expired; the next entry was prompted instead
		if _, ok := c.head(key); ok {
			c.send(ctx, chatID, "That request expired and nothing was changed. Please answer the new prompt.")
			return RemarksOutcome{Handled: true}
		}
	}
	entry, ok := c.head(key)
	if !ok {
		return RemarksOutcome{}
	}

	result, err := c.tickets.Transition(ctx, TransitionRequest{
		TicketID:  entry.TicketID,
		NewStatus: entry.RequestedStatus,
		ActorID:   actorID,
		ActorName: actorName,
		Remarks:   text,
		Origin:    OriginStaff,
	})
	if err != nil {
		if retryable(err) {
			c.logger.Warn("remarks not applied, entry kept",
				zap.String("ticket_id", entry.TicketID), zap.Error(err))
			c.send(ctx, chatID, DescribeError(err)+" Send your remarks again, or /skip.")
			return RemarksOutcome{Handled: true, Rejection: err}
		}
		c.remove(key, entry.ID)
		c.deletePrompt(ctx, chatID, entry)
		c.send(ctx, chatID, fmt.Sprintf("%s: %s", entry.TicketID, DescribeError(err)))
		c.promptNext(ctx, key, chatID)
		return RemarksOutcome{Handled: true, Rejection: err}
	}

	c.remove(key, entry.ID)
	c.deletePrompt(ctx, chatID, entry)
	if c.routing != nil {
		c.routing.RefreshCard(ctx, result.Ticket, transport.MessageRef{ChatID: entry.SourceChatID, MessageID: entry.SourceMessageID})
	}
	c.send(ctx, chatID, fmt.Sprintf("Ticket %s is now %s.", result.Ticket.ID, result.Ticket.Status.Label()))
	c.promptNext(ctx, key, chatID)
	return RemarksOutcome{Handled: true, Applied: true, Ticket: result.Ticket}
}

// Cancel discards the oldest entry without applying it. It returns false when nothing was queued.
func (c *RemarksCoordinator) Cancel(ctx context.Context, chatID, actorID string) bool {
	key := remarksKey(chatID, actorID)
	unlock := c.locks.Lock(key)
	defer unlock()

	c.pruneAndPrompt(ctx, key, chatID)
	entry, ok := c.head(key)
	if !ok {
		return false
	}
	c.remove(key, entry.ID)
	c.deletePrompt(ctx, chatID, entry)
	c.send(ctx, chatID, fmt.Sprintf("Skipped %s. It stays %s.", entry.TicketID, entry.PriorStatus.Label()))
	c.promptNext(ctx, key, chatID)
	return true
}

// Sweep drops entries older than maxAge from every queue and removes empty queues. Nothing is
// applied; a queue whose head was dropped gets its new head prompted.
func (c *RemarksCoordinator) Sweep(ctx context.Context, maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = c.maxAge
	}
	cutoff := c.now().Add(-maxAge)

	expired := map[string][]*domain.PendingRemarks{}
	c.mu.Lock()
	for key, queue := range c.queues {
		kept := make([]*domain.PendingRemarks, 0, len(queue))
		for _, entry := range queue {
			if entry.QueuedAt.After(cutoff) {
				kept = append(kept, entry)
				continue
			}
			expired[key] = append(expired[key], entry)
		}
		if len(kept) == 0 {
			delete(c.queues, key)
			continue
		}
		c.queues[key] = kept
	}
	c.mu.Unlock()

	removed := 0
	for key, entries := range expired {
		removed += len(entries)
		chatID, _, _ := strings.Cut(key, "|")
		unlock := c.locks.Lock(key)
		for _, entry := range entries {
			c.deletePrompt(ctx, chatID, entry)
		}
		_ = c.promptNext(ctx, key, chatID)
		unlock()
	}
	return removed
}

// Pending returns a copy of the queue for a (chat, actor) pair, oldest first.
func (c *RemarksCoordinator) Pending(chatID, actorID string) []domain.PendingRemarks {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.queues[remarksKey(chatID, actorID)]
	out := make([]domain.PendingRemarks, 0, len(queue))
	for _, entry := range queue {
		out = append(out, *entry)
	}
	return out
}

// pruneAndPrompt drops expired entries of one queue. Entries are ordered by QueuedAt, so only a prefix
// can be expired.
func (c *RemarksCoordinator) pruneAndPrompt(ctx context.Context, key, chatID string) (int, error) {
	cutoff := c.now().Add(-c.maxAge)
	c.mu.Lock()
	queue := c.queues[key]
	n := 0
	for n < len(queue) && !queue[n].QueuedAt.After(cutoff) {
		n++
	}
	expired := append([]*domain.PendingRemarks(nil), queue[:n]...)
	if n == len(queue) {
		delete(c.queues, key)
	} else {
		c.queues[key] = queue[n:]
	}
	c.mu.Unlock()

	if n == 0 {
		return 0, nil
	}
	for _, entry := range expired {
		c.deletePrompt(ctx, chatID, entry)
	}
	return n, c.promptNext(ctx, key, chatID)
}

func (c *RemarksCoordinator) head(key string) (*domain.PendingRemarks, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.queues[key]
	if len(queue) == 0 {
		return nil, false
	}
	return queue[0], true
}

func (c *RemarksCoordinator) remove(key, entryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := c.queues[key]
	for i, entry := range queue {
		if entry.ID == entryID {
			queue = append(queue[:i:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(c.queues, key)
		return
	}
	c.queues[key] = queue
}

func (c *RemarksCoordinator) promptNext(ctx context.Context, key, chatID string) error {
	entry, ok := c.head(key)
	if !ok || entry.PromptMessageID != 0 {
		return nil
	}
	return c.prompt(ctx, key, chatID, entry)
}

func (c *RemarksCoordinator) prompt(ctx context.Context, key, chatID string, entry *domain.PendingRemarks) error {
	text := fmt.Sprintf("Reply with your remarks to mark %s as %s.", entry.TicketID, entry.RequestedStatus.Label())
	if entry.IsCancellation {
		text = fmt.Sprintf("Reply with the reason for cancelling %s.", entry.TicketID)
	}
	ref, err := c.transport.SendWithButtons(ctx, chatID, text,
		[][]transport.Button{{{Text: "Skip", Data: domain.RemarksSkipCallback()}}})
	if err != nil {
		c.logger.Warn("remarks prompt failed", zap.String("ticket_id", entry.TicketID), zap.Error(err))
		return err
	}
	c.mu.Lock()
	entry.PromptMessageID = ref.MessageID
	c.mu.Unlock()
	return nil
}

func (c *RemarksCoordinator) deletePrompt(ctx context.Context, chatID string, entry *domain.PendingRemarks) {
	c.mu.Lock()
	id := entry.PromptMessageID
	c.mu.Unlock()
	if id == 0 {
		return
	}
	if err := c.transport.DeleteMessage(ctx, chatID, id); err != nil {
		c.logger.Debug("remarks prompt not deleted", zap.String("ticket_id", entry.TicketID), zap.Error(err))
	}
}

func (c *RemarksCoordinator) send(ctx context.Context, chatID, text string) {
	if _, err := c.transport.SendDirect(ctx, chatID, text); err != nil {
		c.logger.Warn("remarks notice failed", zap.String("chat_id", chatID), zap.Error(err))
	}
}

// retryable reports whether a failed transition should keep its entry queued.
func retryable(err error) bool {
	return errorutil.HasCode(err, errorutil.CodeInternal) || errorutil.HasCode(err, errorutil.CodeConflict)
}

func remarksKey(chatID, actorID string) string {
	return chatID + "|" + actorID
}
