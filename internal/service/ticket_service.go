package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/repository"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// TransitionOrigin tells who is asking for a status change.
type TransitionOrigin string

const (
	OriginStaff   TransitionOrigin = "staff"
	OriginCreator TransitionOrigin = "creator"
	OriginSystem  TransitionOrigin = "system"
)

// maxIDAttempts bounds retries when a concurrent writer took the next daily sequence number.
const maxIDAttempts = 5

// TicketService owns every write to ticket status.
type TicketService struct {
	store      repository.TicketStore
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	location   *time.Location
	now        func() time.Time

	locks    *keyLock
	createMu sync.Mutex
}

// TicketDependencies bundles collaborators for ticket service.
type TicketDependencies struct {
	Store      repository.TicketStore
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	// Location decides calendar-day boundaries for ticket IDs. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	CreatorID     string
	CreatorName   string
	Branch        string
	Department    string
	Category      string
	Urgency       string
	Description   string
	ContactPerson string
}

// TransitionRequest asks for one status change.
type TransitionRequest struct {
	TicketID  string
	NewStatus domain.TicketStatus
	ActorID   string
	ActorName string
	Remarks   string
	Origin    TransitionOrigin
}

// TransitionResult reports the outcome of a transition. Changed is false for a no-op.
type TransitionResult struct {
	Ticket    *domain.Ticket
	OldStatus domain.TicketStatus
	Changed   bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		metrics:    deps.Metrics,
		location:   loc,
		now:        now,
		locks:      newKeyLock(),
	}
}

// CreateTicket persists a new pending ticket together with its creation history entry.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	input.CreatorID = strings.TrimSpace(input.CreatorID)
	input.Branch = strings.TrimSpace(input.Branch)
	input.Description = strings.TrimSpace(input.Description)
	if input.CreatorID == "" {
		return nil, errorutil.NewValidationError("creator is required", nil)
	}
	if input.Branch == "" {
		return nil, errorutil.NewValidationError("branch is required", nil)
	}
	if input.Description == "" {
		return nil, errorutil.NewValidationError("description is required", nil)
	}

	ticket, err := s.insertTicket(ctx, input)
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("creator_id", ticket.CreatorID),
		zap.String("branch", ticket.Branch))
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Ticket:   ticket.Clone(),
		Actor:    events.Actor{ID: ticket.CreatorID, Name: ticket.CreatorName},
		Payload: events.TicketCreatedPayload{
			Branch:     ticket.Branch,
			Department: ticket.Department,
			Urgency:    ticket.Urgency,
		},
	})
	return ticket, nil
}

func (s *TicketService) insertTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	now := s.now()
	local := now.In(s.location)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	count, err := s.store.CountCreatedBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		ticket := &domain.Ticket{
			ID:            FormatTicketID(local, count+1+attempt),
			CreatorID:     input.CreatorID,
			CreatorName:   strings.TrimSpace(input.CreatorName),
			Branch:        input.Branch,
			Department:    strings.TrimSpace(input.Department),
			Category:      strings.TrimSpace(input.Category),
			Urgency:       strings.TrimSpace(input.Urgency),
			Description:   input.Description,
			ContactPerson: strings.TrimSpace(input.ContactPerson),
			Status:        domain.TicketStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		initial := &domain.StatusHistoryEntry{
			ID:        uuid.NewString(),
			TicketID:  ticket.ID,
			ToStatus:  domain.TicketStatusPending,
			ActorID:   ticket.CreatorID,
			ActorName: ticket.CreatorName,
			At:        now,
		}
		err := s.store.CreateTicket(ctx, ticket, initial)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, repository.ErrDuplicateTicket) {
			return nil, errorutil.NewInternalError(err)
		}
	}
	return nil, errorutil.NewConflict("could not allocate a ticket id, try again", nil)
}

// FormatTicketID renders ISSUE-YYYYMMDD-NNNN for the given local day and sequence.
func FormatTicketID(day time.Time, seq int) string {
	return fmt.Sprintf("ISSUE-%s-%04d", day.Format("20060102"), seq)
}

// Transition validates and applies one status change. Events are published after the per-ticket
// lock is released.
func (s *TicketService) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	result, err := s.applyTransition(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.Changed {
		return result, nil
	}

	actor := events.Actor{ID: req.ActorID, Name: req.ActorName}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: result.Ticket.ID,
		Ticket:   result.Ticket.Clone(),
		Actor:    actor,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: result.OldStatus,
			NewStatus: result.Ticket.Status,
			Remarks:   strings.TrimSpace(req.Remarks),
		},
	})
	if result.Ticket.Status.IsResolved() {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventConfirmationRequested,
			TicketID: result.Ticket.ID,
			Ticket:   result.Ticket.Clone(),
			Actor:    actor,
			Payload:  events.ConfirmationRequestedPayload{Status: result.Ticket.Status},
		})
	}
	return result, nil
}

func (s *TicketService) applyTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	unlock := s.locks.Lock(req.TicketID)
	defer unlock()

	ticket, err := s.loadTicket(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	noop, err := s.check(ticket, req)
	if err != nil {
		return nil, err
	}
	if noop {
		return &TransitionResult{Ticket: ticket, OldStatus: ticket.Status}, nil
	}

	remarks := strings.TrimSpace(req.Remarks)
	if req.NewStatus.RequiresRemarks() && req.Origin != OriginSystem && remarks == "" {
		return nil, errorutil.NewValidationError("remarks are required for this status",
			map[string]any{"ticket_id": ticket.ID, "status": string(req.NewStatus)})
	}

	now := s.now()
	old := ticket.Status
	updated := ticket.Clone()
	updated.Status = req.NewStatus
	updated.UpdatedAt = now
	if req.NewStatus.IsResolved() {
		updated.ResolvedAt = &now
	}
	if req.Origin == OriginStaff && old == domain.TicketStatusPending && updated.AssignedTo == nil {
		actorID, actorName := req.ActorID, req.ActorName
		updated.AssignedTo = &actorID
		updated.AssignedToName = &actorName
	}
	var remarksPtr *string
	if remarks != "" {
		remarksPtr = &remarks
		updated.Remarks = &remarks
	}
	entry := &domain.StatusHistoryEntry{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		FromStatus: &old,
		ToStatus:   req.NewStatus,
		ActorID:    req.ActorID,
		ActorName:  req.ActorName,
		Remarks:    remarksPtr,
		At:         now,
	}

	if err := s.store.UpdateTicketStatus(ctx, updated, old, entry); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleTicket):
			return nil, errorutil.NewConflict("ticket changed while it was being updated, try again",
				map[string]any{"ticket_id": ticket.ID})
		case errors.Is(err, repository.ErrTicketNotFound):
			return nil, errorutil.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
		}
		s.logger.Error("ticket status update failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return nil, errorutil.NewInternalError(err)
	}

	s.metrics.RecordTransition(string(old), string(req.NewStatus))
	s.logger.Info("ticket status changed",
		zap.String("ticket_id", ticket.ID),
		zap.String("from", string(old)),
		zap.String("to", string(req.NewStatus)),
		zap.String("actor_id", req.ActorID),
		zap.String("origin", string(req.Origin)))
	return &TransitionResult{Ticket: updated, OldStatus: old, Changed: true}, nil
}

// Precheck runs the read-only validation of Transition without the remarks rule. The returned
// ticket lets callers detect a no-op request.
func (s *TicketService) Precheck(ctx context.Context, req TransitionRequest) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, req.TicketID)
	if err != nil {
		return nil, err
	}
	if _, err := s.check(ticket, req); err != nil {
		return nil, err
	}
	return ticket, nil
}

// check applies terminal, permission, ownership and edge rules in that order. A request for the
// current status is reported as a no-op before the edge rule runs.
func (s *TicketService) check(ticket *domain.Ticket, req TransitionRequest) (bool, error) {
	if ticket.Status.IsTerminal() {
		return false, errorutil.NewAlreadyTerminal(ticket.ID, string(ticket.Status))
	}
	if _, ok := domain.ParseStatus(string(req.NewStatus)); !ok {
		return false, errorutil.NewValidationError("unknown status", map[string]any{"status": string(req.NewStatus)})
	}
	if !originAllows(req.Origin, req.NewStatus) {
		return false, errorutil.NewForbidden(fmt.Sprintf("%s cannot set status %s", originName(req.Origin), req.NewStatus))
	}
	switch req.Origin {
	case OriginCreator:
		if req.ActorID != ticket.CreatorID {
			return false, errorutil.NewNotTicketOwner(ticket.ID)
		}
	case OriginStaff:
		if ticket.AssignedTo != nil && *ticket.AssignedTo != req.ActorID {
			return false, errorutil.NewOwnershipConflict(ticket.ID, *ticket.AssignedTo, ticket.OwnerName())
		}
	}
	if req.NewStatus == ticket.Status {
		return true, nil
	}
	if !isValidTransition(ticket.Status, req.NewStatus) {
		return false, errorutil.NewValidationError(
			fmt.Sprintf("cannot move ticket from %s to %s", ticket.Status.Label(), req.NewStatus.Label()),
			map[string]any{"ticket_id": ticket.ID, "from": string(ticket.Status), "to": string(req.NewStatus)})
	}
	if req.NewStatus == domain.TicketStatusInProcess {
		reopen := ticket.Status.IsResolved()
		if req.Origin == OriginCreator && !reopen {
			return false, errorutil.NewValidationError("only resolved tickets can be reopened",
				map[string]any{"ticket_id": ticket.ID})
		}
		if req.Origin == OriginStaff && reopen {
			return false, errorutil.NewValidationError("only the ticket creator can reopen a resolved ticket",
				map[string]any{"ticket_id": ticket.ID})
		}
	}
	return false, nil
}

// GetTicket loads a ticket by ID.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.loadTicket(ctx, id)
}

// History returns the status history of a ticket in commit order.
func (s *TicketService) History(ctx context.Context, id string) ([]domain.StatusHistoryEntry, error) {
	if _, err := s.loadTicket(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return entries, nil
}

// ListCreatorTickets returns the most recent tickets opened by a user.
func (s *TicketService) ListCreatorTickets(ctx context.Context, creatorID string, limit int) ([]domain.Ticket, error) {
	tickets, err := s.store.QueryTickets(ctx, repository.TicketFilter{CreatorID: &creatorID, Limit: limit})
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return tickets, nil
}

// SearchTickets returns tickets matching filter, newest first.
func (s *TicketService) SearchTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	for _, status := range filter.Statuses {
		if _, ok := domain.ParseStatus(string(status)); !ok {
			return nil, errorutil.NewValidationError("unknown status", map[string]any{"status": string(status)})
		}
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 100
	}
	tickets, err := s.store.QueryTickets(ctx, filter)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return tickets, nil
}

// ListAwaitingConfirmation returns resolved tickets untouched for at least olderThan.
func (s *TicketService) ListAwaitingConfirmation(ctx context.Context, olderThan time.Duration) ([]domain.Ticket, error) {
	cutoff := s.now().Add(-olderThan)
	tickets, err := s.store.QueryTickets(ctx, repository.TicketFilter{
		Statuses:      []domain.TicketStatus{domain.TicketStatusResolved, domain.TicketStatusResolvedWithIssues},
		UpdatedBefore: &cutoff,
	})
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return tickets, nil
}

func (s *TicketService) loadTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, errorutil.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		return nil, errorutil.NewInternalError(err)
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusPending: {
		domain.TicketStatusInProcess, domain.TicketStatusResolved, domain.TicketStatusResolvedWithIssues,
		domain.TicketStatusCancelledStaff, domain.TicketStatusCancelledUser,
	},
	domain.TicketStatusInProcess: {
		domain.TicketStatusResolved, domain.TicketStatusResolvedWithIssues,
		domain.TicketStatusCancelledStaff, domain.TicketStatusCancelledUser,
	},
	domain.TicketStatusResolved: {
		domain.TicketStatusConfirmed, domain.TicketStatusInProcess,
		domain.TicketStatusCancelledStaff, domain.TicketStatusCancelledUser,
	},
	domain.TicketStatusResolvedWithIssues: {
		domain.TicketStatusConfirmed, domain.TicketStatusInProcess,
		domain.TicketStatusCancelledStaff, domain.TicketStatusCancelledUser,
	},
	domain.TicketStatusConfirmed:      {},
	domain.TicketStatusCancelledStaff: {},
	domain.TicketStatusCancelledUser:  {},
	domain.TicketStatusClosed:         {},
}

var originTargets = map[TransitionOrigin][]domain.TicketStatus{
	OriginStaff: {
		domain.TicketStatusInProcess, domain.TicketStatusResolved,
		domain.TicketStatusResolvedWithIssues, domain.TicketStatusCancelledStaff,
	},
	OriginCreator: {
		domain.TicketStatusConfirmed, domain.TicketStatusCancelledUser, domain.TicketStatusInProcess,
	},
	OriginSystem: {domain.TicketStatusConfirmed},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func originAllows(origin TransitionOrigin, target domain.TicketStatus) bool {
	for _, candidate := range originTargets[origin] {
		if candidate == target {
			return true
		}
	}
	return false
}

// NextStaffStatuses lists the statuses staff may move the ticket to from its current status.
func NextStaffStatuses(current domain.TicketStatus) []domain.TicketStatus {
	var out []domain.TicketStatus
	for _, next := range allowedTransitions[current] {
		if originAllows(OriginStaff, next) && !(next == domain.TicketStatusInProcess && current.IsResolved()) {
			out = append(out, next)
		}
	}
	return out
}

func originName(origin TransitionOrigin) string {
	switch origin {
	case OriginStaff:
		return "staff"
	case OriginCreator:
		return "the ticket creator"
	case OriginSystem:
		return "the system"
	}
	return "unknown actor"
}
