package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// TicketListQuery captures query filters for the ticket search endpoint.
type TicketListQuery struct {
	Statuses    []domain.TicketStatus
	Branch      *string
	Department  *string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PageSize    int
}

// TicketSummary response.
type TicketSummary struct {
	ID         string              `json:"id"`
	Branch     string              `json:"branch"`
	Department string              `json:"department"`
	Category   string              `json:"category"`
	Urgency    string              `json:"urgency"`
	Status     domain.TicketStatus `json:"status"`
	AssignedTo *string             `json:"assigned_to"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID             string                  `json:"id"`
	CreatorID      string                  `json:"creator_id"`
	CreatorName    string                  `json:"creator_name"`
	Branch         string                  `json:"branch"`
	Department     string                  `json:"department"`
	Category       string                  `json:"category"`
	Urgency        string                  `json:"urgency"`
	Description    string                  `json:"description"`
	ContactPerson  string                  `json:"contact_person"`
	Status         domain.TicketStatus     `json:"status"`
	AssignedTo     *string                 `json:"assigned_to"`
	AssignedToName *string                 `json:"assigned_to_name"`
	Remarks        *string                 `json:"remarks"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	ResolvedAt     *time.Time              `json:"resolved_at"`
	History        []StatusHistoryResponse `json:"history"`
}

// StatusHistoryResponse is one audit trail entry.
type StatusHistoryResponse struct {
	ID         string               `json:"id"`
	FromStatus *domain.TicketStatus `json:"from_status"`
	ToStatus   domain.TicketStatus  `json:"to_status"`
	ActorID    string               `json:"actor_id"`
	ActorName  string               `json:"actor_name"`
	Remarks    *string              `json:"remarks"`
	At         time.Time            `json:"at"`
}

// TokenResponse is returned by the token command and endpoint.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	StaffID     string    `json:"staff_id"`
}
