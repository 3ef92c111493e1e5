package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-bot/internal/api/dto"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/repository"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// TicketsHandler exposes read-only ticket lookups to staff.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	query, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.SearchTickets(c.UserContext(), repository.TicketFilter{
		Branch:      query.Branch,
		Department:  query.Department,
		Statuses:    query.Statuses,
		CreatedFrom: query.CreatedFrom,
		CreatedTo:   query.CreatedTo,
		Limit:       query.PageSize,
		Offset:      (query.Page - 1) * query.PageSize,
	})
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items, "page": query.Page, "page_size": query.PageSize})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id := strings.ToUpper(strings.TrimSpace(c.Params("id")))
	ticket, err := h.service.GetTicket(c.UserContext(), id)
	if err != nil {
		return err
	}
	history, err := h.service.History(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, history)})
}

func parseTicketQuery(c *fiber.Ctx) (dto.TicketListQuery, error) {
	query := dto.TicketListQuery{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			status, ok := domain.ParseStatus(part)
			if !ok {
				return query, apperrors.NewValidationError("unknown status", map[string]any{"status": strings.TrimSpace(part)})
			}
			query.Statuses = append(query.Statuses, status)
		}
	}
	if branch := strings.TrimSpace(c.Query("branch")); branch != "" {
		query.Branch = &branch
	}
	if department := strings.TrimSpace(c.Query("department")); department != "" {
		query.Department = &department
	}
	query.CreatedFrom = parseTime(c.Query("created_from"))
	query.CreatedTo = parseTime(c.Query("created_to"))
	query.Page = parseInt(c.Query("page"), 1)
	query.PageSize = parseInt(c.Query("page_size"), 20)
	if query.PageSize > 100 {
		query.PageSize = 100
	}
	return query, nil
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:         ticket.ID,
		Branch:     ticket.Branch,
		Department: ticket.Department,
		Category:   ticket.Category,
		Urgency:    ticket.Urgency,
		Status:     ticket.Status,
		AssignedTo: ticket.AssignedTo,
		CreatedAt:  ticket.CreatedAt,
		UpdatedAt:  ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, history []domain.StatusHistoryEntry) dto.TicketDetailResponse {
	return dto.TicketDetailResponse{
		ID:             ticket.ID,
		CreatorID:      ticket.CreatorID,
		CreatorName:    ticket.CreatorName,
		Branch:         ticket.Branch,
		Department:     ticket.Department,
		Category:       ticket.Category,
		Urgency:        ticket.Urgency,
		Description:    ticket.Description,
		ContactPerson:  ticket.ContactPerson,
		Status:         ticket.Status,
		AssignedTo:     ticket.AssignedTo,
		AssignedToName: ticket.AssignedToName,
		Remarks:        ticket.Remarks,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
		ResolvedAt:     ticket.ResolvedAt,
		History:        historyResponses(history),
	}
}

func historyResponses(entries []domain.StatusHistoryEntry) []dto.StatusHistoryResponse {
	resp := make([]dto.StatusHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.StatusHistoryResponse{
			ID:         entry.ID,
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			ActorID:    entry.ActorID,
			ActorName:  entry.ActorName,
			Remarks:    entry.Remarks,
			At:         entry.At,
		})
	}
	return resp
}
