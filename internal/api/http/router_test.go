package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-bot/internal/auth"
	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/persistence"
	"github.com/spec-kit/helpdesk-bot/internal/repository"
	"github.com/spec-kit/helpdesk-bot/internal/service"
)

type opsHarness struct {
	app     *fiber.App
	tickets *service.TicketService
	token   string
}

func newOpsHarness(t *testing.T) *opsHarness {
	t.Helper()
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := repository.NewMemoryTicketStore()
	metrics := observability.NewMetrics()
	tickets := service.NewTicketService(service.TicketDependencies{Store: store, Metrics: metrics, Now: clock})
	stats := service.NewStatsService(service.StatsDependencies{Store: store, Now: clock})

	staff := config.StaffConfig{IDs: []string{"S1"}, Names: map[string]string{"S1": "Sam"}}
	tokens := auth.NewTokenManager("secret", 30)
	token, _, err := tokens.GenerateToken("S1")
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("helpdesk", "test", &persistence.Postgres{}, &persistence.Redis{}),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Stats:          handlers.NewStatsHandler(stats, metrics),
		AuthMiddleware: auth.NewMiddleware(tokens, staff),
	})
	return &opsHarness{app: app, tickets: tickets, token: token}
}

func (h *opsHarness) get(t *testing.T, path string, authorized bool) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(nethttp.MethodGet, path, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func (h *opsHarness) openTicket(t *testing.T, branch string) string {
	t.Helper()
	ticket, err := h.tickets.CreateTicket(context.Background(), service.TicketCreateInput{
		CreatorID:     "501",
		CreatorName:   "Ana",
		Branch:        branch,
		Department:    "IT",
		Category:      "Printer",
		Urgency:       "High",
		Description:   "Printer jams on every page",
		ContactPerson: "Ana",
	})
	require.NoError(t, err)
	return ticket.ID
}

func TestHealthReportsMemoryBackends(t *testing.T) {
	h := newOpsHarness(t)

	status, body := h.get(t, "/health/live", false)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = h.get(t, "/health/ready", false)
	assert.Equal(t, nethttp.StatusOK, status)
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "memory", deps["postgres"])
	assert.Equal(t, "memory", deps["redis"])
}

func TestAPIRequiresToken(t *testing.T) {
	h := newOpsHarness(t)
	status, body := h.get(t, "/api/metrics", false)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
}

func TestGetTicketWithHistory(t *testing.T) {
	h := newOpsHarness(t)
	id := h.openTicket(t, "HQ")

	status, body := h.get(t, "/api/tickets/"+id, true)
	require.Equal(t, nethttp.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, id, data["id"])
	assert.Equal(t, "pending", data["status"])
	history := data["history"].([]any)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].(map[string]any)["from_status"])

	status, body = h.get(t, "/api/tickets/ISSUE-20990101-0001", true)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestListTicketsFilters(t *testing.T) {
	h := newOpsHarness(t)
	h.openTicket(t, "HQ")
	h.openTicket(t, "North")

	status, body := h.get(t, "/api/tickets?branch=North", true)
	require.Equal(t, nethttp.StatusOK, status)
	items := body["data"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "North", items[0].(map[string]any)["branch"])

	status, body = h.get(t, "/api/tickets?status=ip", true)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Empty(t, body["data"])

	status, _ = h.get(t, "/api/tickets?status=bogus", true)
	assert.Equal(t, nethttp.StatusBadRequest, status)
}

func TestDailyStats(t *testing.T) {
	h := newOpsHarness(t)
	h.openTicket(t, "HQ")
	h.openTicket(t, "HQ")

	status, body := h.get(t, "/api/stats/daily?date=2026-01-05", true)
	require.Equal(t, nethttp.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 2, data["total"])
	assert.EqualValues(t, 2, data["open"])

	status, body = h.get(t, "/api/stats/weekly?start=2026-01-05", true)
	require.Equal(t, nethttp.StatusOK, status)
	assert.EqualValues(t, 2, body["data"].(map[string]any)["total"])

	status, _ = h.get(t, "/api/stats/daily?date=05-01-2026", true)
	assert.Equal(t, nethttp.StatusBadRequest, status)
}

func TestMetricsCountRequests(t *testing.T) {
	h := newOpsHarness(t)
	h.get(t, "/health/live", false)

	status, body := h.get(t, "/api/metrics", true)
	require.Equal(t, nethttp.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["requests"])
}
