package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

const dateLayout = "2006-01-02"

// StatsHandler serves ticket reports and process metrics.
type StatsHandler struct {
	stats   *service.StatsService
	metrics *observability.Metrics
	now     func() time.Time
}

// NewStatsHandler constructs handler.
func NewStatsHandler(stats *service.StatsService, metrics *observability.Metrics) *StatsHandler {
	return &StatsHandler{stats: stats, metrics: metrics, now: time.Now}
}

// Daily GET /api/stats/daily?date=YYYY-MM-DD. Defaults to today.
func (h *StatsHandler) Daily(c *fiber.Ctx) error {
	day, err := h.parseDate(c.Query("date"), h.now())
	if err != nil {
		return err
	}
	report, err := h.stats.Daily(c.UserContext(), day)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Weekly GET /api/stats/weekly?start=YYYY-MM-DD. Defaults to the Monday of the current week.
func (h *StatsHandler) Weekly(c *fiber.Ctx) error {
	today := h.stats.StartOfDay(h.now())
	offset := (int(today.Weekday()) + 6) % 7
	start, err := h.parseDate(c.Query("start"), today.AddDate(0, 0, -offset))
	if err != nil {
		return err
	}
	report, err := h.stats.Weekly(c.UserContext(), start)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Metrics GET /api/metrics.
func (h *StatsHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}

func (h *StatsHandler) parseDate(val string, def time.Time) (time.Time, error) {
	if val == "" {
		return def, nil
	}
	day, err := time.ParseInLocation(dateLayout, val, h.stats.Location())
	if err != nil {
		return time.Time{}, apperrors.NewValidationError("date must be YYYY-MM-DD", map[string]any{"value": val})
	}
	return day, nil
}
