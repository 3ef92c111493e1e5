package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

func TestDailyReportCountsByBucket(t *testing.T) {
	f := newFixture(t)
	open := f.createTicket(t)
	resolved := f.createTicket(t)
	cancelled := f.createTicket(t)
	_ = open
	_, err := f.staffChange(resolved.ID, staffSam, domain.TicketStatusResolved, "done")
	require.NoError(t, err)
	_, err = f.creatorChange(cancelled.ID, creatorChat, domain.TicketStatusCancelledUser)
	require.NoError(t, err)

	report, err := f.stats.Daily(f.ctx, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Open)
	assert.Equal(t, 1, report.Resolved)
	assert.Equal(t, 1, report.Cancelled)
	assert.Equal(t, 3, report.ByBranch["HQ"])
	assert.Equal(t, 3, report.ByDepartment["IT"])

	tomorrow, err := f.stats.Daily(f.ctx, f.clock.Now().AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, tomorrow.Total)

	text := FormatReport("Daily helpdesk report", report)
	assert.Contains(t, text, "Daily helpdesk report (2026-01-05 to 2026-01-05)")
	assert.Contains(t, text, "Total: 3 | Open: 1 | Resolved: 1 | Confirmed: 0 | Cancelled: 1")
}

func TestRangeRejectsEmptyWindow(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	_, err := f.stats.Range(f.ctx, now, now)
	assert.True(t, errorutil.HasCode(err, errorutil.CodeValidation))
}

func TestBranchResolvedTodayIgnoresEarlierDays(t *testing.T) {
	f := newFixture(t)
	yesterday := f.createTicket(t)
	_, err := f.staffChange(yesterday.ID, staffSam, domain.TicketStatusResolved, "done")
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	today := f.createTicket(t)
	_, err = f.staffChange(today.ID, staffSam, domain.TicketStatusResolved, "done")
	require.NoError(t, err)

	n, err := f.stats.BranchResolvedToday(f.ctx, "HQ")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.stats.BranchResolvedToday(f.ctx, "North")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStartOfDayUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	stats := NewStatsService(StatsDependencies{Location: loc})
	start := stats.StartOfDay(time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 1, 6, 0, 0, 0, 0, loc), start)
}
