package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/repository"
	"github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// StatsService answers reporting queries over tickets.
type StatsService struct {
	store    repository.TicketStore
	location *time.Location
	now      func() time.Time
}

// StatsDependencies bundles collaborators for stats.
type StatsDependencies struct {
	Store    repository.TicketStore
	Location *time.Location
	Now      func() time.Time
}

// Report summarizes the tickets created in [From, To).
type Report struct {
	From         time.Time      `json:"from"`
	To           time.Time      `json:"to"`
	Total        int            `json:"total"`
	Open         int            `json:"open"`
	Resolved     int            `json:"resolved"`
	Confirmed    int            `json:"confirmed"`
	Cancelled    int            `json:"cancelled"`
	ByStatus     map[string]int `json:"by_status"`
	ByBranch     map[string]int `json:"by_branch"`
	ByDepartment map[string]int `json:"by_department"`
}

// NewStatsService constructs the service.
func NewStatsService(deps StatsDependencies) *StatsService {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &StatsService{store: deps.Store, location: loc, now: now}
}

// Daily reports the calendar day containing day.
func (s *StatsService) Daily(ctx context.Context, day time.Time) (Report, error) {
	start := s.StartOfDay(day)
	return s.Range(ctx, start, start.AddDate(0, 0, 1))
}

// Weekly reports the seven days starting at the day containing weekStart.
func (s *StatsService) Weekly(ctx context.Context, weekStart time.Time) (Report, error) {
	start := s.StartOfDay(weekStart)
	return s.Range(ctx, start, start.AddDate(0, 0, 7))
}

// Range reports tickets created in [from, to).
func (s *StatsService) Range(ctx context.Context, from, to time.Time) (Report, error) {
	if !to.After(from) {
		return Report{}, errorutil.NewValidationError("range end must be after its start", nil)
	}
	tickets, err := s.store.QueryTickets(ctx, repository.TicketFilter{CreatedFrom: &from, CreatedTo: &to})
	if err != nil {
		return Report{}, errorutil.NewInternalError(err)
	}
	report := Report{
		From:         from,
		To:           to,
		ByStatus:     map[string]int{},
		ByBranch:     map[string]int{},
		ByDepartment: map[string]int{},
	}
	for _, t := range tickets {
		report.Total++
		report.ByStatus[string(t.Status)]++
		report.ByBranch[t.Branch]++
		if t.Department != "" {
			report.ByDepartment[t.Department]++
		}
		switch {
		case t.Status == domain.TicketStatusPending || t.Status == domain.TicketStatusInProcess:
			report.Open++
		case t.Status.IsResolved():
			report.Resolved++
		case t.Status == domain.TicketStatusConfirmed || t.Status == domain.TicketStatusClosed:
			report.Confirmed++
		case t.Status == domain.TicketStatusCancelledStaff || t.Status == domain.TicketStatusCancelledUser:
			report.Cancelled++
		}
	}
	return report, nil
}

// BranchResolvedToday counts tickets of a branch whose resolution happened today.
func (s *StatsService) BranchResolvedToday(ctx context.Context, branch string) (int, error) {
	start := s.StartOfDay(s.now())
	end := start.AddDate(0, 0, 1)
	tickets, err := s.store.QueryTickets(ctx, repository.TicketFilter{
		Branch: &branch,
		Statuses: []domain.TicketStatus{
			domain.TicketStatusResolved, domain.TicketStatusResolvedWithIssues, domain.TicketStatusConfirmed,
		},
	})
	if err != nil {
		return 0, errorutil.NewInternalError(err)
	}
	count := 0
	for _, t := range tickets {
		if t.ResolvedAt != nil && !t.ResolvedAt.Before(start) && t.ResolvedAt.Before(end) {
			count++
		}
	}
	return count, nil
}

// StartOfDay returns local midnight of the day containing t.
func (s *StatsService) StartOfDay(t time.Time) time.Time {
	local := t.In(s.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
}

// Location returns the reporting timezone.
func (s *StatsService) Location() *time.Location {
	return s.location
}

// FormatReport renders a report for a chat digest.
func FormatReport(title string, r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s to %s)\n", title, r.From.Format("2006-01-02"), r.To.Add(-time.Nanosecond).Format("2006-01-02"))
	fmt.Fprintf(&b, "Total: %d | Open: %d | Resolved: %d | Confirmed: %d | Cancelled: %d\n",
		r.Total, r.Open, r.Resolved, r.Confirmed, r.Cancelled)
	writeCounts(&b, "By branch", r.ByBranch)
	writeCounts(&b, "By department", r.ByDepartment)
	return strings.TrimRight(b.String(), "\n")
}

func writeCounts(b *strings.Builder, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(b, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(b, "  %s: %d\n", k, counts[k])
	}
}
