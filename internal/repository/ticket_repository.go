package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

const ticketColumns = `id, creator_id, creator_name, branch, department, category, urgency, description,
               contact_person, status, assigned_to, assigned_to_name, remarks, created_at, updated_at, resolved_at`

const uniqueViolation = "23505"

type postgresTicketStore struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketStore instantiates the pgx-backed store.
func NewPostgresTicketStore(pool *pgxpool.Pool) TicketStore {
	return &postgresTicketStore{pool: pool}
}

func (r *postgresTicketStore) CreateTicket(ctx context.Context, ticket *domain.Ticket, initial *domain.StatusHistoryEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO tickets (id, creator_id, creator_name, branch, department, category, urgency, description,
            contact_person, status, assigned_to, assigned_to_name, remarks, created_at, updated_at, resolved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	if _, err := tx.Exec(ctx, query,
		ticket.ID,
		ticket.CreatorID,
		ticket.CreatorName,
		ticket.Branch,
		ticket.Department,
		ticket.Category,
		ticket.Urgency,
		ticket.Description,
		ticket.ContactPerson,
		string(ticket.Status),
		ticket.AssignedTo,
		ticket.AssignedToName,
		ticket.Remarks,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateTicket
		}
		return err
	}
	if initial != nil {
		if err := insertHistory(ctx, tx, initial); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *postgresTicketStore) UpdateTicketStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus, entry *domain.StatusHistoryEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE tickets SET status=$1, assigned_to=$2, assigned_to_name=$3, remarks=$4, updated_at=$5, resolved_at=$6
        WHERE id=$7 AND status=$8`
	cmd, err := tx.Exec(ctx, query,
		string(ticket.Status),
		ticket.AssignedTo,
		ticket.AssignedToName,
		ticket.Remarks,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ID,
		string(expected),
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, ticket.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrTicketNotFound
		}
		return ErrStaleTicket
	}
	if entry != nil {
		if err := insertHistory(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *postgresTicketStore) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return ticket, nil
}

func (r *postgresTicketStore) QueryTickets(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatorID != nil {
		args = append(args, *filter.CreatorID)
		clauses = append(clauses, fmt.Sprintf("creator_id=$%d", len(args)))
	}
	if filter.Branch != nil {
		args = append(args, *filter.Branch)
		clauses = append(clauses, fmt.Sprintf("branch=$%d", len(args)))
	}
	if filter.Department != nil {
		args = append(args, *filter.Department)
		clauses = append(clauses, fmt.Sprintf("department=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if filter.UpdatedBefore != nil {
		args = append(args, *filter.UpdatedBefore)
		clauses = append(clauses, fmt.Sprintf("updated_at < $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id DESC`,
		ticketColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *postgresTicketStore) CountCreatedBetween(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE created_at >= $1 AND created_at < $2`, from, to).Scan(&count)
	return count, err
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket domain.Ticket
		status string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.CreatorID,
		&ticket.CreatorName,
		&ticket.Branch,
		&ticket.Department,
		&ticket.Category,
		&ticket.Urgency,
		&ticket.Description,
		&ticket.ContactPerson,
		&status,
		&ticket.AssignedTo,
		&ticket.AssignedToName,
		&ticket.Remarks,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	return &ticket, nil
}
