package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

func insertHistory(ctx context.Context, tx pgx.Tx, entry *domain.StatusHistoryEntry) error {
	const query = `
        INSERT INTO ticket_history (id, ticket_id, from_status, to_status, actor_id, actor_name, remarks, at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	var from *string
	if entry.FromStatus != nil {
		v := string(*entry.FromStatus)
		from = &v
	}
	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.TicketID,
		from,
		string(entry.ToStatus),
		entry.ActorID,
		entry.ActorName,
		entry.Remarks,
		entry.At,
	)
	return err
}

func (r *postgresTicketStore) ListHistory(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	const query = `
        SELECT id, ticket_id, from_status, to_status, actor_id, actor_name, remarks, at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusHistoryEntry
	for rows.Next() {
		var (
			entry domain.StatusHistoryEntry
			from  *string
			to    string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&from,
			&to,
			&entry.ActorID,
			&entry.ActorName,
			&entry.Remarks,
			&entry.At,
		); err != nil {
			return nil, err
		}
		if from != nil {
			status := domain.TicketStatus(*from)
			entry.FromStatus = &status
		}
		entry.ToStatus = domain.TicketStatus(to)
		result = append(result, entry)
	}
	return result, rows.Err()
}
