package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

const ticketColumns = `id, user_id, user_email, plate, spot_id, level_id, entry_at, exit_at, fee_minor, status`

type ticketRepository struct {
	db *sql.DB
}

// NewTicketRepository создаёт PostgreSQL-реализацию TicketRepository.
// Инвариант "один ACTIVE тикет на номер" обеспечивается partial unique index.
func NewTicketRepository(store *Store) domain.TicketRepository {
	return &ticketRepository{db: store.DB()}
}

func (r *ticketRepository) Create(ticket domain.Ticket) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var exitAt sql.NullTime
	if !ticket.ExitAt.IsZero() {
		exitAt = sql.NullTime{Time: ticket.ExitAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tickets (
			id, user_id, user_email, plate, spot_id, level_id,
			entry_at, exit_at, fee_minor, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		ticket.ID, ticket.UserID, ticket.UserEmail, domain.NormalizePlate(ticket.Plate),
		ticket.SpotID, ticket.LevelID, ticket.EntryAt, exitAt, ticket.FeeMinor, string(ticket.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActiveTicketExists
		}
		return fmt.Errorf("insert ticket: %w", err)
	}

	return nil
}

func (r *ticketRepository) Get(id string) (domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ticket, err := scanTicket(r.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, fmt.Errorf("select ticket: %w", err)
	}

	return ticket, nil
}

func (r *ticketRepository) FindActiveByPlate(plate string) (domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ticket, err := scanTicket(r.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE plate = $1
		  AND status = 'ACTIVE'
	`, domain.NormalizePlate(plate)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Ticket{}, domain.ErrTicketNotFound
		}
		return domain.Ticket{}, fmt.Errorf("select active ticket: %w", err)
	}

	return ticket, nil
}

// Close закрывает тикет одним UPDATE: время выезда, сумма и статус ставятся
// вместе, повторное закрытие отсекается условием на статус.
func (r *ticketRepository) Close(id string, exitAt time.Time, feeMinor int64) (domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ticket, err := scanTicket(r.db.QueryRowContext(ctx, `
		UPDATE tickets
		SET exit_at = $2,
		    fee_minor = $3,
		    status = 'CLOSED'
		WHERE id = $1
		  AND status = 'ACTIVE'
		RETURNING `+ticketColumns+`
	`, id, exitAt, feeMinor))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Ticket{}, fmt.Errorf("close ticket: %w", err)
	}

	// Строка не обновилась: либо тикета нет, либо он уже закрыт.
	if _, getErr := r.Get(id); getErr != nil {
		return domain.Ticket{}, getErr
	}
	return domain.Ticket{}, domain.ErrTicketClosed
}

func (r *ticketRepository) ListByUser(userEmail string) ([]domain.Ticket, error) {
	return r.list(`WHERE user_email = $1`, userEmail)
}

func (r *ticketRepository) ListActive() ([]domain.Ticket, error) {
	return r.list(`WHERE status = 'ACTIVE'`)
}

func (r *ticketRepository) ListAll() ([]domain.Ticket, error) {
	return r.list(``)
}

func (r *ticketRepository) Stats() (domain.TicketStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var stats domain.TicketStats
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'ACTIVE'),
		       COUNT(*) FILTER (WHERE status = 'CLOSED'),
		       COUNT(DISTINCT plate) FILTER (WHERE status = 'ACTIVE')
		FROM tickets
	`).Scan(&stats.Total, &stats.Active, &stats.Closed, &stats.ActiveVehicles); err != nil {
		return domain.TicketStats{}, fmt.Errorf("ticket stats query failed: %w", err)
	}

	return stats, nil
}

func (r *ticketRepository) list(where string, args ...any) ([]domain.Ticket, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		`+where+`
		ORDER BY entry_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]domain.Ticket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket row: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket rows: %w", err)
	}

	return tickets, nil
}

func scanTicket(row rowScanner) (domain.Ticket, error) {
	var (
		ticket domain.Ticket
		exitAt sql.NullTime
		status string
	)
	if err := row.Scan(
		&ticket.ID, &ticket.UserID, &ticket.UserEmail, &ticket.Plate,
		&ticket.SpotID, &ticket.LevelID, &ticket.EntryAt, &exitAt,
		&ticket.FeeMinor, &status,
	); err != nil {
		return domain.Ticket{}, err
	}
	if exitAt.Valid {
		ticket.ExitAt = exitAt.Time.UTC()
	}
	ticket.Status = domain.TicketStatus(status)
	return ticket, nil
}

var _ domain.TicketRepository = (*ticketRepository)(nil)
