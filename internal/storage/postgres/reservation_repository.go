package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

const reservationColumns = `id, user_id, user_email, plate, spot_id, level_id, start_at, end_at, status, ticket_id, created_at`

type reservationRepository struct {
	db *sql.DB
}

// NewReservationRepository создаёт PostgreSQL-реализацию ReservationRepository.
func NewReservationRepository(store *Store) domain.ReservationRepository {
	return &reservationRepository{db: store.DB()}
}

func (r *reservationRepository) Create(reservation domain.Reservation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var ticketID sql.NullString
	if reservation.TicketID != "" {
		ticketID = sql.NullString{String: reservation.TicketID, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO reservations (
			id, user_id, user_email, plate, spot_id, level_id,
			start_at, end_at, status, ticket_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		reservation.ID, reservation.UserID, reservation.UserEmail,
		domain.NormalizePlate(reservation.Plate), reservation.SpotID, reservation.LevelID,
		reservation.StartAt, reservation.EndAt, string(reservation.Status),
		ticketID, reservation.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	return nil
}

func (r *reservationRepository) Get(id string) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	reservation, err := scanReservation(r.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("select reservation: %w", err)
	}

	return reservation, nil
}

// Update применяет fn к брони под SELECT ... FOR UPDATE: заезд и expiry sweep
// на одной брони сериализуются на уровне строки.
func (r *reservationRepository) Update(id string, fn func(*domain.Reservation) error) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var reservation domain.Reservation
	reservation, err = scanReservation(tx.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = domain.ErrReservationNotFound
			return domain.Reservation{}, err
		}
		return domain.Reservation{}, fmt.Errorf("lock reservation row: %w", err)
	}

	if err = fn(&reservation); err != nil {
		return domain.Reservation{}, err
	}

	var ticketID sql.NullString
	if reservation.TicketID != "" {
		ticketID = sql.NullString{String: reservation.TicketID, Valid: true}
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = $2,
		    ticket_id = $3
		WHERE id = $1
	`, reservation.ID, string(reservation.Status), ticketID); err != nil {
		return domain.Reservation{}, fmt.Errorf("update reservation: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.Reservation{}, fmt.Errorf("commit update reservation: %w", err)
	}

	return reservation, nil
}

// HasSpotOverlap проверяет пересечение полуоткрытого окна с действующими
// бронями места: existing.start < end AND existing.end > start.
func (r *reservationRepository) HasSpotOverlap(spotID string, start, end time.Time) (bool, error) {
	return r.overlapExists(`spot_id = $1`, spotID, start, end)
}

func (r *reservationRepository) HasVehicleOverlap(plate string, start, end time.Time) (bool, error) {
	return r.overlapExists(`plate = $1`, domain.NormalizePlate(plate), start, end)
}

func (r *reservationRepository) overlapExists(cond, key string, start, end time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM reservations
			WHERE `+cond+`
			  AND status IN ('CREATED', 'ACTIVE')
			  AND start_at < $3
			  AND end_at > $2
		)
	`, key, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("check reservation overlap: %w", err)
	}

	return exists, nil
}

func (r *reservationRepository) FindBlocking(spotID string, at time.Time) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	reservation, err := scanReservation(r.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		WHERE spot_id = $1
		  AND status IN ('CREATED', 'ACTIVE')
		  AND start_at <= $2
		  AND end_at > $2
		ORDER BY start_at ASC
		LIMIT 1
	`, spotID, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("select blocking reservation: %w", err)
	}

	return reservation, nil
}

// ExpireNoShows переводит невостребованные CREATED брони в EXPIRED одним
// UPDATE; условие на статус делает повторный запуск no-op.
func (r *reservationRepository) ExpireNoShows(cutoff time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE reservations
		SET status = 'EXPIRED'
		WHERE status = 'CREATED'
		  AND start_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire reservations: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected for expire: %w", err)
	}

	return int(affected), nil
}

func (r *reservationRepository) ListByUser(userEmail string) ([]domain.Reservation, error) {
	return r.list(`WHERE user_email = $1`, userEmail)
}

func (r *reservationRepository) ListForSpotBetween(spotID string, from, to time.Time) ([]domain.Reservation, error) {
	return r.list(`
		WHERE spot_id = $1
		  AND status IN ('CREATED', 'ACTIVE')
		  AND start_at < $3
		  AND end_at > $2
	`, spotID, from, to)
}

func (r *reservationRepository) ListAll() ([]domain.Reservation, error) {
	return r.list(``)
}

func (r *reservationRepository) list(where string, args ...any) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations
		`+where+`
		ORDER BY start_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	reservations := make([]domain.Reservation, 0)
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation row: %w", err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation rows: %w", err)
	}

	return reservations, nil
}

func scanReservation(row rowScanner) (domain.Reservation, error) {
	var (
		reservation domain.Reservation
		status      string
		ticketID    sql.NullString
	)
	if err := row.Scan(
		&reservation.ID, &reservation.UserID, &reservation.UserEmail, &reservation.Plate,
		&reservation.SpotID, &reservation.LevelID, &reservation.StartAt, &reservation.EndAt,
		&status, &ticketID, &reservation.CreatedAt,
	); err != nil {
		return domain.Reservation{}, err
	}
	reservation.Status = domain.ReservationStatus(status)
	if ticketID.Valid {
		reservation.TicketID = ticketID.String
	}
	return reservation, nil
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
