package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

const spotColumns = `id, level_id, code, type, accessible, state, created_at, updated_at`

type parkingRepository struct {
	db *sql.DB
}

// NewParkingRepository создаёт PostgreSQL-реализацию ParkingRepository.
// Row-level блокировки обеспечиваются SELECT ... FOR UPDATE, выбор кандидата
// при выдаче места — FOR UPDATE SKIP LOCKED.
func NewParkingRepository(store *Store) domain.ParkingRepository {
	return &parkingRepository{db: store.DB()}
}

func (r *parkingRepository) CreateWithSpots(level domain.Level, spots []domain.Spot) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO levels (id, label, total_spots, created_at)
		VALUES ($1,$2,$3,$4)
	`, level.ID, level.Label, level.TotalSpots, level.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateLevel
		}
		return fmt.Errorf("insert level: %w", err)
	}

	for _, spot := range spots {
		prefix, num := splitCode(spot.Code)
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO spots (
				id, level_id, code, code_prefix, code_num,
				type, accessible, state, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			spot.ID, spot.LevelID, spot.Code, prefix, num,
			string(spot.Type), spot.Accessible, string(spot.State),
			spot.CreatedAt, spot.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateSpot
			}
			return fmt.Errorf("insert spot: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create level: %w", err)
	}

	return nil
}

func (r *parkingRepository) GetLevel(id string) (domain.Level, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var level domain.Level
	err := r.db.QueryRowContext(ctx, `
		SELECT id, label, total_spots, created_at
		FROM levels
		WHERE id = $1
	`, id).Scan(&level.ID, &level.Label, &level.TotalSpots, &level.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Level{}, domain.ErrLevelNotFound
		}
		return domain.Level{}, fmt.Errorf("select level: %w", err)
	}

	return level, nil
}

func (r *parkingRepository) ListLevels() ([]domain.Level, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, total_spots, created_at
		FROM levels
		ORDER BY label ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	defer rows.Close()

	levels := make([]domain.Level, 0)
	for rows.Next() {
		var level domain.Level
		if err := rows.Scan(&level.ID, &level.Label, &level.TotalSpots, &level.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan level row: %w", err)
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate level rows: %w", err)
	}

	return levels, nil
}

func (r *parkingRepository) GetSpot(id string) (domain.Spot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	spot, err := scanSpot(r.db.QueryRowContext(ctx, `
		SELECT `+spotColumns+`
		FROM spots
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Spot{}, domain.ErrSpotNotFound
		}
		return domain.Spot{}, fmt.Errorf("select spot: %w", err)
	}

	return spot, nil
}

func (r *parkingRepository) ListSpots(levelID string) ([]domain.Spot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.GetLevel(levelID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+spotColumns+`
		FROM spots
		WHERE level_id = $1
		ORDER BY code_prefix ASC, code_num ASC, code ASC
	`, levelID)
	if err != nil {
		return nil, fmt.Errorf("list spots: %w", err)
	}
	defer rows.Close()

	spots := make([]domain.Spot, 0)
	for rows.Next() {
		spot, err := scanSpot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan spot row: %w", err)
		}
		spots = append(spots, spot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spot rows: %w", err)
	}

	return spots, nil
}

// UpdateSpot применяет fn к месту под SELECT ... FOR UPDATE.
// Ошибка fn откатывает транзакцию, место остаётся нетронутым.
func (r *parkingRepository) UpdateSpot(id string, fn func(*domain.Spot) error) (domain.Spot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Spot{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var spot domain.Spot
	spot, err = scanSpot(tx.QueryRowContext(ctx, `
		SELECT `+spotColumns+`
		FROM spots
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = domain.ErrSpotNotFound
			return domain.Spot{}, err
		}
		return domain.Spot{}, fmt.Errorf("lock spot row: %w", err)
	}

	if err = fn(&spot); err != nil {
		return domain.Spot{}, err
	}
	spot.UpdatedAt = time.Now().UTC()

	if _, err = tx.ExecContext(ctx, `
		UPDATE spots
		SET state = $2,
		    updated_at = $3
		WHERE id = $1
	`, spot.ID, string(spot.State), spot.UpdatedAt); err != nil {
		return domain.Spot{}, fmt.Errorf("update spot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return domain.Spot{}, fmt.Errorf("commit update spot: %w", err)
	}

	return spot, nil
}

// AllocateInLevel атомарно занимает свободное подходящее место с минимальным
// кодом. SKIP LOCKED гарантирует, что конкурентные запросы получают разные
// строки и не ждут друг друга.
func (r *parkingRepository) AllocateInLevel(levelID string, accessible bool) (domain.Spot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.GetLevel(levelID); err != nil {
		return domain.Spot{}, err
	}

	spot, err := scanSpot(r.db.QueryRowContext(ctx, `
		UPDATE spots
		SET state = 'OCCUPIED',
		    updated_at = NOW()
		WHERE id = (
			SELECT id
			FROM spots
			WHERE level_id = $1
			  AND state = 'AVAILABLE'
			  AND accessible = $2
			ORDER BY code_prefix ASC, code_num ASC, code ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+spotColumns+`
	`, levelID, accessible))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Spot{}, domain.ErrNoSpotsAvailable
		}
		return domain.Spot{}, fmt.Errorf("allocate spot: %w", err)
	}

	return spot, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSpot(row rowScanner) (domain.Spot, error) {
	var (
		spot      domain.Spot
		spotType  string
		spotState string
	)
	if err := row.Scan(
		&spot.ID, &spot.LevelID, &spot.Code, &spotType,
		&spot.Accessible, &spotState, &spot.CreatedAt, &spot.UpdatedAt,
	); err != nil {
		return domain.Spot{}, err
	}
	spot.Type = domain.SpotType(spotType)
	spot.State = domain.SpotState(spotState)
	return spot, nil
}

// splitCode разбирает код места на буквенный префикс и числовой суффикс
// для естественной сортировки (A2 < A10 < B1).
func splitCode(code string) (string, int) {
	i := 0
	for i < len(code) && (code[i] < '0' || code[i] > '9') {
		i++
	}
	prefix := strings.ToUpper(code[:i])
	num := 0
	for ; i < len(code); i++ {
		c := code[i]
		if c < '0' || c > '9' {
			break
		}
		num = num*10 + int(c-'0')
	}
	return prefix, num
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.ParkingRepository = (*parkingRepository)(nil)
