package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

type vehicleRegistry struct {
	db *sql.DB
}

// NewVehicleRegistry создаёт PostgreSQL-реализацию VehicleRegistry.
// Идемпотентность по номеру обеспечивается upsert-ом по уникальному plate.
func NewVehicleRegistry(store *Store) domain.VehicleRegistry {
	return &vehicleRegistry{db: store.DB()}
}

func (r *vehicleRegistry) Upsert(ctx context.Context, input domain.VehicleInput) (domain.Vehicle, error) {
	if errs := input.Validate(); len(errs) > 0 {
		return domain.Vehicle{}, errs[0]
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	vehicleType := input.Type
	if vehicleType == "" {
		vehicleType = domain.VehicleTypeCar
	}

	vehicle, err := scanVehicle(r.db.QueryRowContext(opCtx, `
		INSERT INTO vehicles (id, plate, type, accessible, owner, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (plate) DO UPDATE
		SET type = EXCLUDED.type,
		    accessible = EXCLUDED.accessible,
		    owner = EXCLUDED.owner,
		    updated_at = EXCLUDED.updated_at
		RETURNING id, plate, type, accessible, owner, created_at, updated_at
	`,
		uuid.NewString(), domain.NormalizePlate(input.Plate), string(vehicleType),
		input.Accessible, input.Owner, now,
	))
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("upsert vehicle: %w", err)
	}

	return vehicle, nil
}

func (r *vehicleRegistry) FindByPlate(ctx context.Context, plate string) (domain.Vehicle, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	vehicle, err := scanVehicle(r.db.QueryRowContext(opCtx, `
		SELECT id, plate, type, accessible, owner, created_at, updated_at
		FROM vehicles
		WHERE plate = $1
	`, domain.NormalizePlate(plate)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Vehicle{}, domain.ErrVehicleNotFound
		}
		return domain.Vehicle{}, fmt.Errorf("select vehicle: %w", err)
	}

	return vehicle, nil
}

func scanVehicle(row rowScanner) (domain.Vehicle, error) {
	var (
		vehicle     domain.Vehicle
		vehicleType string
		owner       sql.NullString
	)
	if err := row.Scan(
		&vehicle.ID, &vehicle.Plate, &vehicleType, &vehicle.Accessible,
		&owner, &vehicle.CreatedAt, &vehicle.UpdatedAt,
	); err != nil {
		return domain.Vehicle{}, err
	}
	vehicle.Type = domain.VehicleType(vehicleType)
	if owner.Valid {
		vehicle.Owner = owner.String
	}
	return vehicle, nil
}

var _ domain.VehicleRegistry = (*vehicleRegistry)(nil)
