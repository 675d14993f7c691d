package vehicle

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// Registry — in-memory реализация VehicleRegistry.
// Upsert идемпотентен по нормализованному номерному знаку: повторная
// регистрация того же номера обновляет запись, а не создаёт новую.
type Registry struct {
	mu    sync.RWMutex
	items map[string]domain.Vehicle
}

// NewRegistry возвращает пустой реестр транспортных средств.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]domain.Vehicle)}
}

// Upsert регистрирует транспорт или обновляет существующую запись.
func (r *Registry) Upsert(_ context.Context, input domain.VehicleInput) (domain.Vehicle, error) {
	if errs := input.Validate(); len(errs) > 0 {
		return domain.Vehicle{}, errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	plate := domain.NormalizePlate(input.Plate)
	now := time.Now().UTC()

	vehicle, exists := r.items[plate]
	if !exists {
		vehicle = domain.Vehicle{
			ID:        uuid.NewString(),
			Plate:     plate,
			CreatedAt: now,
		}
	}
	vehicle.Type = input.Type
	if vehicle.Type == "" {
		vehicle.Type = domain.VehicleTypeCar
	}
	vehicle.Accessible = input.Accessible
	vehicle.Owner = input.Owner
	vehicle.UpdatedAt = now

	r.items[plate] = vehicle
	return vehicle, nil
}

// FindByPlate возвращает запись по номеру или ErrVehicleNotFound.
func (r *Registry) FindByPlate(_ context.Context, plate string) (domain.Vehicle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	vehicle, ok := r.items[domain.NormalizePlate(plate)]
	if !ok {
		return domain.Vehicle{}, domain.ErrVehicleNotFound
	}
	return vehicle, nil
}

var _ domain.VehicleRegistry = (*Registry)(nil)
