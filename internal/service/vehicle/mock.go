package vehicle

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// MockRegistry — конфигурируемая заглушка VehicleRegistry для тестов.
// UpsertErr включает сценарий отказа; FailFirst ограничивает число
// неудачных вызовов (0 — отказывать всегда), что позволяет проверять
// recovery после retry.
type MockRegistry struct {
	UpsertErr error
	FindErr   error
	FailFirst int

	UpsertCalls int
	FindCalls   int
}

// NewMockRegistry возвращает mock с успешным сценарием по умолчанию.
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{}
}

// Upsert возвращает настроенный результат и считает вызовы.
func (m *MockRegistry) Upsert(_ context.Context, input domain.VehicleInput) (domain.Vehicle, error) {
	m.UpsertCalls++
	if m.UpsertErr != nil && (m.FailFirst == 0 || m.UpsertCalls <= m.FailFirst) {
		return domain.Vehicle{}, m.UpsertErr
	}

	now := time.Now().UTC()
	vehicleType := input.Type
	if vehicleType == "" {
		vehicleType = domain.VehicleTypeCar
	}
	return domain.Vehicle{
		ID:         "vehicle-" + domain.NormalizePlate(input.Plate),
		Plate:      domain.NormalizePlate(input.Plate),
		Type:       vehicleType,
		Accessible: input.Accessible,
		Owner:      input.Owner,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// FindByPlate возвращает настроенную ошибку и считает вызовы.
func (m *MockRegistry) FindByPlate(_ context.Context, plate string) (domain.Vehicle, error) {
	m.FindCalls++
	if m.FindErr != nil {
		return domain.Vehicle{}, m.FindErr
	}
	return domain.Vehicle{
		ID:    "vehicle-" + domain.NormalizePlate(plate),
		Plate: domain.NormalizePlate(plate),
		Type:  domain.VehicleTypeCar,
	}, nil
}

var _ domain.VehicleRegistry = (*MockRegistry)(nil)
