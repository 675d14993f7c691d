package domain

import (
	"strings"
	"time"
)

// VehicleType описывает тип транспортного средства.
type VehicleType string

const (
	VehicleTypeCar  VehicleType = "CAR"
	VehicleTypeBike VehicleType = "BIKE"
	VehicleTypeEV   VehicleType = "EV"
)

// Vehicle — зарегистрированное транспортное средство.
// Запись создаётся и обновляется идемпотентно по номерному знаку.
type Vehicle struct {
	ID    string
	Plate string
	Type  VehicleType
	// Accessible — водителю требуется доступное место.
	Accessible bool
	Owner      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// VehicleInput — запрос на регистрацию/обновление транспортного средства.
type VehicleInput struct {
	Plate      string
	Type       VehicleType
	Accessible bool
	Owner      string
}

// NormalizePlate приводит номерной знак к каноническому виду для поиска.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// Validate проверяет корректность полей запроса.
func (v *VehicleInput) Validate() []error {
	var errs []error

	if NormalizePlate(v.Plate) == "" {
		errs = append(errs, ErrPlateRequired)
	}
	switch v.Type {
	case VehicleTypeCar, VehicleTypeBike, VehicleTypeEV, "":
	default:
		errs = append(errs, ErrVehicleTypeInvalid)
	}

	return errs
}
