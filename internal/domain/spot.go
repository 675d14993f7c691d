package domain

import "time"

// SpotType описывает тип парковочного места.
type SpotType string

const (
	SpotTypeCar         SpotType = "CAR"
	SpotTypeBike        SpotType = "BIKE"
	SpotTypeEV          SpotType = "EV"
	SpotTypeHandicapped SpotType = "HANDICAPPED"
)

// SpotState описывает состояние места в конечном автомате
// AVAILABLE → OCCUPIED → AVAILABLE, любое свободное → DISABLED → AVAILABLE.
type SpotState string

const (
	// SpotStateAvailable — место свободно и может быть выдано.
	SpotStateAvailable SpotState = "AVAILABLE"
	// SpotStateOccupied — место занято активным тикетом.
	SpotStateOccupied SpotState = "OCCUPIED"
	// SpotStateDisabled — место выведено из эксплуатации администратором.
	SpotStateDisabled SpotState = "DISABLED"
)

// Level — именованный уровень парковки, владеющий набором мест.
type Level struct {
	ID         string
	Label      string
	TotalSpots int
	CreatedAt  time.Time
}

// Spot — одно физическое парковочное место.
type Spot struct {
	ID      string
	LevelID string
	// Code уникален в пределах уровня (A1, A2, ... B1).
	Code string
	Type SpotType
	// Accessible — место для водителей с ограниченными возможностями.
	// Не путать с SpotStateDisabled: это признак назначения, не состояние.
	Accessible bool
	State      SpotState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Occupy переводит место в OCCUPIED.
// Занятое место даёт ErrSpotOccupied, выведенное из эксплуатации — ErrSpotOutOfService.
func (s *Spot) Occupy() error {
	switch s.State {
	case SpotStateOccupied:
		return ErrSpotOccupied
	case SpotStateDisabled:
		return ErrSpotOutOfService
	}
	s.State = SpotStateOccupied
	return nil
}

// Release возвращает занятое место в AVAILABLE.
// Свободное место даёт ErrSpotAlreadyFree; для DISABLED release — no-op.
func (s *Spot) Release() error {
	switch s.State {
	case SpotStateAvailable:
		return ErrSpotAlreadyFree
	case SpotStateDisabled:
		return nil
	}
	s.State = SpotStateAvailable
	return nil
}

// Disable выводит место из эксплуатации. Занятое место отключить нельзя.
func (s *Spot) Disable() error {
	if s.State == SpotStateOccupied {
		return ErrSpotBusy
	}
	s.State = SpotStateDisabled
	return nil
}

// Enable безусловно возвращает место в AVAILABLE, сбрасывая признак занятости.
func (s *Spot) Enable() {
	s.State = SpotStateAvailable
}

// Validate проверяет корректность ключевых полей места.
func (s *Spot) Validate() []error {
	var errs []error

	if s.LevelID == "" {
		errs = append(errs, ErrLevelIDRequired)
	}
	if s.Code == "" {
		errs = append(errs, ErrSpotCodeRequired)
	}
	switch s.Type {
	case SpotTypeCar, SpotTypeBike, SpotTypeEV, SpotTypeHandicapped:
	default:
		errs = append(errs, ErrSpotTypeInvalid)
	}

	return errs
}

// LevelStats — производная статистика уровня, всегда пересчитывается
// из состояний мест, а не хранится отдельным счётчиком.
type LevelStats struct {
	LevelID      string
	Label        string
	TotalSpots   int
	Available    int
	Occupied     int
	Disabled     int
	OccupancyPct float64
}

// ParkingStats — агрегированная статистика по всем уровням.
type ParkingStats struct {
	TotalLevels  int
	TotalSpots   int
	Available    int
	Occupied     int
	Disabled     int
	OccupancyPct float64
	Levels       []LevelStats
}
