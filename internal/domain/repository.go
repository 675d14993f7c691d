package domain

import "time"

// ParkingRepository описывает хранилище уровней и мест.
//
// Контракт конкурентности: UpdateSpot и AllocateInLevel выполняются под
// эксклюзивной блокировкой записи (или набора кандидатов для AllocateInLevel),
// так что два конкурентных запроса никогда не получают одно и то же место.
type ParkingRepository interface {
	// CreateWithSpots атомарно создаёт уровень вместе со всеми местами.
	// Дубликат подписи уровня даёт ErrDuplicateLevel; уровень никогда
	// не создаётся частично.
	CreateWithSpots(level Level, spots []Spot) error
	GetLevel(id string) (Level, error)
	ListLevels() ([]Level, error)
	GetSpot(id string) (Spot, error)
	ListSpots(levelID string) ([]Spot, error)
	// UpdateSpot применяет fn к месту под блокировкой; ошибка fn откатывает мутацию.
	UpdateSpot(id string, fn func(*Spot) error) (Spot, error)
	// AllocateInLevel выбирает свободное место с минимальным кодом,
	// соответствующее признаку доступности, и атомарно занимает его.
	// ErrNoSpotsAvailable, если подходящих мест нет.
	AllocateInLevel(levelID string, accessible bool) (Spot, error)
}

// TicketRepository описывает хранилище парковочных сессий.
type TicketRepository interface {
	Create(ticket Ticket) error
	Get(id string) (Ticket, error)
	// FindActiveByPlate возвращает открытый тикет по номеру или ErrTicketNotFound.
	FindActiveByPlate(plate string) (Ticket, error)
	// Close атомарно выставляет время выезда, сумму и статус CLOSED.
	// Повторное закрытие даёт ErrTicketClosed.
	Close(id string, exitAt time.Time, feeMinor int64) (Ticket, error)
	ListByUser(userEmail string) ([]Ticket, error)
	ListActive() ([]Ticket, error)
	ListAll() ([]Ticket, error)
	Stats() (TicketStats, error)
}

// ReservationRepository описывает хранилище броней.
type ReservationRepository interface {
	Create(reservation Reservation) error
	Get(id string) (Reservation, error)
	// Update применяет fn к брони под блокировкой записи: заезд и sweep
	// на одной брони сериализуются той же дисциплиной, что и места.
	Update(id string, fn func(*Reservation) error) (Reservation, error)
	// HasSpotOverlap проверяет пересечение окна с CREATED/ACTIVE бронями места.
	HasSpotOverlap(spotID string, start, end time.Time) (bool, error)
	// HasVehicleOverlap — то же правило по номерному знаку.
	HasVehicleOverlap(plate string, start, end time.Time) (bool, error)
	// FindBlocking возвращает CREATED/ACTIVE бронь, чьё окно содержит момент at,
	// или ErrReservationNotFound.
	FindBlocking(spotID string, at time.Time) (Reservation, error)
	// ExpireNoShows переводит в EXPIRED все CREATED брони, начавшиеся до cutoff.
	// Идемпотентен: повторный запуск по уже EXPIRED строкам — no-op.
	ExpireNoShows(cutoff time.Time) (int, error)
	ListByUser(userEmail string) ([]Reservation, error)
	// ListForSpotBetween возвращает брони места, пересекающие [from, to).
	ListForSpotBetween(spotID string, from, to time.Time) ([]Reservation, error)
	ListAll() ([]Reservation, error)
}
