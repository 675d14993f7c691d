package domain

import "errors"

var (
	// Валидационные ошибки входных данных.
	ErrPlateRequired      = errors.New("vehicle plate is required")
	ErrVehicleTypeInvalid = errors.New("vehicle type is invalid")
	ErrSpotIDRequired     = errors.New("spot_id is required")
	ErrUserRequired       = errors.New("user_id is required")
	ErrEntryTimeRequired  = errors.New("entry time is required")
	ErrLevelIDRequired    = errors.New("level_id is required")
	ErrSpotCodeRequired   = errors.New("spot code is required")
	ErrSpotTypeInvalid    = errors.New("spot type is invalid")
	ErrWindowInverted     = errors.New("reservation window end must be after start")

	// Ошибки уровней и мест.
	ErrLevelLabelRequired = errors.New("level label is required")
	// ErrSpotDistribution — число мест и типизированное распределение не сходятся.
	ErrSpotDistribution = errors.New("invalid spot distribution")
	ErrLevelNotFound    = errors.New("level not found")
	ErrDuplicateLevel   = errors.New("level label already exists")
	ErrDuplicateSpot    = errors.New("duplicate spot code within level")
	ErrSpotNotFound     = errors.New("spot not found")

	// Конфликты конечного автомата места.
	ErrNoSpotsAvailable = errors.New("no spots available")
	ErrSpotOccupied     = errors.New("spot is already occupied")
	ErrSpotOutOfService = errors.New("spot is out of service")
	ErrSpotAlreadyFree  = errors.New("spot is already free")
	ErrSpotBusy         = errors.New("cannot disable an occupied spot")

	// Ошибки бронирования.
	ErrInvalidWindow       = errors.New("invalid reservation window")
	ErrSpotReserved        = errors.New("spot is already reserved for this window")
	ErrVehicleReserved     = errors.New("vehicle already has a reservation for this window")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrCheckInTooEarly     = errors.New("too early to check in")
	ErrReservationExpired  = errors.New("reservation expired")
	ErrCannotCancel        = errors.New("reservation cannot be cancelled")
	// ErrSpotReservedByOther — walk-up заезд упёрся в чужую действующую бронь.
	ErrSpotReservedByOther = errors.New("spot is held by another reservation")
	// ErrVehicleParked — заезд по брони для номера с уже открытой сессией.
	ErrVehicleParked = errors.New("vehicle already has an open parking session")

	// ErrVehicleNotFound — номер отсутствует в реестре транспортных средств.
	ErrVehicleNotFound = errors.New("vehicle not found")

	// Ошибки тикетов.
	ErrTicketNotFound = errors.New("ticket not found")
	ErrTicketClosed   = errors.New("ticket already closed")
	// ErrActiveTicketExists — нарушение уникальности открытой сессии
	// на номер (partial unique index в postgres, индекс в памяти).
	ErrActiveTicketExists = errors.New("active ticket already exists for plate")

	// Ошибки платежей.
	ErrPaymentFailed = errors.New("payment failed")

	// ErrTransient помечает временную инфраструктурную ошибку:
	// такие ошибки повторяются с backoff, бизнес-отказы — никогда.
	ErrTransient = errors.New("transient infrastructure error")

	// Ошибки недоступности коллабораторов после исчерпания retry/circuit breaker.
	ErrVehicleServiceUnavailable   = errors.New("vehicle service unavailable")
	ErrTicketingServiceUnavailable = errors.New("ticketing service unavailable")
	ErrPaymentServiceUnavailable   = errors.New("payment service unavailable")

	// ErrOutboxPublish — ошибка публикации события из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsTransient проверяет, является ли ошибка временной и подлежащей retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsConflict проверяет, относится ли ошибка к конфликтам состояния,
// которые не имеет смысла повторять автоматически.
func IsConflict(err error) bool {
	switch {
	case errors.Is(err, ErrSpotOccupied),
		errors.Is(err, ErrSpotOutOfService),
		errors.Is(err, ErrSpotAlreadyFree),
		errors.Is(err, ErrSpotBusy),
		errors.Is(err, ErrNoSpotsAvailable),
		errors.Is(err, ErrSpotReserved),
		errors.Is(err, ErrVehicleReserved),
		errors.Is(err, ErrSpotReservedByOther),
		errors.Is(err, ErrVehicleParked),
		errors.Is(err, ErrActiveTicketExists),
		errors.Is(err, ErrTicketClosed),
		errors.Is(err, ErrCannotCancel):
		return true
	}
	return false
}
