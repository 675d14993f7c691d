package domain

import "time"

// TicketStatus описывает жизненный цикл парковочной сессии.
type TicketStatus string

const (
	// TicketStatusActive — транспорт на парковке, сессия открыта.
	TicketStatusActive TicketStatus = "ACTIVE"
	// TicketStatusClosed — сессия завершена, оплата проведена.
	TicketStatusClosed TicketStatus = "CLOSED"
)

// Ticket — запись одной парковочной сессии.
// Инвариант: не более одного ACTIVE тикета на номерной знак.
type Ticket struct {
	ID        string
	UserID    string
	UserEmail string
	Plate     string
	SpotID    string
	LevelID   string
	EntryAt   time.Time
	// ExitAt заполняется один раз при закрытии вместе со статусом и суммой.
	ExitAt   time.Time
	FeeMinor int64
	Status   TicketStatus
}

// Closed сообщает, завершена ли сессия.
func (t *Ticket) Closed() bool {
	return t.Status == TicketStatusClosed || !t.ExitAt.IsZero()
}

// Close выполняет единственную допустимую мутацию закрытого цикла:
// выставляет время выезда, сумму и статус атомарно.
func (t *Ticket) Close(exitAt time.Time, feeMinor int64) error {
	if t.Closed() {
		return ErrTicketClosed
	}
	t.ExitAt = exitAt
	t.FeeMinor = feeMinor
	t.Status = TicketStatusClosed
	return nil
}

// Validate проверяет базовые инварианты тикета.
func (t *Ticket) Validate() []error {
	var errs []error

	if t.Plate == "" {
		errs = append(errs, ErrPlateRequired)
	}
	if t.SpotID == "" {
		errs = append(errs, ErrSpotIDRequired)
	}
	if t.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if t.EntryAt.IsZero() {
		errs = append(errs, ErrEntryTimeRequired)
	}

	return errs
}

// Fee считает стоимость стоянки по детерминированной формуле:
// max(минимальная плата, целые часы × почасовой тариф). Часы округляются вниз.
func Fee(entryAt, exitAt time.Time, hourlyRateMinor, minFeeMinor int64) int64 {
	hours := int64(exitAt.Sub(entryAt).Hours())
	if hours < 0 {
		hours = 0
	}
	fee := hours * hourlyRateMinor
	if fee < minFeeMinor {
		return minFeeMinor
	}
	return fee
}

// TicketStats — сводная статистика по тикетам.
type TicketStats struct {
	Total          int
	Active         int
	Closed         int
	ActiveVehicles int
}
