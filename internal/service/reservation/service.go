package reservation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pms/internal/domain"
	"github.com/vladislavdragonenkov/pms/internal/service/ticket"
)

// Config задаёт правила окна бронирования и grace-окна заезда.
type Config struct {
	// MaxAdvance — насколько далеко вперёд можно бронировать.
	MaxAdvance time.Duration
	// MinDuration и MaxDuration ограничивают длину окна брони.
	MinDuration time.Duration
	MaxDuration time.Duration
	// Grace — допуск вокруг начала брони для заезда: [start-Grace, start+Grace).
	Grace time.Duration
	// SlotStep — шаг сетки, к которому выравниваются границы окна.
	SlotStep time.Duration
	// OpenHour и CloseHour — часы работы площадки (UTC, [OpenHour:00, CloseHour:00]).
	OpenHour  int
	CloseHour int
}

// DefaultConfig возвращает правила бронирования по умолчанию.
func DefaultConfig() Config {
	return Config{
		MaxAdvance:  3 * 24 * time.Hour,
		MinDuration: 30 * time.Minute,
		MaxDuration: 4 * time.Hour,
		Grace:       10 * time.Minute,
		SlotStep:    30 * time.Minute,
		OpenHour:    6,
		CloseHour:   22,
	}
}

// Ledger управляет жизненным циклом броней: CREATED -> ACTIVE | EXPIRED | CANCELLED.
type Ledger struct {
	reservations domain.ReservationRepository
	parking      domain.ParkingRepository
	tickets      *ticket.Service
	cfg          Config
	logger       *log.Entry
}

// NewLedger создаёт сервис бронирований.
func NewLedger(
	reservations domain.ReservationRepository,
	parking domain.ParkingRepository,
	tickets *ticket.Service,
	cfg Config,
	logger *log.Entry,
) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "reservation")
	}
	if cfg.SlotStep <= 0 {
		cfg = DefaultConfig()
	}
	return &Ledger{
		reservations: reservations,
		parking:      parking,
		tickets:      tickets,
		cfg:          cfg,
		logger:       logger,
	}
}

// Config возвращает действующие правила бронирования.
func (l *Ledger) Config() Config {
	return l.cfg
}

// CreateRequest — запрос на создание брони.
type CreateRequest struct {
	UserID    string
	UserEmail string
	Plate     string
	SpotID    string
	StartAt   time.Time
	EndAt     time.Time
	// Now подставляется в тестах; нулевое значение означает time.Now().
	Now time.Time
}

// Create создаёт бронь после проверки окна и конфликтов.
// Границы окон полуоткрытые: бронь до 10:00 и бронь с 10:00 совместимы.
func (l *Ledger) Create(req CreateRequest) (domain.Reservation, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	plate := domain.NormalizePlate(req.Plate)

	if err := l.validateWindow(now, req.StartAt, req.EndAt); err != nil {
		return domain.Reservation{}, err
	}

	spot, err := l.parking.GetSpot(req.SpotID)
	if err != nil {
		return domain.Reservation{}, err
	}
	if spot.State == domain.SpotStateDisabled {
		return domain.Reservation{}, domain.ErrSpotOutOfService
	}

	if conflict, err := l.reservations.HasSpotOverlap(spot.ID, req.StartAt, req.EndAt); err != nil {
		return domain.Reservation{}, err
	} else if conflict {
		return domain.Reservation{}, domain.ErrSpotReserved
	}
	if conflict, err := l.reservations.HasVehicleOverlap(plate, req.StartAt, req.EndAt); err != nil {
		return domain.Reservation{}, err
	} else if conflict {
		return domain.Reservation{}, domain.ErrVehicleReserved
	}

	reservation := domain.Reservation{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		Plate:     plate,
		SpotID:    spot.ID,
		LevelID:   spot.LevelID,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		Status:    domain.ReservationStatusCreated,
		CreatedAt: now,
	}
	if errs := reservation.Validate(); len(errs) > 0 {
		return domain.Reservation{}, errs[0]
	}

	if err := l.reservations.Create(reservation); err != nil {
		return domain.Reservation{}, err
	}

	l.logger.WithFields(log.Fields{
		"reservation_id": reservation.ID,
		"spot_id":        reservation.SpotID,
		"plate":          reservation.Plate,
		"start_at":       reservation.StartAt,
	}).Info("reservation created")

	return reservation, nil
}

// CheckIn выполняет заезд по брони: открывает тикет и переводит бронь
// в ACTIVE. Тикет создаётся под блокировкой записи брони, поэтому заезд
// и sweep на одной брони не пересекаются. При ошибке открытия тикета
// бронь остаётся CREATED.
func (l *Ledger) CheckIn(id string, now time.Time) (domain.Reservation, domain.Ticket, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var opened domain.Ticket
	reservation, err := l.reservations.Update(id, func(r *domain.Reservation) error {
		switch r.Status {
		case domain.ReservationStatusCreated:
		case domain.ReservationStatusActive:
			// Повторный заезд по уже активированной брони: возвращаем
			// существующий тикет без мутации.
			existing, err := l.tickets.Get(r.TicketID)
			if err != nil {
				return err
			}
			opened = existing
			return nil
		default:
			return domain.ErrReservationExpired
		}

		if now.Before(r.StartAt.Add(-l.cfg.Grace)) {
			return domain.ErrCheckInTooEarly
		}
		if !now.Before(r.StartAt.Add(l.cfg.Grace)) {
			return domain.ErrReservationExpired
		}

		created, fresh, err := l.tickets.Create(ticket.CreateRequest{
			UserID:             r.UserID,
			UserEmail:          r.UserEmail,
			Plate:              r.Plate,
			SpotID:             r.SpotID,
			LevelID:            r.LevelID,
			EntryAt:            now,
			OccupySpot:         true,
			AllowReservationID: r.ID,
		})
		if err != nil {
			return err
		}
		if !fresh && created.SpotID != r.SpotID {
			return fmt.Errorf("%w: plate %s, ticket %s", domain.ErrVehicleParked, r.Plate, created.ID)
		}

		r.Status = domain.ReservationStatusActive
		r.TicketID = created.ID
		opened = created
		return nil
	})
	if err != nil {
		return domain.Reservation{}, domain.Ticket{}, err
	}

	l.logger.WithFields(log.Fields{
		"reservation_id": reservation.ID,
		"ticket_id":      opened.ID,
		"spot_id":        reservation.SpotID,
	}).Info("reservation check-in completed")

	return reservation, opened, nil
}

// Cancel отменяет бронь. Разрешено только из CREATED и только до начала окна.
func (l *Ledger) Cancel(id string, now time.Time) (domain.Reservation, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	reservation, err := l.reservations.Update(id, func(r *domain.Reservation) error {
		if !r.CanCancel(now) {
			return domain.ErrCannotCancel
		}
		r.Status = domain.ReservationStatusCancelled
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	l.logger.WithField("reservation_id", reservation.ID).Info("reservation cancelled")
	return reservation, nil
}

// Get возвращает бронь по идентификатору.
func (l *Ledger) Get(id string) (domain.Reservation, error) {
	return l.reservations.Get(id)
}

// FindBlocking возвращает действующую бронь, удерживающую место в момент at.
func (l *Ledger) FindBlocking(spotID string, at time.Time) (domain.Reservation, error) {
	return l.reservations.FindBlocking(spotID, at)
}

// ListByUser возвращает брони пользователя.
func (l *Ledger) ListByUser(userEmail string) ([]domain.Reservation, error) {
	return l.reservations.ListByUser(userEmail)
}

// ListAll возвращает все брони.
func (l *Ledger) ListAll() ([]domain.Reservation, error) {
	return l.reservations.ListAll()
}

// Slot — один шаг сетки бронирования в пределах рабочего дня.
type Slot struct {
	StartAt   time.Time
	EndAt     time.Time
	Available bool
}

// DaySlots возвращает сетку слотов места на календарный день (UTC).
// Слот недоступен, если его пересекает действующая бронь или он уже в прошлом.
func (l *Ledger) DaySlots(spotID string, day, now time.Time) ([]Slot, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if _, err := l.parking.GetSpot(spotID); err != nil {
		return nil, err
	}

	openAt := time.Date(day.Year(), day.Month(), day.Day(), l.cfg.OpenHour, 0, 0, 0, time.UTC)
	closeAt := time.Date(day.Year(), day.Month(), day.Day(), l.cfg.CloseHour, 0, 0, 0, time.UTC)

	reservations, err := l.reservations.ListForSpotBetween(spotID, openAt, closeAt)
	if err != nil {
		return nil, err
	}

	var slots []Slot
	for start := openAt; start.Before(closeAt); start = start.Add(l.cfg.SlotStep) {
		end := start.Add(l.cfg.SlotStep)
		available := start.After(now)
		for i := range reservations {
			r := &reservations[i]
			if r.Blocking() && r.Overlaps(start, end) {
				available = false
				break
			}
		}
		slots = append(slots, Slot{StartAt: start, EndAt: end, Available: available})
	}

	return slots, nil
}

// validateWindow проверяет окно брони против правил Config.
// Все нарушения заворачиваются в ErrInvalidWindow.
func (l *Ledger) validateWindow(now, start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end are required", domain.ErrInvalidWindow)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start must be before end", domain.ErrInvalidWindow)
	}
	if !start.After(now) {
		return fmt.Errorf("%w: start must be in the future", domain.ErrInvalidWindow)
	}
	if start.Sub(now) > l.cfg.MaxAdvance {
		return fmt.Errorf("%w: start is more than %s ahead", domain.ErrInvalidWindow, l.cfg.MaxAdvance)
	}

	duration := end.Sub(start)
	if duration < l.cfg.MinDuration {
		return fmt.Errorf("%w: duration is shorter than %s", domain.ErrInvalidWindow, l.cfg.MinDuration)
	}
	if duration > l.cfg.MaxDuration {
		return fmt.Errorf("%w: duration is longer than %s", domain.ErrInvalidWindow, l.cfg.MaxDuration)
	}

	if !aligned(start, l.cfg.SlotStep) || !aligned(end, l.cfg.SlotStep) {
		return fmt.Errorf("%w: boundaries must align to %s", domain.ErrInvalidWindow, l.cfg.SlotStep)
	}

	su := start.UTC()
	eu := end.UTC()
	if su.Year() != eu.Year() || su.YearDay() != eu.YearDay() {
		return fmt.Errorf("%w: window must stay within one day", domain.ErrInvalidWindow)
	}
	openMin := l.cfg.OpenHour * 60
	closeMin := l.cfg.CloseHour * 60
	if su.Hour()*60+su.Minute() < openMin || eu.Hour()*60+eu.Minute() > closeMin {
		return fmt.Errorf("%w: facility is open %02d:00-%02d:00", domain.ErrInvalidWindow, l.cfg.OpenHour, l.cfg.CloseHour)
	}

	return nil
}

func aligned(t time.Time, step time.Duration) bool {
	if t.Nanosecond() != 0 || t.Second() != 0 {
		return false
	}
	stepMin := int(step / time.Minute)
	if stepMin <= 0 {
		return true
	}
	return t.Minute()%stepMin == 0
}
