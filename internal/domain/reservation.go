package domain

import "time"

// ReservationStatus отражает статус предварительного бронирования места.
type ReservationStatus string

const (
	// ReservationStatusCreated — бронь создана и ожидает заезда.
	ReservationStatusCreated ReservationStatus = "CREATED"
	// ReservationStatusActive — по брони выполнен заезд, привязан тикет.
	ReservationStatusActive ReservationStatus = "ACTIVE"
	// ReservationStatusExpired — бронь не востребована в пределах grace-окна.
	ReservationStatusExpired ReservationStatus = "EXPIRED"
	// ReservationStatusCancelled — бронь отменена пользователем до начала.
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// Reservation — ограниченная по времени заявка на конкретное место.
// Окно [StartAt, EndAt) полуоткрытое: соприкасающиеся границы не конфликтуют.
type Reservation struct {
	ID        string
	UserID    string
	UserEmail string
	Plate     string
	SpotID    string
	LevelID   string
	StartAt   time.Time
	EndAt     time.Time
	Status    ReservationStatus
	// TicketID выставляется при заезде по брони.
	TicketID  string
	CreatedAt time.Time
}

// Blocking сообщает, удерживает ли бронь место (считаются CREATED и ACTIVE).
func (r *Reservation) Blocking() bool {
	return r.Status == ReservationStatusCreated || r.Status == ReservationStatusActive
}

// Overlaps проверяет пересечение с другим полуоткрытым окном.
func (r *Reservation) Overlaps(start, end time.Time) bool {
	return r.StartAt.Before(end) && r.EndAt.After(start)
}

// Contains сообщает, попадает ли момент at в окно брони.
func (r *Reservation) Contains(at time.Time) bool {
	return !at.Before(r.StartAt) && at.Before(r.EndAt)
}

// CanCheckIn разрешает заезд только из CREATED и только в пределах
// grace-окна вокруг начала брони: [StartAt-grace, StartAt+grace).
func (r *Reservation) CanCheckIn(now time.Time, grace time.Duration) bool {
	return r.Status == ReservationStatusCreated &&
		!now.Before(r.StartAt.Add(-grace)) &&
		now.Before(r.StartAt.Add(grace))
}

// CanCancel разрешает отмену только из CREATED и только до начала брони.
func (r *Reservation) CanCancel(now time.Time) bool {
	return r.Status == ReservationStatusCreated && now.Before(r.StartAt)
}

// NoShow сообщает, что grace-окно прошло, а заезд не состоялся.
func (r *Reservation) NoShow(now time.Time, grace time.Duration) bool {
	return r.Status == ReservationStatusCreated && !now.Before(r.StartAt.Add(grace))
}

// Validate проверяет базовые поля брони.
func (r *Reservation) Validate() []error {
	var errs []error

	if r.Plate == "" {
		errs = append(errs, ErrPlateRequired)
	}
	if r.SpotID == "" {
		errs = append(errs, ErrSpotIDRequired)
	}
	if r.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if !r.StartAt.Before(r.EndAt) {
		errs = append(errs, ErrWindowInverted)
	}

	return errs
}
