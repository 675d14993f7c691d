package reservation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pms/internal/domain"
	"github.com/vladislavdragonenkov/pms/internal/service/ticket"
	"github.com/vladislavdragonenkov/pms/internal/storage/memory"
)

type fixture struct {
	ledger  *Ledger
	tickets *ticket.Service
	parking domain.ParkingRepository
	repo    domain.ReservationRepository
	spots   []domain.Spot
	// now — 08:00 UTC того же дня, на который делаются брони.
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	parking := memory.NewParkingRepository()
	reservations := memory.NewReservationRepository()
	ticketRepo := memory.NewTicketRepository()
	tickets := ticket.NewService(ticketRepo, reservations, parking, nil)

	now := time.Date(2026, 5, 14, 8, 0, 0, 0, time.UTC)
	level := domain.Level{ID: uuid.NewString(), Label: "Ground", TotalSpots: 2, CreatedAt: now}
	spots := []domain.Spot{
		{ID: uuid.NewString(), LevelID: level.ID, Code: "A1", Type: domain.SpotTypeCar, State: domain.SpotStateAvailable, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewString(), LevelID: level.ID, Code: "A2", Type: domain.SpotTypeCar, State: domain.SpotStateAvailable, CreatedAt: now, UpdatedAt: now},
	}
	if err := parking.CreateWithSpots(level, spots); err != nil {
		t.Fatalf("seed level: %v", err)
	}

	return &fixture{
		ledger:  NewLedger(reservations, parking, tickets, DefaultConfig(), nil),
		tickets: tickets,
		parking: parking,
		repo:    reservations,
		spots:   spots,
		now:     now,
	}
}

// request возвращает валидный запрос на бронь 10:00-12:00 того же дня.
func (f *fixture) request(spotIdx int) CreateRequest {
	day := f.now
	return CreateRequest{
		UserID:    "user-1",
		UserEmail: "user@example.com",
		Plate:     "KA01AB1234",
		SpotID:    f.spots[spotIdx].ID,
		StartAt:   time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, time.UTC),
		EndAt:     time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC),
		Now:       f.now,
	}
}

func TestCreate_Succeeds(t *testing.T) {
	f := newFixture(t)

	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Status != domain.ReservationStatusCreated {
		t.Fatalf("status = %s, want CREATED", res.Status)
	}
	if res.LevelID != f.spots[0].LevelID {
		t.Fatalf("level id = %q, want %q", res.LevelID, f.spots[0].LevelID)
	}
}

func TestCreate_WindowValidation(t *testing.T) {
	f := newFixture(t)
	day := f.now

	at := func(h, m int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.UTC)
	}

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
	}{
		{"inverted", at(12, 0), at(10, 0)},
		{"start in the past", at(7, 0), at(9, 0)},
		{"start equals now", f.now, at(10, 0)},
		{"too far ahead", at(10, 0).Add(4 * 24 * time.Hour), at(12, 0).Add(4 * 24 * time.Hour)},
		{"shorter than minimum", at(10, 0), at(10, 15)},
		{"longer than maximum", at(10, 0), at(14, 30)},
		{"misaligned start", at(10, 15), at(11, 15)},
		{"before opening", at(5, 0), at(6, 0)},
		{"past closing", at(21, 0), at(22, 30)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.request(0)
			req.StartAt = tc.start
			req.EndAt = tc.end
			if _, err := f.ledger.Create(req); !errors.Is(err, domain.ErrInvalidWindow) {
				t.Fatalf("err = %v, want ErrInvalidWindow", err)
			}
		})
	}
}

func TestCreate_ClosingBoundaryAllowed(t *testing.T) {
	f := newFixture(t)

	req := f.request(0)
	req.StartAt = time.Date(f.now.Year(), f.now.Month(), f.now.Day(), 21, 0, 0, 0, time.UTC)
	req.EndAt = time.Date(f.now.Year(), f.now.Month(), f.now.Day(), 22, 0, 0, 0, time.UTC)

	if _, err := f.ledger.Create(req); err != nil {
		t.Fatalf("window ending exactly at closing must be accepted: %v", err)
	}
}

func TestCreate_SpotConflict(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ledger.Create(f.request(0)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	req := f.request(0)
	req.Plate = "KA02CD5678"
	// Частичное пересечение окна того же места.
	req.StartAt = req.StartAt.Add(time.Hour)
	req.EndAt = req.EndAt.Add(time.Hour)
	if _, err := f.ledger.Create(req); !errors.Is(err, domain.ErrSpotReserved) {
		t.Fatalf("err = %v, want ErrSpotReserved", err)
	}
}

func TestCreate_AdjacentWindowsCompatible(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ledger.Create(f.request(0)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Полуоткрытые окна: бронь до 12:00 и бронь с 12:00 не конфликтуют.
	req := f.request(0)
	req.Plate = "KA02CD5678"
	req.StartAt = req.EndAt
	req.EndAt = req.EndAt.Add(time.Hour)
	if _, err := f.ledger.Create(req); err != nil {
		t.Fatalf("adjacent window: %v", err)
	}
}

func TestCreate_VehicleConflict(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ledger.Create(f.request(0)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Тот же номер на другом месте в пересекающемся окне.
	req := f.request(1)
	if _, err := f.ledger.Create(req); !errors.Is(err, domain.ErrVehicleReserved) {
		t.Fatalf("err = %v, want ErrVehicleReserved", err)
	}
}

func TestCreate_DisabledSpotRejected(t *testing.T) {
	f := newFixture(t)

	if _, err := f.parking.UpdateSpot(f.spots[0].ID, func(s *domain.Spot) error {
		return s.Disable()
	}); err != nil {
		t.Fatalf("disable spot: %v", err)
	}

	if _, err := f.ledger.Create(f.request(0)); !errors.Is(err, domain.ErrSpotOutOfService) {
		t.Fatalf("err = %v, want ErrSpotOutOfService", err)
	}
}

func TestCheckIn_GraceWindowBoundaries(t *testing.T) {
	day := time.Date(2026, 5, 14, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, time.UTC)
	}

	cases := []struct {
		name    string
		now     time.Time
		wantErr error
	}{
		{"one minute before window", at(9, 49), domain.ErrCheckInTooEarly},
		{"window opens", at(9, 50), nil},
		{"just before start", at(9, 59), nil},
		{"last minute of window", at(10, 9), nil},
		{"window closes", at(10, 10), domain.ErrReservationExpired},
		{"after window", at(10, 11), domain.ErrReservationExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.ledger.Create(f.request(0))
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			updated, tkt, err := f.ledger.CheckIn(res.ID, tc.now)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				stored, getErr := f.ledger.Get(res.ID)
				if getErr != nil {
					t.Fatalf("get: %v", getErr)
				}
				if stored.Status != domain.ReservationStatusCreated {
					t.Fatalf("status after failed check-in = %s, want CREATED", stored.Status)
				}
				return
			}

			if err != nil {
				t.Fatalf("check-in: %v", err)
			}
			if updated.Status != domain.ReservationStatusActive {
				t.Fatalf("status = %s, want ACTIVE", updated.Status)
			}
			if updated.TicketID != tkt.ID {
				t.Fatalf("ticket id mismatch: %q vs %q", updated.TicketID, tkt.ID)
			}
			spot, err := f.parking.GetSpot(res.SpotID)
			if err != nil {
				t.Fatalf("get spot: %v", err)
			}
			if spot.State != domain.SpotStateOccupied {
				t.Fatalf("spot state = %s, want OCCUPIED", spot.State)
			}
		})
	}
}

func TestCheckIn_Repeated_ReturnsSameTicket(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	checkInAt := res.StartAt.Add(-5 * time.Minute)
	_, first, err := f.ledger.CheckIn(res.ID, checkInAt)
	if err != nil {
		t.Fatalf("first check-in: %v", err)
	}

	_, second, err := f.ledger.CheckIn(res.ID, checkInAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("repeated check-in: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeated check-in opened a new ticket: %q vs %q", second.ID, first.ID)
	}
}

func TestCheckIn_OccupiedSpot_LeavesReservationCreated(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Место занято посторонней машиной к моменту заезда.
	if _, err := f.parking.UpdateSpot(res.SpotID, func(s *domain.Spot) error {
		return s.Occupy()
	}); err != nil {
		t.Fatalf("occupy spot: %v", err)
	}

	if _, _, err := f.ledger.CheckIn(res.ID, res.StartAt); !errors.Is(err, domain.ErrSpotOccupied) {
		t.Fatalf("err = %v, want ErrSpotOccupied", err)
	}

	stored, err := f.ledger.Get(res.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.ReservationStatusCreated {
		t.Fatalf("status = %s, want CREATED", stored.Status)
	}
}

func TestCheckIn_ExpiredReservation(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sweeper := NewSweeper(f.repo, f.ledger.Config().Grace)
	if _, err := sweeper.Sweep(context.Background(), res.StartAt.Add(time.Hour)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, _, err := f.ledger.CheckIn(res.ID, res.StartAt); !errors.Is(err, domain.ErrReservationExpired) {
		t.Fatalf("err = %v, want ErrReservationExpired", err)
	}
}

func TestCheckIn_VehicleAlreadyParkedElsewhere(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Та же машина заезжает walk-up на другое место до начала брони.
	if _, _, err := f.tickets.Create(ticket.CreateRequest{
		UserID:     "user-1",
		UserEmail:  "user@example.com",
		Plate:      res.Plate,
		SpotID:     f.spots[1].ID,
		LevelID:    f.spots[1].LevelID,
		EntryAt:    f.now,
		OccupySpot: true,
	}); err != nil {
		t.Fatalf("walk-up entry: %v", err)
	}

	if _, _, err := f.ledger.CheckIn(res.ID, res.StartAt); !errors.Is(err, domain.ErrVehicleParked) {
		t.Fatalf("err = %v, want ErrVehicleParked", err)
	}
}

func TestCancel_BeforeStart(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := f.ledger.Cancel(res.ID, f.now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.ReservationStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", cancelled.Status)
	}

	// Отменённая бронь освобождает окно для других.
	req := f.request(0)
	req.Plate = "KA02CD5678"
	if _, err := f.ledger.Create(req); err != nil {
		t.Fatalf("create after cancel: %v", err)
	}
}

func TestCancel_AfterStart(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.ledger.Cancel(res.ID, res.StartAt); !errors.Is(err, domain.ErrCannotCancel) {
		t.Fatalf("err = %v, want ErrCannotCancel", err)
	}
}

func TestCancel_Twice(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.ledger.Cancel(res.ID, f.now); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if _, err := f.ledger.Cancel(res.ID, f.now); !errors.Is(err, domain.ErrCannotCancel) {
		t.Fatalf("err = %v, want ErrCannotCancel", err)
	}
}

func TestDaySlots(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	slots, err := f.ledger.DaySlots(res.SpotID, f.now, f.now)
	if err != nil {
		t.Fatalf("day slots: %v", err)
	}

	cfg := f.ledger.Config()
	wantSlots := (cfg.CloseHour - cfg.OpenHour) * int(time.Hour/cfg.SlotStep)
	if len(slots) != wantSlots {
		t.Fatalf("len(slots) = %d, want %d", len(slots), wantSlots)
	}

	for _, slot := range slots {
		booked := slot.StartAt.Before(res.EndAt) && slot.EndAt.After(res.StartAt)
		past := !slot.StartAt.After(f.now)
		wantAvailable := !booked && !past
		if slot.Available != wantAvailable {
			t.Fatalf("slot %s available = %v, want %v", slot.StartAt.Format("15:04"), slot.Available, wantAvailable)
		}
	}
}

func TestSweep_Idempotent(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Вторая бронь активирована заездом и под sweep не попадает.
	second := f.request(1)
	second.Plate = "KA02CD5678"
	active, err := f.ledger.Create(second)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, _, err := f.ledger.CheckIn(active.ID, active.StartAt); err != nil {
		t.Fatalf("check-in second: %v", err)
	}

	sweeper := NewSweeper(f.repo, f.ledger.Config().Grace)
	after := res.StartAt.Add(30 * time.Minute)

	expired, err := sweeper.Sweep(context.Background(), after)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	again, err := sweeper.Sweep(context.Background(), after)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != 0 {
		t.Fatalf("second sweep expired = %d, want 0", again)
	}

	stored, err := f.ledger.Get(res.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != domain.ReservationStatusExpired {
		t.Fatalf("status = %s, want EXPIRED", stored.Status)
	}
}

func TestSweep_KeepsReservationInsideGrace(t *testing.T) {
	f := newFixture(t)
	res, err := f.ledger.Create(f.request(0))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sweeper := NewSweeper(f.repo, f.ledger.Config().Grace)

	// 10:09 — grace-окно ещё открыто, бронь не трогаем.
	expired, err := sweeper.Sweep(context.Background(), res.StartAt.Add(9*time.Minute))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if expired != 0 {
		t.Fatalf("expired = %d, want 0", expired)
	}

	if _, _, err := f.ledger.CheckIn(res.ID, res.StartAt.Add(9*time.Minute)); err != nil {
		t.Fatalf("check-in after sweep: %v", err)
	}
}
