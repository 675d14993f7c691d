package ticket

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pms/internal/domain"
	"github.com/vladislavdragonenkov/pms/internal/storage/memory"
)

type fixture struct {
	svc          *Service
	parking      domain.ParkingRepository
	reservations domain.ReservationRepository
	level        domain.Level
	spots        []domain.Spot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	parking := memory.NewParkingRepository()
	reservations := memory.NewReservationRepository()
	tickets := memory.NewTicketRepository()

	now := time.Now().UTC()
	level := domain.Level{ID: uuid.NewString(), Label: "Ground", TotalSpots: 2, CreatedAt: now}
	spots := []domain.Spot{
		{ID: uuid.NewString(), LevelID: level.ID, Code: "A1", Type: domain.SpotTypeCar, State: domain.SpotStateAvailable, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.NewString(), LevelID: level.ID, Code: "A2", Type: domain.SpotTypeCar, State: domain.SpotStateAvailable, CreatedAt: now, UpdatedAt: now},
	}
	if err := parking.CreateWithSpots(level, spots); err != nil {
		t.Fatalf("seed level: %v", err)
	}

	return &fixture{
		svc:          NewService(tickets, reservations, parking, nil),
		parking:      parking,
		reservations: reservations,
		level:        level,
		spots:        spots,
	}
}

func (f *fixture) request(spotIdx int) CreateRequest {
	return CreateRequest{
		UserID:    "user-1",
		UserEmail: "user@example.com",
		Plate:     "KA01AB1234",
		SpotID:    f.spots[spotIdx].ID,
		LevelID:   f.level.ID,
		EntryAt:   time.Now().UTC(),
	}
}

func TestCreate_OccupiesSpotWhenRequested(t *testing.T) {
	f := newFixture(t)

	req := f.request(0)
	req.OccupySpot = true

	ticket, created, err := f.svc.Create(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created || ticket.Status != domain.TicketStatusActive {
		t.Fatalf("unexpected result: created=%v ticket=%+v", created, ticket)
	}

	spot, err := f.parking.GetSpot(req.SpotID)
	if err != nil {
		t.Fatalf("get spot: %v", err)
	}
	if spot.State != domain.SpotStateOccupied {
		t.Fatalf("spot must be occupied, got %s", spot.State)
	}
}

func TestCreate_IdempotentByPlate(t *testing.T) {
	f := newFixture(t)

	req := f.request(0)
	req.OccupySpot = true
	first, _, err := f.svc.Create(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Повторный заезд того же номера на другое место возвращает открытую сессию.
	second := f.request(1)
	second.OccupySpot = true
	ticket, created, err := f.svc.Create(second)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created || ticket.ID != first.ID {
		t.Fatalf("expected existing ticket %s, got created=%v %s", first.ID, created, ticket.ID)
	}

	// Второе место осталось свободным.
	spot, err := f.parking.GetSpot(second.SpotID)
	if err != nil {
		t.Fatalf("get spot: %v", err)
	}
	if spot.State != domain.SpotStateAvailable {
		t.Fatalf("idempotent hit must not occupy another spot: %s", spot.State)
	}
}

func TestCreate_BlockedByForeignReservation(t *testing.T) {
	f := newFixture(t)

	now := time.Now().UTC()
	reservation := domain.Reservation{
		ID:      uuid.NewString(),
		UserID:  "user-2",
		Plate:   "MH02CD5678",
		SpotID:  f.spots[0].ID,
		LevelID: f.level.ID,
		StartAt: now.Add(-10 * time.Minute),
		EndAt:   now.Add(50 * time.Minute),
		Status:  domain.ReservationStatusCreated,
	}
	if err := f.reservations.Create(reservation); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	req := f.request(0)
	req.OccupySpot = true
	if _, _, err := f.svc.Create(req); !errors.Is(err, domain.ErrSpotReservedByOther) {
		t.Fatalf("got %v, want ErrSpotReservedByOther", err)
	}

	spot, err := f.parking.GetSpot(req.SpotID)
	if err != nil {
		t.Fatalf("get spot: %v", err)
	}
	if spot.State != domain.SpotStateAvailable {
		t.Fatalf("rejected entry must not occupy the spot: %s", spot.State)
	}

	// Собственная бронь не блокирует заезд.
	req.AllowReservationID = reservation.ID
	if _, _, err := f.svc.Create(req); err != nil {
		t.Fatalf("own reservation must not block: %v", err)
	}
}

func TestCreate_OccupiedSpotRejectsCheckIn(t *testing.T) {
	f := newFixture(t)

	if _, err := f.parking.UpdateSpot(f.spots[0].ID, func(s *domain.Spot) error {
		return s.Occupy()
	}); err != nil {
		t.Fatalf("occupy spot: %v", err)
	}

	req := f.request(0)
	req.OccupySpot = true
	if _, _, err := f.svc.Create(req); !errors.Is(err, domain.ErrSpotOccupied) {
		t.Fatalf("got %v, want ErrSpotOccupied", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)

	req := f.request(0)
	req.Plate = ""
	if _, _, err := f.svc.Create(req); !errors.Is(err, domain.ErrPlateRequired) {
		t.Fatalf("got %v, want ErrPlateRequired", err)
	}
}

func TestClose_Single(t *testing.T) {
	f := newFixture(t)

	req := f.request(0)
	req.OccupySpot = true
	ticket, _, err := f.svc.Create(req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	exit := ticket.EntryAt.Add(90 * time.Minute)
	closed, err := f.svc.Close(ticket.ID, exit, 50)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed.Closed() || closed.FeeMinor != 50 {
		t.Fatalf("unexpected closed ticket: %+v", closed)
	}
	if _, err := f.svc.Close(ticket.ID, exit, 999); !errors.Is(err, domain.ErrTicketClosed) {
		t.Fatalf("second close: got %v, want ErrTicketClosed", err)
	}
}
