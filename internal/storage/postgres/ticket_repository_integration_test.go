package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

func TestTicketRepository_PostgresActivePlateUnique(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	parking := NewParkingRepository(store)
	repo := NewTicketRepository(store)

	level, spots := seedLevelWithSpots(t, parking, "A1", "A2")
	now := time.Now().UTC().Round(time.Microsecond)

	first := domain.Ticket{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		UserEmail: "user@example.com",
		Plate:     "ka01ab1234",
		SpotID:    spots[0].ID,
		LevelID:   level.ID,
		EntryAt:   now,
		Status:    domain.TicketStatusActive,
	}
	if err := repo.Create(first); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	second := first
	second.ID = uuid.NewString()
	second.SpotID = spots[1].ID
	if err := repo.Create(second); !errors.Is(err, domain.ErrActiveTicketExists) {
		t.Fatalf("second active ticket for plate: got %v, want ErrActiveTicketExists", err)
	}

	got, err := repo.FindActiveByPlate("KA01AB1234")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("got ticket %s, want %s", got.ID, first.ID)
	}
}

func TestTicketRepository_PostgresCloseOnce(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	parking := NewParkingRepository(store)
	repo := NewTicketRepository(store)

	level, spots := seedLevelWithSpots(t, parking, "A1")
	now := time.Now().UTC().Round(time.Microsecond)

	ticket := domain.Ticket{
		ID:        uuid.NewString(),
		UserID:    "user-1",
		UserEmail: "user@example.com",
		Plate:     "KA01AB1234",
		SpotID:    spots[0].ID,
		LevelID:   level.ID,
		EntryAt:   now.Add(-2 * time.Hour),
		Status:    domain.TicketStatusActive,
	}
	if err := repo.Create(ticket); err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	closed, err := repo.Close(ticket.ID, now, 100)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != domain.TicketStatusClosed || closed.FeeMinor != 100 || closed.ExitAt.IsZero() {
		t.Fatalf("close did not persist fields: %+v", closed)
	}

	if _, err := repo.Close(ticket.ID, now, 999); !errors.Is(err, domain.ErrTicketClosed) {
		t.Fatalf("second close: got %v, want ErrTicketClosed", err)
	}
	if _, err := repo.Close(uuid.NewString(), now, 1); !errors.Is(err, domain.ErrTicketNotFound) {
		t.Fatalf("close unknown: got %v, want ErrTicketNotFound", err)
	}

	// Закрытый тикет освобождает номер для нового заезда.
	next := ticket
	next.ID = uuid.NewString()
	next.EntryAt = now
	if err := repo.Create(next); err != nil {
		t.Fatalf("create after close: %v", err)
	}
}
