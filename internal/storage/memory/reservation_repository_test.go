package memory

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

func seedReservation(t *testing.T, repo domain.ReservationRepository, id string, start, end time.Time, status domain.ReservationStatus) {
	t.Helper()

	err := repo.Create(domain.Reservation{
		ID:        id,
		UserID:    "user-1",
		UserEmail: "user@example.com",
		Plate:     "KA01AB1234",
		SpotID:    "spot-1",
		LevelID:   "level-1",
		StartAt:   start,
		EndAt:     end,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create reservation %s: %v", id, err)
	}
}

func TestHasSpotOverlap_HalfOpen(t *testing.T) {
	repo := NewReservationRepository()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedReservation(t, repo, "res-1", base, base.Add(time.Hour), domain.ReservationStatusCreated)

	overlap, err := repo.HasSpotOverlap("spot-1", base.Add(30*time.Minute), base.Add(90*time.Minute))
	if err != nil || !overlap {
		t.Fatalf("mid-window overlap: got (%v, %v), want true", overlap, err)
	}

	// Соприкасающиеся границы полуоткрытых окон не конфликтуют.
	overlap, err = repo.HasSpotOverlap("spot-1", base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil || overlap {
		t.Fatalf("touching windows: got (%v, %v), want false", overlap, err)
	}

	// Отменённые и истёкшие брони не блокируют.
	repo2 := NewReservationRepository()
	seedReservation(t, repo2, "res-2", base, base.Add(time.Hour), domain.ReservationStatusCancelled)
	overlap, err = repo2.HasSpotOverlap("spot-1", base, base.Add(time.Hour))
	if err != nil || overlap {
		t.Fatalf("cancelled reservation must not block, got (%v, %v)", overlap, err)
	}
}

func TestHasVehicleOverlap_NormalizesPlate(t *testing.T) {
	repo := NewReservationRepository()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedReservation(t, repo, "res-1", base, base.Add(time.Hour), domain.ReservationStatusCreated)

	overlap, err := repo.HasVehicleOverlap("ka01ab1234", base.Add(15*time.Minute), base.Add(45*time.Minute))
	if err != nil || !overlap {
		t.Fatalf("case-insensitive plate overlap: got (%v, %v), want true", overlap, err)
	}
}

func TestFindBlocking(t *testing.T) {
	repo := NewReservationRepository()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedReservation(t, repo, "res-1", base, base.Add(time.Hour), domain.ReservationStatusCreated)

	got, err := repo.FindBlocking("spot-1", base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("find blocking: %v", err)
	}
	if got.ID != "res-1" {
		t.Fatalf("got reservation %s, want res-1", got.ID)
	}

	// Конец окна исключён.
	if _, err := repo.FindBlocking("spot-1", base.Add(time.Hour)); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("window end must not block, got %v", err)
	}
}

func TestExpireNoShows_Idempotent(t *testing.T) {
	repo := NewReservationRepository()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedReservation(t, repo, "res-old", base, base.Add(time.Hour), domain.ReservationStatusCreated)
	seedReservation(t, repo, "res-future", base.Add(4*time.Hour), base.Add(5*time.Hour), domain.ReservationStatusCreated)

	cutoff := base.Add(30 * time.Minute)
	expired, err := repo.ExpireNoShows(cutoff)
	if err != nil || expired != 1 {
		t.Fatalf("first sweep: got (%d, %v), want exactly 1", expired, err)
	}

	// Повторный запуск по уже истёкшим строкам — no-op.
	expired, err = repo.ExpireNoShows(cutoff)
	if err != nil || expired != 0 {
		t.Fatalf("second sweep: got (%d, %v), want 0", expired, err)
	}

	res, err := repo.Get("res-old")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if res.Status != domain.ReservationStatusExpired {
		t.Fatalf("got status %s, want EXPIRED", res.Status)
	}

	future, _ := repo.Get("res-future")
	if future.Status != domain.ReservationStatusCreated {
		t.Fatalf("future reservation must stay CREATED, got %s", future.Status)
	}
}

func TestUpdate_FnErrorKeepsStatus(t *testing.T) {
	repo := NewReservationRepository()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	seedReservation(t, repo, "res-1", base, base.Add(time.Hour), domain.ReservationStatusCreated)

	_, err := repo.Update("res-1", func(r *domain.Reservation) error {
		r.Status = domain.ReservationStatusActive
		return domain.ErrCannotCancel
	})
	if !errors.Is(err, domain.ErrCannotCancel) {
		t.Fatalf("update: got %v", err)
	}

	res, _ := repo.Get("res-1")
	if res.Status != domain.ReservationStatusCreated {
		t.Fatalf("failed update mutated the reservation: %s", res.Status)
	}
}
