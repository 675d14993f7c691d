package postgres

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

func TestParkingRepository_PostgresCreateAndAllocate(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewParkingRepository(store)

	level, _ := seedLevelWithSpots(t, repo, "A10", "A2", "B1")

	spots, err := repo.ListSpots(level.ID)
	if err != nil {
		t.Fatalf("list spots: %v", err)
	}
	if len(spots) != 3 || spots[0].Code != "A2" || spots[1].Code != "A10" || spots[2].Code != "B1" {
		t.Fatalf("unexpected spot order: %+v", spots)
	}

	spot, err := repo.AllocateInLevel(level.ID, false)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if spot.Code != "A2" || spot.State != domain.SpotStateOccupied {
		t.Fatalf("expected A2 occupied, got %+v", spot)
	}

	if err := repo.CreateWithSpots(domain.Level{ID: "dup", Label: level.Label}, nil); !errors.Is(err, domain.ErrDuplicateLevel) {
		t.Fatalf("duplicate label: got %v, want ErrDuplicateLevel", err)
	}
}

func TestParkingRepository_PostgresConcurrentAllocateDistinct(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewParkingRepository(store)

	codes := make([]string, 0, 8)
	for _, c := range []string{"A1", "A2", "A3", "A4", "A5", "A6", "A7", "A8"} {
		codes = append(codes, c)
	}
	level, _ := seedLevelWithSpots(t, repo, codes...)

	var (
		mu        sync.Mutex
		allocated = make(map[string]struct{})
		wg        sync.WaitGroup
	)
	for i := 0; i < len(codes); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			spot, err := repo.AllocateInLevel(level.ID, false)
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			mu.Lock()
			allocated[spot.ID] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(allocated) != len(codes) {
		t.Fatalf("expected %d distinct spots, got %d", len(codes), len(allocated))
	}

	if _, err := repo.AllocateInLevel(level.ID, false); !errors.Is(err, domain.ErrNoSpotsAvailable) {
		t.Fatalf("exhausted level: got %v, want ErrNoSpotsAvailable", err)
	}
}

func TestParkingRepository_PostgresUpdateSpotRollsBackOnError(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewParkingRepository(store)

	_, spots := seedLevelWithSpots(t, repo, "A1")

	if _, err := repo.UpdateSpot(spots[0].ID, func(s *domain.Spot) error {
		s.State = domain.SpotStateOccupied
		return domain.ErrSpotBusy
	}); !errors.Is(err, domain.ErrSpotBusy) {
		t.Fatalf("update: got %v, want ErrSpotBusy", err)
	}

	got, err := repo.GetSpot(spots[0].ID)
	if err != nil {
		t.Fatalf("get spot: %v", err)
	}
	if got.State != domain.SpotStateAvailable {
		t.Fatalf("fn error must not persist: %+v", got)
	}
}
