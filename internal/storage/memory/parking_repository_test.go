package memory

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

func seedLevel(t *testing.T, repo *ParkingRepository, spotCount int, accessible bool) []domain.Spot {
	t.Helper()

	now := time.Now().UTC()
	level := domain.Level{ID: "level-1", Label: "Ground", TotalSpots: spotCount, CreatedAt: now}

	spots := make([]domain.Spot, 0, spotCount)
	for i := 1; i <= spotCount; i++ {
		spots = append(spots, domain.Spot{
			ID:         fmt.Sprintf("spot-%d", i),
			LevelID:    level.ID,
			Code:       fmt.Sprintf("A%d", i),
			Type:       domain.SpotTypeCar,
			Accessible: accessible,
			State:      domain.SpotStateAvailable,
			CreatedAt:  now,
		})
	}

	if err := repo.CreateWithSpots(level, spots); err != nil {
		t.Fatalf("create level: %v", err)
	}
	return spots
}

func TestCreateWithSpots_DuplicateLevel(t *testing.T) {
	repo := NewParkingRepository()
	seedLevel(t, repo, 2, false)

	err := repo.CreateWithSpots(domain.Level{ID: "level-2", Label: "ground"}, nil)
	if !errors.Is(err, domain.ErrDuplicateLevel) {
		t.Fatalf("got %v, want ErrDuplicateLevel", err)
	}
}

func TestCreateWithSpots_DuplicateCodeIsAtomic(t *testing.T) {
	repo := NewParkingRepository()

	err := repo.CreateWithSpots(domain.Level{ID: "level-1", Label: "Ground"}, []domain.Spot{
		{ID: "s1", LevelID: "level-1", Code: "A1"},
		{ID: "s2", LevelID: "level-1", Code: "a1"},
	})
	if !errors.Is(err, domain.ErrDuplicateSpot) {
		t.Fatalf("got %v, want ErrDuplicateSpot", err)
	}

	// Уровень не должен быть создан частично.
	if _, err := repo.GetLevel("level-1"); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Fatalf("level must not exist after failed create, got %v", err)
	}
	if _, err := repo.GetSpot("s1"); !errors.Is(err, domain.ErrSpotNotFound) {
		t.Fatalf("spot must not exist after failed create, got %v", err)
	}
}

func TestAllocateInLevel_LowestCodeFirst(t *testing.T) {
	repo := NewParkingRepository()
	now := time.Now().UTC()
	level := domain.Level{ID: "level-1", Label: "Ground", TotalSpots: 3, CreatedAt: now}
	spots := []domain.Spot{
		{ID: "s10", LevelID: "level-1", Code: "A10", State: domain.SpotStateAvailable, Type: domain.SpotTypeCar},
		{ID: "s2", LevelID: "level-1", Code: "A2", State: domain.SpotStateAvailable, Type: domain.SpotTypeCar},
		{ID: "s1", LevelID: "level-1", Code: "A1", State: domain.SpotStateDisabled, Type: domain.SpotTypeCar},
	}
	if err := repo.CreateWithSpots(level, spots); err != nil {
		t.Fatalf("create level: %v", err)
	}

	// A1 выведено из эксплуатации, поэтому первым должен уйти A2, не A10.
	got, err := repo.AllocateInLevel("level-1", false)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if got.Code != "A2" {
		t.Fatalf("allocated %s, want A2 (natural code order)", got.Code)
	}
}

func TestAllocateInLevel_AccessibleFilter(t *testing.T) {
	repo := NewParkingRepository()
	now := time.Now().UTC()
	level := domain.Level{ID: "level-1", Label: "Ground", TotalSpots: 2, CreatedAt: now}
	spots := []domain.Spot{
		{ID: "s1", LevelID: "level-1", Code: "A1", State: domain.SpotStateAvailable, Type: domain.SpotTypeCar},
		{ID: "s2", LevelID: "level-1", Code: "A2", State: domain.SpotStateAvailable, Type: domain.SpotTypeHandicapped, Accessible: true},
	}
	if err := repo.CreateWithSpots(level, spots); err != nil {
		t.Fatalf("create level: %v", err)
	}

	got, err := repo.AllocateInLevel("level-1", true)
	if err != nil {
		t.Fatalf("allocate accessible: %v", err)
	}
	if got.ID != "s2" {
		t.Fatalf("allocated %s, want the accessible spot s2", got.ID)
	}

	if _, err := repo.AllocateInLevel("level-1", true); !errors.Is(err, domain.ErrNoSpotsAvailable) {
		t.Fatalf("second accessible allocate: got %v, want ErrNoSpotsAvailable", err)
	}
}

// N конкурентных allocate на уровне с ровно N местами обязаны вернуть
// N различных мест, а следующий вызов — ErrNoSpotsAvailable.
func TestAllocateInLevel_ConcurrentDistinct(t *testing.T) {
	const n = 32

	repo := NewParkingRepository()
	seedLevel(t, repo, n, false)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted = make(map[string]int)
		failed  int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			spot, err := repo.AllocateInLevel("level-1", false)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return
			}
			granted[spot.ID]++
		}()
	}
	wg.Wait()

	if failed != 0 {
		t.Fatalf("%d allocations failed with exactly enough spots", failed)
	}
	if len(granted) != n {
		t.Fatalf("got %d distinct spots, want %d", len(granted), n)
	}
	for id, count := range granted {
		if count != 1 {
			t.Fatalf("spot %s was granted %d times", id, count)
		}
	}

	if _, err := repo.AllocateInLevel("level-1", false); !errors.Is(err, domain.ErrNoSpotsAvailable) {
		t.Fatalf("extra allocate: got %v, want ErrNoSpotsAvailable", err)
	}
}

func TestUpdateSpot_ErrorLeavesStateUntouched(t *testing.T) {
	repo := NewParkingRepository()
	seedLevel(t, repo, 1, false)

	_, err := repo.UpdateSpot("spot-1", func(s *domain.Spot) error {
		s.State = domain.SpotStateOccupied
		return domain.ErrSpotBusy
	})
	if !errors.Is(err, domain.ErrSpotBusy) {
		t.Fatalf("update: got %v, want propagated fn error", err)
	}

	spot, err := repo.GetSpot("spot-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if spot.State != domain.SpotStateAvailable {
		t.Fatalf("failed update mutated the spot: %s", spot.State)
	}
}

// Гонка release/occupy на одном месте должна разрешаться в ровно одно
// консистентное конечное состояние.
func TestUpdateSpot_SerializedMutations(t *testing.T) {
	repo := NewParkingRepository()
	seedLevel(t, repo, 1, false)

	if _, err := repo.UpdateSpot("spot-1", func(s *domain.Spot) error { return s.Occupy() }); err != nil {
		t.Fatalf("occupy: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Ошибки конфликтов ожидаемы: важно лишь, что автомат не ломается.
			_, _ = repo.UpdateSpot("spot-1", func(s *domain.Spot) error { return s.Release() })
			_, _ = repo.UpdateSpot("spot-1", func(s *domain.Spot) error { return s.Occupy() })
		}()
	}
	wg.Wait()

	spot, err := repo.GetSpot("spot-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if spot.State != domain.SpotStateAvailable && spot.State != domain.SpotStateOccupied {
		t.Fatalf("spot ended in undefined state %q", spot.State)
	}
}
