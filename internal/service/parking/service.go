package parking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// Service реализует учёт уровней и парковочных мест.
type Service struct {
	repo   domain.ParkingRepository
	logger *log.Entry
}

// NewService создаёт сервис поверх репозитория уровней и мест.
func NewService(repo domain.ParkingRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "parking")
	}
	return &Service{repo: repo, logger: logger}
}

// CreateLevelInput — запрос на создание уровня.
// Типизированное распределение мест должно сходиться с TotalSpots;
// нулевое распределение означает "все места легковые".
type CreateLevelInput struct {
	Label            string
	TotalSpots       int
	CarSpots         int
	BikeSpots        int
	EVSpots          int
	HandicappedSpots int
}

// CreateLevel атомарно создаёт уровень вместе с местами.
// Коды мест генерируются рядами по 26: A1..A26, B1..
func (s *Service) CreateLevel(input CreateLevelInput) (domain.Level, []domain.Spot, error) {
	if input.Label == "" {
		return domain.Level{}, nil, domain.ErrLevelLabelRequired
	}
	if input.TotalSpots <= 0 {
		return domain.Level{}, nil, fmt.Errorf("%w: total spots must be positive", domain.ErrSpotDistribution)
	}

	typed := input.CarSpots + input.BikeSpots + input.EVSpots + input.HandicappedSpots
	if typed == 0 {
		input.CarSpots = input.TotalSpots
	} else if typed != input.TotalSpots {
		return domain.Level{}, nil, fmt.Errorf("%w: typed counts %d do not match total %d",
			domain.ErrSpotDistribution, typed, input.TotalSpots)
	}

	now := time.Now().UTC()
	level := domain.Level{
		ID:         uuid.NewString(),
		Label:      input.Label,
		TotalSpots: input.TotalSpots,
		CreatedAt:  now,
	}

	spots := make([]domain.Spot, 0, input.TotalSpots)
	appendSpots := func(count int, spotType domain.SpotType, accessible bool) {
		for i := 0; i < count; i++ {
			idx := len(spots)
			spots = append(spots, domain.Spot{
				ID:         uuid.NewString(),
				LevelID:    level.ID,
				Code:       spotCode(idx),
				Type:       spotType,
				Accessible: accessible,
				State:      domain.SpotStateAvailable,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}
	appendSpots(input.CarSpots, domain.SpotTypeCar, false)
	appendSpots(input.BikeSpots, domain.SpotTypeBike, false)
	appendSpots(input.EVSpots, domain.SpotTypeEV, false)
	appendSpots(input.HandicappedSpots, domain.SpotTypeHandicapped, true)

	if err := s.repo.CreateWithSpots(level, spots); err != nil {
		return domain.Level{}, nil, err
	}

	s.logger.WithFields(log.Fields{
		"level_id": level.ID,
		"label":    level.Label,
		"spots":    len(spots),
	}).Info("parking level created")

	return level, spots, nil
}

// Allocate выбирает и занимает свободное место с минимальным кодом.
func (s *Service) Allocate(levelID string, accessible bool) (domain.Spot, error) {
	spot, err := s.repo.AllocateInLevel(levelID, accessible)
	if err != nil {
		return domain.Spot{}, err
	}

	s.logger.WithFields(log.Fields{
		"level_id": levelID,
		"spot_id":  spot.ID,
		"code":     spot.Code,
	}).Debug("spot allocated")

	return spot, nil
}

// Occupy занимает конкретное место.
func (s *Service) Occupy(spotID string) (domain.Spot, error) {
	return s.repo.UpdateSpot(spotID, func(spot *domain.Spot) error {
		return spot.Occupy()
	})
}

// Release освобождает занятое место.
func (s *Service) Release(spotID string) (domain.Spot, error) {
	return s.repo.UpdateSpot(spotID, func(spot *domain.Spot) error {
		return spot.Release()
	})
}

// Disable выводит место из эксплуатации.
func (s *Service) Disable(spotID string) (domain.Spot, error) {
	return s.repo.UpdateSpot(spotID, func(spot *domain.Spot) error {
		return spot.Disable()
	})
}

// Enable возвращает место в эксплуатацию.
func (s *Service) Enable(spotID string) (domain.Spot, error) {
	return s.repo.UpdateSpot(spotID, func(spot *domain.Spot) error {
		spot.Enable()
		return nil
	})
}

// GetSpot возвращает снимок места.
func (s *Service) GetSpot(spotID string) (domain.Spot, error) {
	return s.repo.GetSpot(spotID)
}

// Levels возвращает все уровни.
func (s *Service) Levels() ([]domain.Level, error) {
	return s.repo.ListLevels()
}

// Spots возвращает места уровня в порядке кодов.
func (s *Service) Spots(levelID string) ([]domain.Spot, error) {
	return s.repo.ListSpots(levelID)
}

// LevelStats пересчитывает статистику уровня из состояний мест.
func (s *Service) LevelStats(levelID string) (domain.LevelStats, error) {
	level, err := s.repo.GetLevel(levelID)
	if err != nil {
		return domain.LevelStats{}, err
	}
	spots, err := s.repo.ListSpots(levelID)
	if err != nil {
		return domain.LevelStats{}, err
	}
	return computeLevelStats(level, spots), nil
}

// Stats агрегирует статистику по всем уровням.
func (s *Service) Stats() (domain.ParkingStats, error) {
	levels, err := s.repo.ListLevels()
	if err != nil {
		return domain.ParkingStats{}, err
	}

	stats := domain.ParkingStats{TotalLevels: len(levels)}
	for _, level := range levels {
		spots, err := s.repo.ListSpots(level.ID)
		if err != nil {
			return domain.ParkingStats{}, err
		}
		ls := computeLevelStats(level, spots)
		stats.Levels = append(stats.Levels, ls)
		stats.TotalSpots += ls.TotalSpots
		stats.Available += ls.Available
		stats.Occupied += ls.Occupied
		stats.Disabled += ls.Disabled
	}
	if stats.TotalSpots > 0 {
		stats.OccupancyPct = 100 * float64(stats.Occupied) / float64(stats.TotalSpots)
	}

	return stats, nil
}

func computeLevelStats(level domain.Level, spots []domain.Spot) domain.LevelStats {
	stats := domain.LevelStats{
		LevelID:    level.ID,
		Label:      level.Label,
		TotalSpots: len(spots),
	}
	for _, spot := range spots {
		switch spot.State {
		case domain.SpotStateAvailable:
			stats.Available++
		case domain.SpotStateOccupied:
			stats.Occupied++
		case domain.SpotStateDisabled:
			stats.Disabled++
		}
	}
	if stats.TotalSpots > 0 {
		stats.OccupancyPct = 100 * float64(stats.Occupied) / float64(stats.TotalSpots)
	}
	return stats
}

// spotCode генерирует код по порядковому номеру: ряды по 26 мест,
// A1..A26, затем B1..
func spotCode(index int) string {
	row := rune('A' + index/26)
	return fmt.Sprintf("%c%d", row, index%26+1)
}
