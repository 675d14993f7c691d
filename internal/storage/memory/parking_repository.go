package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// spotRecord держит место вместе с его персональной блокировкой.
// Все мутации места идут строго под record.mu — аналог row-level lock.
type spotRecord struct {
	mu   sync.Mutex
	spot domain.Spot
}

// ParkingRepository — in-memory реализация domain.ParkingRepository
// для локальной разработки и тестов. Дисциплина блокировок повторяет
// постгресовую: эксклюзивный lock на запись, lock уровня на выборку кандидата.
type ParkingRepository struct {
	mu         sync.RWMutex
	levels     map[string]domain.Level
	labels     map[string]string
	spots      map[string]*spotRecord
	levelSpots map[string][]*spotRecord
	levelLocks map[string]*sync.Mutex
}

// NewParkingRepository возвращает пустой in-memory репозиторий уровней и мест.
func NewParkingRepository() *ParkingRepository {
	return &ParkingRepository{
		levels:     make(map[string]domain.Level),
		labels:     make(map[string]string),
		spots:      make(map[string]*spotRecord),
		levelSpots: make(map[string][]*spotRecord),
		levelLocks: make(map[string]*sync.Mutex),
	}
}

// CreateWithSpots атомарно создаёт уровень и его места: либо всё, либо ничего.
func (r *ParkingRepository) CreateWithSpots(level domain.Level, spots []domain.Spot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	labelKey := strings.ToUpper(strings.TrimSpace(level.Label))
	if _, exists := r.labels[labelKey]; exists {
		return domain.ErrDuplicateLevel
	}

	seen := make(map[string]struct{}, len(spots))
	for _, spot := range spots {
		codeKey := strings.ToUpper(spot.Code)
		if _, dup := seen[codeKey]; dup {
			return domain.ErrDuplicateSpot
		}
		seen[codeKey] = struct{}{}
	}

	records := make([]*spotRecord, 0, len(spots))
	for _, spot := range spots {
		records = append(records, &spotRecord{spot: spot})
	}
	sort.Slice(records, func(i, j int) bool {
		return spotCodeLess(records[i].spot.Code, records[j].spot.Code)
	})

	r.levels[level.ID] = level
	r.labels[labelKey] = level.ID
	r.levelSpots[level.ID] = records
	r.levelLocks[level.ID] = &sync.Mutex{}
	for _, rec := range records {
		r.spots[rec.spot.ID] = rec
	}

	return nil
}

// GetLevel возвращает уровень или ErrLevelNotFound.
func (r *ParkingRepository) GetLevel(id string) (domain.Level, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	level, ok := r.levels[id]
	if !ok {
		return domain.Level{}, domain.ErrLevelNotFound
	}
	return level, nil
}

// ListLevels возвращает уровни, отсортированные по подписи.
func (r *ParkingRepository) ListLevels() ([]domain.Level, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Level, 0, len(r.levels))
	for _, level := range r.levels {
		result = append(result, level)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Label < result[j].Label
	})

	return result, nil
}

// GetSpot возвращает снимок места или ErrSpotNotFound.
func (r *ParkingRepository) GetSpot(id string) (domain.Spot, error) {
	rec, err := r.record(id)
	if err != nil {
		return domain.Spot{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.spot, nil
}

// ListSpots возвращает снимки мест уровня в порядке кодов.
func (r *ParkingRepository) ListSpots(levelID string) ([]domain.Spot, error) {
	r.mu.RLock()
	records, ok := r.levelSpots[levelID]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrLevelNotFound
	}

	result := make([]domain.Spot, 0, len(records))
	for _, rec := range records {
		rec.mu.Lock()
		result = append(result, rec.spot)
		rec.mu.Unlock()
	}

	return result, nil
}

// UpdateSpot применяет fn к месту под его персональной блокировкой.
// Ошибка fn оставляет место нетронутым.
func (r *ParkingRepository) UpdateSpot(id string, fn func(*domain.Spot) error) (domain.Spot, error) {
	rec, err := r.record(id)
	if err != nil {
		return domain.Spot{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	candidate := rec.spot
	if err := fn(&candidate); err != nil {
		return domain.Spot{}, err
	}
	candidate.UpdatedAt = time.Now().UTC()
	rec.spot = candidate

	return candidate, nil
}

// AllocateInLevel выбирает свободное подходящее место с минимальным кодом
// и атомарно занимает его. Блокировка уровня сериализует конкурентные
// выборки кандидатов: два вызова никогда не получат одно место.
func (r *ParkingRepository) AllocateInLevel(levelID string, accessible bool) (domain.Spot, error) {
	r.mu.RLock()
	records, ok := r.levelSpots[levelID]
	lock := r.levelLocks[levelID]
	r.mu.RUnlock()
	if !ok {
		return domain.Spot{}, domain.ErrLevelNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	for _, rec := range records {
		rec.mu.Lock()
		if rec.spot.State == domain.SpotStateAvailable && rec.spot.Accessible == accessible {
			rec.spot.State = domain.SpotStateOccupied
			rec.spot.UpdatedAt = time.Now().UTC()
			spot := rec.spot
			rec.mu.Unlock()
			return spot, nil
		}
		rec.mu.Unlock()
	}

	return domain.Spot{}, domain.ErrNoSpotsAvailable
}

func (r *ParkingRepository) record(id string) (*spotRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.spots[id]
	if !ok {
		return nil, domain.ErrSpotNotFound
	}
	return rec, nil
}

// spotCodeLess сравнивает коды мест естественным порядком:
// буквенный префикс, затем числовой суффикс (A2 < A10 < B1).
func spotCodeLess(a, b string) bool {
	ap, an := splitSpotCode(a)
	bp, bn := splitSpotCode(b)
	if ap != bp {
		return ap < bp
	}
	if an != bn {
		return an < bn
	}
	return a < b
}

func splitSpotCode(code string) (string, int) {
	i := 0
	for i < len(code) && (code[i] < '0' || code[i] > '9') {
		i++
	}
	prefix := strings.ToUpper(code[:i])
	num := 0
	for ; i < len(code); i++ {
		c := code[i]
		if c < '0' || c > '9' {
			break
		}
		num = num*10 + int(c-'0')
	}
	return prefix, num
}

var _ domain.ParkingRepository = (*ParkingRepository)(nil)
