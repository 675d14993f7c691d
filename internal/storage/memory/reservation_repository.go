package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// reservationRecord держит бронь вместе с её персональной блокировкой,
// чтобы заезд и expiry sweep на одной брони не гонялись друг с другом.
//
// Дисциплина блокировок: мутация записи требует rec.mu, а сам коммит
// нового значения выполняется под repo.mu. Читатели берут только
// repo.mu.RLock и видят последнее закоммиченное значение, поэтому
// fn внутри Update может безопасно обращаться к read-методам репозитория.
type reservationRecord struct {
	mu  sync.Mutex
	res domain.Reservation
}

// reservationRepositoryInMemory — in-memory реализация ReservationRepository.
type reservationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]*reservationRecord
}

// NewReservationRepository возвращает in-memory репозиторий броней.
func NewReservationRepository() domain.ReservationRepository {
	return &reservationRepositoryInMemory{
		items: make(map[string]*reservationRecord),
	}
}

// Create сохраняет новую бронь.
func (r *reservationRepositoryInMemory) Create(reservation domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[reservation.ID] = &reservationRecord{res: reservation}
	return nil
}

// Get возвращает бронь или ErrReservationNotFound.
func (r *reservationRepositoryInMemory) Get(id string) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[id]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return rec.res, nil
}

// Update применяет fn к брони под её блокировкой; ошибка fn откатывает мутацию.
func (r *reservationRepositoryInMemory) Update(id string, fn func(*domain.Reservation) error) (domain.Reservation, error) {
	rec, err := r.record(id)
	if err != nil {
		return domain.Reservation{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	candidate := rec.res
	if err := fn(&candidate); err != nil {
		return domain.Reservation{}, err
	}

	r.mu.Lock()
	rec.res = candidate
	r.mu.Unlock()

	return candidate, nil
}

// HasSpotOverlap проверяет пересечение окна с действующими бронями места.
func (r *reservationRepositoryInMemory) HasSpotOverlap(spotID string, start, end time.Time) (bool, error) {
	return r.anyBlocking(func(res *domain.Reservation) bool {
		return res.SpotID == spotID && res.Overlaps(start, end)
	}), nil
}

// HasVehicleOverlap — то же правило по номерному знаку.
func (r *reservationRepositoryInMemory) HasVehicleOverlap(plate string, start, end time.Time) (bool, error) {
	key := domain.NormalizePlate(plate)
	return r.anyBlocking(func(res *domain.Reservation) bool {
		return domain.NormalizePlate(res.Plate) == key && res.Overlaps(start, end)
	}), nil
}

// FindBlocking возвращает действующую бронь, чьё окно содержит момент at.
func (r *reservationRepositoryInMemory) FindBlocking(spotID string, at time.Time) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.items {
		res := rec.res
		if res.Blocking() && res.SpotID == spotID && res.Contains(at) {
			return res, nil
		}
	}

	return domain.Reservation{}, domain.ErrReservationNotFound
}

// ExpireNoShows переводит невостребованные CREATED брони в EXPIRED.
// Статус перепроверяется под блокировкой записи, поэтому гонка с заездом
// на той же брони исключена.
func (r *reservationRepositoryInMemory) ExpireNoShows(cutoff time.Time) (int, error) {
	r.mu.RLock()
	records := make([]*reservationRecord, 0, len(r.items))
	for _, rec := range r.items {
		records = append(records, rec)
	}
	r.mu.RUnlock()

	expired := 0
	for _, rec := range records {
		rec.mu.Lock()
		if rec.res.Status == domain.ReservationStatusCreated && rec.res.StartAt.Before(cutoff) {
			r.mu.Lock()
			rec.res.Status = domain.ReservationStatusExpired
			r.mu.Unlock()
			expired++
		}
		rec.mu.Unlock()
	}

	return expired, nil
}

// ListByUser возвращает брони пользователя, поздние первыми.
func (r *reservationRepositoryInMemory) ListByUser(userEmail string) ([]domain.Reservation, error) {
	return r.collect(func(res *domain.Reservation) bool {
		return res.UserEmail == userEmail
	}), nil
}

// ListForSpotBetween возвращает брони места, пересекающие [from, to).
func (r *reservationRepositoryInMemory) ListForSpotBetween(spotID string, from, to time.Time) ([]domain.Reservation, error) {
	return r.collect(func(res *domain.Reservation) bool {
		return res.SpotID == spotID && res.Blocking() && res.Overlaps(from, to)
	}), nil
}

// ListAll возвращает все брони, поздние первыми.
func (r *reservationRepositoryInMemory) ListAll() ([]domain.Reservation, error) {
	return r.collect(func(*domain.Reservation) bool { return true }), nil
}

func (r *reservationRepositoryInMemory) record(id string) (*reservationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return rec, nil
}

func (r *reservationRepositoryInMemory) anyBlocking(match func(*domain.Reservation) bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.items {
		res := rec.res
		if res.Blocking() && match(&res) {
			return true
		}
	}
	return false
}

func (r *reservationRepositoryInMemory) collect(match func(*domain.Reservation) bool) []domain.Reservation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Reservation, 0)
	for _, rec := range r.items {
		res := rec.res
		if match(&res) {
			result = append(result, res)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartAt.Equal(result[j].StartAt) {
			return result[i].StartAt.After(result[j].StartAt)
		}
		return result[i].ID > result[j].ID
	})

	return result
}

var _ domain.ReservationRepository = (*reservationRepositoryInMemory)(nil)
