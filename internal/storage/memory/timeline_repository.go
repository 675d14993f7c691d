package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

// timelineRepositoryInMemory — in-memory реализация TimelineRepository.
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events []domain.TimelineEvent
}

// NewTimelineRepository возвращает in-memory таймлайн событий.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{}
}

// Append сохраняет событие жизненного цикла.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	r.events = append(r.events, event)
	return nil
}

// List возвращает события тикета в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(ticketID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.TimelineEvent, 0)
	for _, event := range r.events {
		if event.TicketID == ticketID {
			result = append(result, event)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Occurred.Before(result[j].Occurred)
	})

	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
