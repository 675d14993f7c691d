package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pms/internal/domain"
)

const defaultSweepInterval = time.Minute

var (
	reservationSweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pms_reservation_sweep_runs_total",
		Help: "Total number of reservation no-show sweep runs grouped by result.",
	}, []string{"result"})
	reservationSweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pms_reservation_sweep_expired_total",
		Help: "Total number of reservations expired by the no-show sweeper.",
	})
	reservationSweepLastExpired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pms_reservation_sweep_last_expired",
		Help: "Number of reservations expired during the last sweep run.",
	})
)

// SweeperOptions задаёт параметры sweep-воркера no-show броней.
type SweeperOptions struct {
	Logger   *log.Entry
	Interval time.Duration
}

// SweeperOption настраивает Sweeper.
type SweeperOption func(*SweeperOptions)

// WithSweeperLogger задаёт logger для воркера.
func WithSweeperLogger(logger *log.Entry) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithSweeperInterval задаёт интервал между sweep-циклами.
func WithSweeperInterval(interval time.Duration) SweeperOption {
	return func(opts *SweeperOptions) {
		opts.Interval = interval
	}
}

// Sweeper периодически переводит невостребованные CREATED брони в EXPIRED.
// Sweep идемпотентен и best-effort: конкурентный заезд, успевший раньше,
// просто выводит бронь из-под условия выборки.
type Sweeper struct {
	repo     domain.ReservationRepository
	grace    time.Duration
	logger   *log.Entry
	interval time.Duration
}

// NewSweeper создаёт sweep-воркер no-show броней.
func NewSweeper(repo domain.ReservationRepository, grace time.Duration, options ...SweeperOption) *Sweeper {
	opts := SweeperOptions{
		Interval: defaultSweepInterval,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reservation-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if grace < 0 {
		grace = 0
	}

	return &Sweeper{
		repo:     repo,
		grace:    grace,
		logger:   logger,
		interval: opts.Interval,
	}
}

// Run запускает периодический sweep до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("reservation sweeper is disabled: repo is nil")
		return
	}

	s.sweep(ctx, time.Now().UTC())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, time.Now().UTC())
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) {
	expired, err := s.Sweep(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		reservationSweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("reservation sweep run failed")
		return
	}

	reservationSweepRunsTotal.WithLabelValues("ok").Inc()
	reservationSweepLastExpired.Set(float64(expired))
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("reservation sweep completed")
	}
}

// Sweep переводит в EXPIRED все CREATED брони, чьё grace-окно заезда
// закрыто на момент now. Возвращает число изменённых броней.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	// CREATED бронь считается no-show, когда now >= start+grace,
	// то есть start <= now-grace.
	expired, err := s.repo.ExpireNoShows(now.Add(-s.grace))
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		reservationSweepExpiredTotal.Add(float64(expired))
	}

	return expired, nil
}
