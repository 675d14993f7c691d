package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pms/internal/api"
	"github.com/vladislavdragonenkov/pms/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pms/internal/health"
	"github.com/vladislavdragonenkov/pms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pms/internal/metrics"
	"github.com/vladislavdragonenkov/pms/internal/service/outbox"
	"github.com/vladislavdragonenkov/pms/internal/service/parking"
	"github.com/vladislavdragonenkov/pms/internal/service/payment"
	"github.com/vladislavdragonenkov/pms/internal/service/reservation"
	"github.com/vladislavdragonenkov/pms/internal/service/saga"
	"github.com/vladislavdragonenkov/pms/internal/service/ticket"
	"github.com/vladislavdragonenkov/pms/internal/service/vehicle"
	"github.com/vladislavdragonenkov/pms/internal/storage/memory"
	"github.com/vladislavdragonenkov/pms/internal/storage/postgres"
	"github.com/vladislavdragonenkov/pms/internal/version"
)

// repositories объединяет хранилища, общие для обоих бэкендов.
type repositories struct {
	parking      domain.ParkingRepository
	reservations domain.ReservationRepository
	tickets      domain.TicketRepository
	outbox       domain.OutboxRepository
	timeline     domain.TimelineRepository
	vehicles     domain.VehicleRegistry
}

// Run собирает зависимости и запускает API-сервер вместе с фоновыми
// воркерами. Блокируется до отмены контекста или фатальной ошибки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	healthHandler := healthcheck.NewHandler(version.GetVersion())

	var repos repositories
	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.WithError(closeErr).Warn("failed to close postgres store")
			}
		}()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}

		repos = repositories{
			parking:      postgres.NewParkingRepository(store),
			reservations: postgres.NewReservationRepository(store),
			tickets:      postgres.NewTicketRepository(store),
			outbox:       postgres.NewOutboxRepository(store),
			timeline:     postgres.NewTimelineRepository(store),
			vehicles:     postgres.NewVehicleRegistry(store),
		}
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return store.Ping(pingCtx)
		}))
		logger.Info("using postgres storage")
	} else {
		repos = repositories{
			parking:      memory.NewParkingRepository(),
			reservations: memory.NewReservationRepository(),
			tickets:      memory.NewTicketRepository(),
			outbox:       memory.NewOutboxRepository(),
			timeline:     memory.NewTimelineRepository(),
			vehicles:     vehicle.NewRegistry(),
		}
		logger.Info("using in-memory storage")
	}

	// Инициализация Kafka producer (опционально).
	var kafkaProducer *kafka.Producer
	if cfg.KafkaBrokers != "" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		producer, err := kafka.NewProducer(brokers)
		if err != nil {
			logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		} else {
			kafkaProducer = producer
			logger.WithField("brokers", brokers).Info("kafka producer initialized")
		}
	}
	defer func() {
		if kafkaProducer == nil {
			return
		}
		if err := kafkaProducer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			logger.Info("kafka producer closed")
		}
	}()

	// NOTE: платёжный шлюз остаётся mock-реализацией, в production его
	// заменяет клиент реального процессинга.
	payments := payment.NewMockGateway()

	parkingSvc := parking.NewService(repos.parking, logger.WithField("layer", "parking"))
	ticketSvc := ticket.NewService(repos.tickets, repos.reservations, repos.parking, logger.WithField("layer", "ticket"))
	ledger := reservation.NewLedger(repos.reservations, repos.parking, ticketSvc, reservation.DefaultConfig(), logger.WithField("layer", "reservation"))
	coordinator := saga.NewCoordinator(
		repos.parking,
		ticketSvc,
		repos.vehicles,
		payments,
		repos.outbox,
		repos.timeline,
		saga.Options{
			Logger:        logger.WithField("layer", "saga"),
			Metrics:       metrics.NewSagaMetrics(),
			KafkaProducer: kafkaProducer,
			Fees: saga.FeeConfig{
				HourlyRateMinor: cfg.HourlyRateMinor,
				MinFeeMinor:     cfg.MinFeeMinor,
			},
		},
	)

	sweeper := reservation.NewSweeper(
		repos.reservations,
		ledger.Config().Grace,
		reservation.WithSweeperInterval(cfg.SweepInterval),
		reservation.WithSweeperLogger(logger.WithField("layer", "sweeper")),
	)
	go sweeper.Run(ctx)

	// Ретрансляция outbox в Kafka только при настроенном брокере:
	// без него записи остаются в статусе PENDING.
	if kafkaProducer != nil {
		worker := outbox.NewWorker(
			repos.outbox,
			kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicTicketEvents),
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)),
		)
		go worker.Run(ctx)
	}

	handler := api.NewHandler(parkingSvc, ticketSvc, ledger, coordinator, logger.WithField("layer", "api"))
	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.NewRouter(handler)}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("API сервер слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем API сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
