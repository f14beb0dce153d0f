// sweep.go — republish-сверка pending записей поиска.
//
// Публикация задания после коммита — fire-and-forget: при отказе Message Bus
// запись остаётся pending без задания в очереди. Сверка находит pending
// записи старше минимального возраста и публикует задания повторно.
// Worker обязан обрабатывать дубликаты идемпотентно (guard в Resolve).
//
// Запускается как горутина с периодическим тикером (FPS_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/mq"
	"github.com/uni-verse-fm/uni-verse-api-sub000/internal/repository"
)

// Prometheus метрики сверки
var (
	// sweepRunsTotal — количество запусков сверки.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fps_sweep_runs_total",
		Help: "Общее количество запусков republish-сверки",
	})

	// sweepRepublishedTotal — количество повторно опубликованных заданий.
	sweepRepublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fps_sweep_republished_total",
		Help: "Общее количество повторно опубликованных заданий поиска",
	})

	// sweepDurationSeconds — длительность выполнения сверки.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fps_sweep_duration_seconds",
		Help:    "Длительность выполнения republish-сверки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// SweepResult — результат одного прохода сверки.
type SweepResult struct {
	// Republished — количество повторно опубликованных заданий
	Republished int
	// Errors — количество ошибок публикации
	Errors int
	// Duration — длительность прохода
	Duration time.Duration
}

// SweepService — фоновая republish-сверка pending записей.
type SweepService struct {
	searches  repository.FpSearchRepository
	publisher mq.Publisher
	interval  time.Duration
	minAge    time.Duration
	batch     int
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweepService создаёт сервис сверки.
func NewSweepService(
	searches repository.FpSearchRepository,
	publisher mq.Publisher,
	interval time.Duration,
	minAge time.Duration,
	batch int,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		searches:  searches,
		publisher: publisher,
		interval:  interval,
		minAge:    minAge,
		batch:     batch,
		logger:    logger.With(slog.String("component", "sweep")),
	}
}

// Start запускает фоновую горутину сверки с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *SweepService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Сверка запущена",
		slog.String("interval", s.interval.String()),
		slog.String("min_age", s.minAge.String()),
		slog.Int("batch", s.batch),
	)
}

// Stop останавливает фоновый процесс сверки.
func (s *SweepService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Сверка остановлена")
}

// run — основной цикл фоновой горутины.
func (s *SweepService) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход сверки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (s *SweepService) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	cutoff := time.Now().UTC().Add(-s.minAge)
	pending, err := s.searches.ListPendingBefore(ctx, cutoff, s.batch)
	if err != nil {
		s.logger.Error("Сверка: ошибка выборки pending записей",
			slog.String("error", err.Error()),
		)
		return result
	}

	for _, f := range pending {
		err := s.publisher.Publish(ctx, mq.SearchRequestMessage{
			ExtractURL: f.Filename,
			FpSearchID: f.ID,
		})
		if err != nil {
			s.logger.Error("Сверка: ошибка повторной публикации",
				slog.String("fp_search_id", f.ID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		result.Republished++
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepRepublishedTotal.Add(float64(result.Republished))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	if result.Republished > 0 || result.Errors > 0 {
		s.logger.Info("Сверка завершена",
			slog.Int("republished", result.Republished),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}

	return result
}
