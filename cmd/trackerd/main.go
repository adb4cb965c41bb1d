// Package main - точка входа фонового демона course tracker.
//
// Демон отвечает за периодические задачи:
// - Опрос ленты активности и пересчёт прогресса по курсу
// - Обновление markdown-отчёта и отправку напоминаний
// - Ночную чистку архива снапшотов
// - Watch-режим: немедленный проход, когда в каталоге данных
//   появляется свежий снапшот ленты
//
// Философия: трекер живёт в фоне и молчит, пока всё идёт по плану -
// оператор открывает отчёт или получает push, а не читает логи.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	// Application layer
	"github.com/pacewise/course-tracker/internal/application/command"

	// Domain layer
	"github.com/pacewise/course-tracker/internal/domain/progress"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
	"github.com/pacewise/course-tracker/internal/domain/unit"

	// Infrastructure layer
	"github.com/pacewise/course-tracker/internal/infrastructure/external/feed"
	"github.com/pacewise/course-tracker/internal/infrastructure/notify"
	"github.com/pacewise/course-tracker/internal/infrastructure/report"
	"github.com/pacewise/course-tracker/internal/infrastructure/scheduler"
	"github.com/pacewise/course-tracker/internal/infrastructure/scheduler/jobs"
	"github.com/pacewise/course-tracker/internal/infrastructure/state"

	// Packages
	"github.com/pacewise/course-tracker/config"
	"github.com/pacewise/course-tracker/pkg/logger"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

// watchSuppressWindow глушит watcher после завершённого прохода: проход сам
// пишет новый снапшот в архив, и без паузы демон зациклился бы на эхо
// собственных записей.
const watchSuppressWindow = 10 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запускаем приложение
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ И ЧАСОВОГО ПОЯСА
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting course tracker daemon",
		"version", cfg.App.Version,
		"env", string(cfg.App.Environment),
		"debug", cfg.App.Debug,
		"username", cfg.Feed.Username,
	)

	// День учащегося переворачивается в его часовом поясе, не в UTC
	timeutil.SetLocation(cfg.App.Location)
	log.Info("tracker timezone set", "timezone", cfg.App.Location.String())

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ СОСТОЯНИЯ И RUN LOCK
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("opening state store...", "path", cfg.Storage.StatePath())

	stateCfg := state.DefaultConfig(cfg.Storage.StatePath())
	stateCfg.BackupKeep = cfg.Storage.BackupKeep
	stateCfg.DefaultTrackingStart = cfg.Goal.TrackingStartDate
	stateCfg.Logger = log

	store, err := state.NewStore(stateCfg)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	if err := store.CheckWritable(); err != nil {
		return fmt.Errorf("state location is not writable: %w", err)
	}

	lock := state.NewLock(cfg.Storage.LockPath(), cfg.Storage.LockStaleAfter, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. КЛИЕНТ ЛЕНТЫ АКТИВНОСТИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing feed client...")

	feedCfg := feed.DefaultClientConfig(cfg.Feed.BaseURL, cfg.Feed.Username)
	feedCfg.Timeout = cfg.Feed.RequestTimeout
	feedCfg.MinRequestInterval = cfg.Feed.MinRequestInterval
	feedCfg.RetryAttempts = cfg.Feed.MaxRetries
	feedCfg.RetryDelay = cfg.Feed.RetryBaseDelay
	feedCfg.RetryMaxDelay = cfg.Feed.RetryMaxDelay
	feedCfg.BreakerThreshold = cfg.Feed.CircuitBreakerThreshold
	feedCfg.BreakerTimeout = cfg.Feed.CircuitBreakerTimeout
	feedCfg.BreakerHalfOpenMax = cfg.Feed.CircuitBreakerHalfOpenMax
	feedCfg.Logger = log
	feedCfg.Debug = cfg.App.Debug

	client, err := feed.NewClient(feedCfg)
	if err != nil {
		return fmt.Errorf("failed to create feed client: %w", err)
	}

	parser := feed.NewParser(log)
	archive := feed.NewArchive(cfg.Storage.ArchiveDir(), cfg.Feed.Username, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. КАНАЛЫ УВЕДОМЛЕНИЙ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing notification channels...")

	notifier := notify.NewService(tracking.NewCycleManager(cfg.Notify.ThrottleInterval), log)
	notifier.SetRespectQuietHours(cfg.Notify.RespectQuietHours)

	if cfg.Notify.Enabled {
		if cfg.Notify.PushoverEnabled {
			push, err := notify.NewPushoverChannel(notify.PushoverConfig{
				Token:   cfg.Notify.PushoverToken,
				UserKey: cfg.Notify.PushoverUser,
				Logger:  log,
			})
			if err != nil {
				log.Warn("pushover channel not registered", "error", err)
			} else {
				notifier.Register(push)
			}
		}
		if cfg.Notify.DesktopEnabled {
			notifier.Register(notify.NewDesktopChannel(log))
		}
	} else {
		log.Info("notifications disabled by configuration")
	}
	log.Info("notification channels ready", "channels", len(notifier.ChannelTypes()))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ОТЧЁТ О ПРОГРЕССЕ
	// ─────────────────────────────────────────────────────────────────────────
	reporter := report.NewMarkdownUpdater(report.UpdaterConfig{
		Path:             cfg.Storage.ReportPath,
		MinutesPerLesson: cfg.Course.MinutesPerLesson,
		Logger:           log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")

	appLog := logger.New(logger.Options{
		Level: logger.ParseLevel(cfg.Observability.LogLevel),
	})

	handlerCfg := command.DefaultRunTrackingHandlerConfig()
	handlerCfg.Classifier = classifierConfig(cfg)
	handlerCfg.Engine = engineConfig(cfg)
	handlerCfg.NotificationThrottle = cfg.Notify.ThrottleInterval
	handlerCfg.Timezone = cfg.App.Location
	handlerCfg.Logger = appLog

	trackingHandler := command.NewRunTrackingHandler(
		client, parser, archive, store, lock, reporter, notifier, handlerCfg)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing scheduler...")

	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	sched := scheduler.NewScheduler(schedCfg)

	// Watch-проходы идут через тот же job; флаг различает их в логах цикла
	var watchFired atomic.Bool

	runner := jobs.CycleRunnerFunc(func(ctx context.Context) (jobs.CycleSummary, error) {
		trigger := command.TriggerSchedule
		if watchFired.CompareAndSwap(true, false) {
			trigger = command.TriggerWatch
		}
		res, err := trackingHandler.Handle(ctx, command.RunTrackingCommand{
			Offline: cfg.Feed.OfflineOnly,
			Trigger: trigger,
		})
		if err != nil {
			return jobs.CycleSummary{}, err
		}
		return jobs.CycleSummary{
			RunID:        res.RunID,
			NewLessons:   res.NewLessons,
			DailyLessons: res.Snapshot.DailyLessonsCompleted,
			DailyGoal:    res.Snapshot.DailyGoalLessons,
			Notified:     res.Notified,
			FromArchive:  res.FromArchive,
			Skipped:      res.SkippedRecords,
		}, nil
	})

	trackCfg := jobs.DefaultTrackConfig()
	trackCfg.Timeout = cfg.Scheduler.JobTimeout
	trackCfg.Logger = log
	trackJob := jobs.NewTrackJob(runner, trackCfg)

	if err := sched.Register(trackJob, scheduler.NewIntervalSchedule(cfg.Scheduler.TrackInterval)); err != nil {
		return fmt.Errorf("failed to register tracking job: %w", err)
	}

	cleanupSchedule, err := scheduler.ParseCron(cfg.Scheduler.CleanupCron)
	if err != nil {
		return fmt.Errorf("invalid cleanup cron %q: %w", cfg.Scheduler.CleanupCron, err)
	}
	if err := sched.Register(jobs.NewCleanupJob(archive, cfg.Storage.ArchiveKeep, log), cleanupSchedule); err != nil {
		return fmt.Errorf("failed to register cleanup job: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. WATCH-РЕЖИМ
	// ─────────────────────────────────────────────────────────────────────────
	var watcher *scheduler.Watcher
	if cfg.Scheduler.WatchEnabled {
		log.Info("initializing snapshot watcher...", "dir", archive.Dir())

		// Watcher требует существующий каталог ещё до первого снапшота
		if err := os.MkdirAll(archive.Dir(), 0o755); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}

		watcher, err = scheduler.NewWatcher(scheduler.WatcherConfig{
			Dir:      archive.Dir(),
			Debounce: cfg.Scheduler.WatchDebounce,
			Logger:   log,
		}, func() {
			watchFired.Store(true)
			go func() {
				if _, err := sched.RunNow(ctx, jobs.TrackJobName); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn("watch-triggered run failed", "error", err)
				}
			}()
		})
		if err != nil {
			return fmt.Errorf("failed to create snapshot watcher: %w", err)
		}

		sched.OnJobComplete(func(result scheduler.JobResult) {
			if result.JobName == jobs.TrackJobName {
				watcher.Suppress(watchSuppressWindow)
			}
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 10. ЗАПУСК СЕРВИСОВ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		if watcher != nil {
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("failed to start snapshot watcher: %w", err)
			}
		}

		// Первый проход сразу, не дожидаясь интервала
		go func() {
			if _, err := sched.RunNow(ctx, jobs.TrackJobName); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("initial tracking run failed", "error", err)
			}
		}()
	} else {
		log.Warn("scheduler disabled by configuration, daemon is idle")
	}

	log.Info("course tracker daemon is running",
		"track_interval", cfg.Scheduler.TrackInterval.String(),
		"cleanup_cron", cfg.Scheduler.CleanupCron,
		"watch", cfg.Scheduler.WatchEnabled,
		"offline_only", cfg.Feed.OfflineOnly,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────

	// Ожидаем сигнал завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	// Начинаем graceful shutdown
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	if watcher != nil {
		log.Info("stopping snapshot watcher...")
		watcher.Stop()
	}

	if cfg.Scheduler.Enabled {
		log.Info("stopping scheduler...")
		done := make(chan struct{})
		go func() {
			_ = sched.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(cfg.App.ShutdownTimeout):
			log.Warn("scheduler stop timed out, in-flight job abandoned")
		}

		if m := sched.Metrics(); m != nil {
			snap := m.Snapshot()
			log.Info("job metrics",
				"total_runs", snap.TotalRuns,
				"successes", snap.TotalSuccesses,
				"failures", snap.TotalFailures,
				"avg_duration", snap.AverageDuration.String(),
			)
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование демона.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slogLevel(cfg.Observability.LogLevel),
	}

	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "text" {
		// Текстовый формат для разработки (лучше читается)
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		// JSON формат для production (лучше для агрегаторов логов)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)

	return log
}

// slogLevel переводит текстовый уровень конфигурации в slog.Level.
func slogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// classifierConfig собирает параметры сегментации юнитов из конфигурации.
func classifierConfig(cfg *config.Config) unit.Config {
	return unit.Config{
		FoldThreshold:       cfg.Course.SmallUnitFoldThreshold,
		FixedLessonsPerUnit: int(cfg.Course.BaseLessonsPerUnit),
		ModeTransition:      cfg.Course.ModeTransitionDate,
		AveragingCutoff:     cfg.Course.AveragingCutoffDate,
		ExcludedNames:       cfg.Course.Plan.ExcludedSet(),
	}
}

// engineConfig собирает параметры расчёта прогресса из конфигурации.
func engineConfig(cfg *config.Config) progress.Config {
	return progress.Config{
		TotalUnits:            cfg.Course.TotalUnits,
		GoalDurationDays:      cfg.Goal.DurationDays,
		TrackingStartDate:     cfg.Goal.TrackingStartDate,
		DailyGoalLessons:      cfg.Goal.DailyLessonTarget,
		DefaultLessonsPerUnit: cfg.Course.BaseLessonsPerUnit,
	}
}
