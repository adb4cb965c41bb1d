// Package main - CLI course tracker: ручные проходы, статус прогресса и
// диагностика из терминала.
//
// Команды:
// - run     - один полный проход отслеживания (--offline: без сети)
// - status  - сводка прогресса и график за неделю
// - state   - просмотр и проверка сохранённого состояния
// - notify  - пробная отправка уведомлений
// - health  - проверка компонентов (state, лента, каналы)
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pacewise/course-tracker/config"
	"github.com/pacewise/course-tracker/internal/application/command"
	"github.com/pacewise/course-tracker/internal/application/query"
	"github.com/pacewise/course-tracker/internal/domain/progress"
	"github.com/pacewise/course-tracker/internal/domain/shared"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
	"github.com/pacewise/course-tracker/internal/domain/unit"
	"github.com/pacewise/course-tracker/internal/infrastructure/external/feed"
	"github.com/pacewise/course-tracker/internal/infrastructure/notify"
	"github.com/pacewise/course-tracker/internal/infrastructure/report"
	"github.com/pacewise/course-tracker/internal/infrastructure/state"
	"github.com/pacewise/course-tracker/pkg/logger"
	"github.com/pacewise/course-tracker/pkg/timeutil"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tracker",
		Short:         "Course progress tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newStateCmd())
	root.AddCommand(newNotifyCmd())
	root.AddCommand(newHealthCmd())
	return root
}

// ══════════════════════════════════════════════════════════════════════════════
// APP WIRING
// ══════════════════════════════════════════════════════════════════════════════

// app связывает собранные компоненты трекера для команд CLI.
type app struct {
	cfg      *config.Config
	store    *state.Store
	notifier *notify.Service
	tracking *command.RunTrackingHandler
	status   *query.GetStatusHandler
	health   *query.GetHealthHandler
}

// loadApp собирает полный граф компонентов. Диагностика уходит в stderr,
// stdout остаётся выводу команды.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := slog.LevelWarn
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	timeutil.SetLocation(cfg.App.Location)

	stateCfg := state.DefaultConfig(cfg.Storage.StatePath())
	stateCfg.BackupKeep = cfg.Storage.BackupKeep
	stateCfg.DefaultTrackingStart = cfg.Goal.TrackingStartDate
	stateCfg.Logger = log

	store, err := state.NewStore(stateCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	lock := state.NewLock(cfg.Storage.LockPath(), cfg.Storage.LockStaleAfter, log)

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
		return nil, fmt.Errorf("failed to create feed client: %w", err)
	}

	parser := feed.NewParser(log)
	archive := feed.NewArchive(cfg.Storage.ArchiveDir(), cfg.Feed.Username, log)

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
	}

	reporter := report.NewMarkdownUpdater(report.UpdaterConfig{
		Path:             cfg.Storage.ReportPath,
		MinutesPerLesson: cfg.Course.MinutesPerLesson,
		Logger:           log,
	})

	appLog := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
	})

	handlerCfg := command.DefaultRunTrackingHandlerConfig()
	handlerCfg.Classifier = classifierConfig(cfg)
	handlerCfg.Engine = engineConfig(cfg)
	handlerCfg.NotificationThrottle = cfg.Notify.ThrottleInterval
	handlerCfg.Timezone = cfg.App.Location
	handlerCfg.Logger = appLog

	trackingHandler := command.NewRunTrackingHandler(
		client, parser, archive, store, lock, reporter, notifier, handlerCfg)

	statusHandler := query.NewGetStatusHandler(archive, store, query.GetStatusHandlerConfig{
		Classifier: classifierConfig(cfg),
		Engine:     engineConfig(cfg),
		Timezone:   cfg.App.Location,
	})

	healthHandler := query.NewGetHealthHandler(store, client, notifier)

	return &app{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		tracking: trackingHandler,
		status:   statusHandler,
		health:   healthHandler,
	}, nil
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

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func newRunCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full tracking pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			res, err := a.tracking.Handle(cmd.Context(), command.RunTrackingCommand{
				Offline: offline || a.cfg.Feed.OfflineOnly,
				Trigger: command.TriggerManual,
			})
			if err != nil {
				if errors.Is(err, shared.ErrRunInProgress) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "skipped: another tracking run is in progress")
					return nil
				}
				return err
			}

			out := cmd.OutOrStdout()
			source := "live fetch"
			if res.FromArchive {
				source = "archived snapshot"
			}
			_, _ = fmt.Fprintf(out, "run %s finished in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
			_, _ = fmt.Fprintf(out, "  source:      %s (%d records, %d skipped)\n", source, res.RawRecords, res.SkippedRecords)
			_, _ = fmt.Fprintf(out, "  new lessons: %d (today %d/%d)\n",
				res.NewLessons, res.Snapshot.DailyLessonsCompleted, res.Snapshot.DailyGoalLessons)
			_, _ = fmt.Fprintf(out, "  pace:        %s\n", res.Snapshot.Pace)
			if res.Notified {
				_, _ = fmt.Fprintln(out, "  notified:    yes")
			} else {
				_, _ = fmt.Fprintf(out, "  notified:    no (%s)\n", res.NotifyReason)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "replay the newest archived snapshot instead of fetching")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var showUnits bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest progress snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			res, err := a.status.Handle(cmd.Context(), query.GetStatusQuery{})
			if err != nil {
				if shared.IsNotFound(err) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no activity data yet, run `tracker run` first")
					return nil
				}
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprint(out, report.RenderStatus(res.Snapshot))
			_, _ = fmt.Fprintf(out, "\nLessons per day, trailing week:\n%s\n", report.RenderTrend(res.Snapshot.Window))
			_, _ = fmt.Fprintf(out, "\ndata fetched at %s\n", res.FetchedAt.Format("2006-01-02 15:04"))

			if showUnits {
				_, _ = fmt.Fprintf(out, "\nUnits (%d):\n", len(res.Units))
				for _, u := range res.Units {
					marker := "closed"
					if u.IsOpen {
						marker = "open"
					}
					_, _ = fmt.Fprintf(out, "  %-30s %3d lessons  %s\n", u.Name, u.LessonCount, marker)
				}
			}

			for _, w := range res.StateWarnings {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "state warning: %s\n", w)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showUnits, "units", false, "list classified units")
	return cmd
}

func newStateCmd() *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect persisted tracking state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			st, err := a.store.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "schema:            %s\n", st.SchemaVersion)
			_, _ = fmt.Fprintf(out, "tracking since:    %s\n", st.TrackingStartDate.Format("2006-01-02"))
			_, _ = fmt.Fprintf(out, "lessons today:     %d\n", st.DailyLessonsCompleted)
			_, _ = fmt.Fprintf(out, "lessons lifetime:  %d\n", st.TotalLifetimeLessons)
			_, _ = fmt.Fprintf(out, "completed units:   %d\n", len(st.CompletedUnitNames))
			_, _ = fmt.Fprintf(out, "last day reset:    %s\n", formatMaybeTime(st.LastDailyResetDate, "2006-01-02"))
			_, _ = fmt.Fprintf(out, "last notification: %s\n", formatMaybeTime(st.LastNotificationTimestamp, "2006-01-02 15:04"))
			if st.RecoveredFromBackup {
				_, _ = fmt.Fprintln(out, "note: state was recovered from a backup")
			}
			if st.RecoveredFromDefault {
				_, _ = fmt.Fprintln(out, "note: state was rebuilt from defaults")
			}
			return nil
		},
	}

	stateCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the persisted state for consistency violations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			st, err := a.store.Load()
			if err != nil {
				return err
			}

			issues := st.Validate()
			if len(issues) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "state is consistent")
				return nil
			}
			for _, issue := range issues {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[FAIL] %s\n", issue)
			}
			return fmt.Errorf("state has %d consistency issue(s)", len(issues))
		},
	})

	stateCmd.AddCommand(&cobra.Command{
		Use:   "backups",
		Short: "List state backups, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			backups := a.store.Backups()
			if len(backups) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no backups")
				return nil
			}
			for _, b := range backups {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), b)
			}
			return nil
		},
	})

	return stateCmd
}

func newNotifyCmd() *cobra.Command {
	notifyCmd := &cobra.Command{Use: "notify", Short: "Notification operations"}

	notifyCmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a probe message through every configured channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			outcome := a.notifier.SendTest(cmd.Context(), timeutil.Now())
			if len(outcome.Results) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no notification channels configured")
				return nil
			}

			for _, r := range outcome.Results {
				if r.Success {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[OK]   %s\n", r.Channel)
				} else {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[FAIL] %s: %v\n", r.Channel, r.Error)
				}
			}
			if !outcome.Sent {
				return errors.New("no channel delivered the probe message")
			}
			return nil
		},
	})

	return notifyCmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe tracker components and report a verdict",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			res, err := a.health.Handle(cmd.Context(), query.GetHealthQuery{})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range res.Components {
				marker := "OK"
				if !c.OK {
					marker = "FAIL"
				}
				_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", marker, c.Component, c.Detail)
			}
			_, _ = fmt.Fprintf(out, "verdict: %s\n", res.Verdict)

			if res.Verdict == query.VerdictUnhealthy {
				return errors.New("tracker is unhealthy")
			}
			return nil
		},
	}
}

// formatMaybeTime печатает время или "never" для нулевого значения.
func formatMaybeTime(t time.Time, layout string) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(layout)
}
