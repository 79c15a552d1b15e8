package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/reachravi55/myDailyRoutine/internal/alarm"
	"github.com/reachravi55/myDailyRoutine/internal/clock"
	"github.com/reachravi55/myDailyRoutine/internal/config"
	"github.com/reachravi55/myDailyRoutine/internal/notify"
	"github.com/reachravi55/myDailyRoutine/internal/routine"
	"github.com/reachravi55/myDailyRoutine/internal/store"
	"github.com/reachravi55/myDailyRoutine/internal/telemetry"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	envFile    string
}

// app is the process-scoped object graph every command works against.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	clock  clock.Clock
	store  store.Store
	sched  *alarm.Scheduler
	repo   *routine.Repository
	events *telemetry.MemoryRepository
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:           "routined",
		Short:         "Recurring routine tasks with reliable reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("ROUTINE_CONFIG"), "config file (.yaml, .yml or .toml)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", "dotenv file to load before reading the environment (default ./.env if present)")

	root.AddCommand(
		newServeCmd(&g),
		newAddCmd(&g),
		newListCmd(&g),
		newDoneCmd(&g),
		newDeleteCmd(&g),
		newOccurrencesCmd(&g),
		newTodayCmd(&g),
		newICSCmd(&g),
		newExportCmd(&g),
		newImportCmd(&g),
		newDrillCmd(&g),
		newNotifyTestCmd(&g),
	)
	return root
}

func loadConfig(g *globalFlags) (*config.Config, error) {
	var err error
	if g.envFile != "" {
		err = config.LoadDotEnv(g.envFile)
	} else {
		err = config.LoadDotEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return config.Resolve(g.configPath)
}

// openApp wires store, notifier, scheduler and repository. Commands other
// than serve pass a MemoryTimers: their alarms are re-derived by the daemon.
// Only commands that deliver notifications set deliver; the rest never touch
// the Telegram Bot API.
func openApp(ctx context.Context, g *globalFlags, timers alarm.TimerService, deliver bool) (*app, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	logger := log.Default()

	st, err := store.Open(ctx, store.Options{
		Driver:  cfg.Store.Driver,
		DSN:     cfg.Store.DSN,
		DataDir: cfg.DataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier, err := buildNotifier(cfg, logger, deliver)
	if err != nil {
		st.Close()
		return nil, err
	}

	clk := clock.RealClock{}
	events := telemetry.NewMemoryRepository()
	sched := alarm.NewScheduler(alarm.Options{
		Timers:      timers,
		Notifier:    notifier,
		Docs:        st,
		Clock:       clk,
		Logger:      logger,
		Events:      events,
		HorizonDays: cfg.Scheduler.HorizonDays,
		Inexact:     !cfg.Scheduler.ExactAlarms(),
	})
	repo := routine.NewRepository(routine.Options{
		Store:       st,
		Alarms:      sched,
		Clock:       clk,
		Logger:      logger,
		HorizonDays: cfg.Scheduler.HorizonDays,
	})
	return &app{
		cfg:    cfg,
		logger: logger,
		clock:  clk,
		store:  st,
		sched:  sched,
		repo:   repo,
		events: events,
	}, nil
}

func buildNotifier(cfg *config.Config, logger *log.Logger, deliver bool) (alarm.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if deliver && cfg.Telegram.Enabled() {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}
	return notifiers, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app) error) error {
	return runApp(cmd, g, false, fn)
}

// withDeliveringApp is withApp with every configured notifier connected.
func withDeliveringApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app) error) error {
	return runApp(cmd, g, true, fn)
}

func runApp(cmd *cobra.Command, g *globalFlags, deliver bool, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, g, alarm.NewMemoryTimers(), deliver)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
