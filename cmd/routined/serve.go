package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reachravi55/myDailyRoutine/internal/alarm"
	"github.com/reachravi55/myDailyRoutine/internal/api"
	"github.com/reachravi55/myDailyRoutine/internal/telemetry"

	"github.com/spf13/cobra"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder daemon: arm alarms, fire notifications, resync periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			timers := alarm.NewLocalTimers()
			defer timers.Stop()

			a, err := openApp(ctx, g, timers, true)
			if err != nil {
				return err
			}
			defer a.Close()
			timers.AllowExact = a.cfg.Scheduler.ExactAlarms()

			timers.SetHandler(func(k alarm.Key) {
				if err := a.sched.OnFire(ctx, k); err != nil {
					logEvent(a, "error", "alarm_fire_failed", map[string]any{"key": k.String(), "error": err.Error()})
				}
			})

			n, err := a.repo.Boot(ctx)
			if err != nil {
				return err
			}
			logEvent(a, "info", "serve_started", map[string]any{
				"tasks":          n,
				"timers":         timers.Len(),
				"store":          a.cfg.Store.Driver,
				"resync_minutes": a.cfg.Scheduler.ResyncMinutes,
			})

			if addr := a.cfg.HTTP.Addr; addr != "" {
				srv := &http.Server{
					Addr: addr,
					Handler: api.NewHandler(api.Options{
						Repo:   a.repo,
						Tester: a.sched,
						Events: a.events,
						Logger: a.logger,
						Now:    a.clock.Now,
						Token:  a.cfg.HTTP.Token,
					}).Routes(),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					logEvent(a, "info", "http_listening", map[string]any{"addr": addr})
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logEvent(a, "error", "http_failed", map[string]any{"addr": addr, "error": err.Error()})
						stop()
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			ticker := time.NewTicker(time.Duration(a.cfg.Scheduler.ResyncMinutes) * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					reportStats(a)
					return nil
				case <-ticker.C:
					// Picks up edits made by other processes sharing the store.
					_, _ = a.repo.Resync(ctx)
				}
			}
		},
	}
}

func reportStats(a *app) {
	events, err := a.events.GetEvents(time.Time{}, nil)
	if err != nil {
		return
	}
	stats, err := telemetry.CalculateStats(events, time.Time{})
	if err != nil {
		return
	}
	logEvent(a, "info", "serve_stopped", map[string]any{
		"armed":         stats.Armed,
		"fired":         stats.Fired,
		"degraded":      stats.Degraded,
		"failed":        stats.Failed,
		"degraded_rate": stats.DegradedRate,
	})
}

func logEvent(a *app, level, msg string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": level,
		"msg":   msg,
	}
	for k, v := range fields {
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		a.logger.Printf(`{"level":"error","msg":"log_marshal_failed","error":%q}`, err.Error())
		return
	}
	a.logger.Print(string(b))
}
