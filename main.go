package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xwjdsh/polymonitor/internal/checkpoint"
	"github.com/xwjdsh/polymonitor/internal/config"
	"github.com/xwjdsh/polymonitor/internal/repo"
	"github.com/xwjdsh/polymonitor/internal/schedule"
	"github.com/xwjdsh/polymonitor/internal/service/monitor"
	"github.com/xwjdsh/polymonitor/internal/service/polymarket"
	"github.com/xwjdsh/polymonitor/internal/web"
	"github.com/xwjdsh/polymonitor/ioc"
)

func initViper() {
	// --config=./config.yaml
	file := pflag.String("config", "./config.yaml", "specify config file")
	pflag.Parse()

	viper.SetConfigFile(*file)
	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %s \n", err))
	}
}

func main() {
	_ = godotenv.Load()
	initViper()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Runtime edits from earlier runs live in the monitors.yaml side file and
	// win over the static base config.
	override, err := config.LoadMonitorsOverride(cfg.StateDir)
	if err != nil {
		slog.Error("failed to load monitor overrides", "error", err)
	} else {
		cfg.ApplySections(override)
		if err := cfg.Validate(); err != nil {
			panic(fmt.Errorf("invalid monitor overrides: %w", err))
		}
	}

	client := polymarket.NewClient()
	notifier := ioc.InitNotifier(cfg.Telegram)

	db := ioc.InitDB()
	if err := repo.InitTables(db); err != nil {
		panic(err)
	}
	alerts := repo.NewAlertRepo(db)

	store := config.NewStore(cfg)

	opts := []monitor.Option{
		monitor.WithNotifier(notifier),
		monitor.WithAlertRepo(alerts),
	}
	priceMonitor := monitor.NewPriceMonitor(client, store, opts...)
	positionChanges := monitor.NewPositionChanges(client, store, opts...)
	accountTracker := monitor.NewAccountTracker(client, store, opts...)

	saver := monitor.NewStateSaver(checkpoint.NewStore(cfg.StateDir), priceMonitor, positionChanges, accountTracker)
	saver.Restore(cfg)

	sched := schedule.New()
	sched.Add(config.JobPriceMonitor, priceMonitor, cfg.PriceMonitor.Interval())
	sched.Add(config.JobPositionChanges, positionChanges, cfg.PositionChanges.Interval())
	if len(cfg.AccountTracker.Accounts) > 0 {
		sched.Add(config.JobAccountTracker, accountTracker, cfg.AccountTracker.Interval())
	}
	sched.Add(config.JobStateSaver, saver, cfg.SaveInterval())
	store.SetScheduler(sched)

	webServer := web.NewServer(cfg.WebPort, store, client, alerts)
	go func() {
		if err := webServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("polymonitor started")
	_ = notifier.SendText(ctx, "Polymonitor started")

	// First ticks run before the scheduler starts so they cannot overlap
	// with a scheduled run of the same monitor.
	_ = priceMonitor.Run(ctx)
	if len(cfg.AccountTracker.Accounts) > 0 {
		_ = accountTracker.Run(ctx)
	}

	sched.Start(ctx)

	<-ctx.Done()
	slog.Info("shutdown signal received")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("web server shutdown failed", "error", err)
	}

	// Best effort: keep the state recoverable across the restart.
	saver.SaveAll()
	slog.Info("polymonitor stopped")
}
