package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/xwjdsh/polymonitor/internal/checkpoint"
	"github.com/xwjdsh/polymonitor/internal/config"
)

// StateSaver checkpoints all monitor states. It runs as a recurring task and
// once more during shutdown. A failure for one kind never blocks the others.
type StateSaver struct {
	store     *checkpoint.Store
	price     *PriceMonitor
	positions *PositionChanges
	accounts  *AccountTracker
}

func NewStateSaver(store *checkpoint.Store, price *PriceMonitor, positions *PositionChanges, accounts *AccountTracker) *StateSaver {
	return &StateSaver{
		store:     store,
		price:     price,
		positions: positions,
		accounts:  accounts,
	}
}

func (s *StateSaver) Name() string {
	return "state saver"
}

func (s *StateSaver) Run(ctx context.Context) error {
	s.SaveAll()
	return nil
}

func (s *StateSaver) SaveAll() {
	lastPrices, triggered := s.price.ExportState()
	if err := s.store.SavePriceMonitor(lastPrices, triggered); err != nil {
		slog.Error("failed to save checkpoint", "kind", checkpoint.KindPriceMonitor, "error", err)
	}
	if err := s.store.SavePositionChanges(s.positions.ExportState()); err != nil {
		slog.Error("failed to save checkpoint", "kind", checkpoint.KindPositionChanges, "error", err)
	}
	if err := s.store.SaveAccountTracker(s.accounts.ExportState()); err != nil {
		slog.Error("failed to save checkpoint", "kind", checkpoint.KindAccountTracker, "error", err)
	}
}

// Restore imports any checkpoint still inside its freshness window. A stale
// or missing checkpoint leaves the monitor bootstrapping fresh.
func (s *StateSaver) Restore(cfg *config.AppConfig) {
	saveInterval := cfg.SaveInterval()

	lastPrices, triggered, err := s.store.LoadPriceMonitor(freshness(cfg.PriceMonitor.Interval(), saveInterval))
	if err != nil {
		slog.Error("failed to load checkpoint", "kind", checkpoint.KindPriceMonitor, "error", err)
	} else if lastPrices != nil || triggered != nil {
		s.price.ImportState(lastPrices, triggered)
	}

	snapshot, err := s.store.LoadPositionChanges(freshness(cfg.PositionChanges.Interval(), saveInterval))
	if err != nil {
		slog.Error("failed to load checkpoint", "kind", checkpoint.KindPositionChanges, "error", err)
	} else if snapshot != nil {
		s.positions.ImportState(snapshot)
	}

	lastSeen, err := s.store.LoadAccountTracker(freshness(cfg.AccountTracker.Interval(), saveInterval))
	if err != nil {
		slog.Error("failed to load checkpoint", "kind", checkpoint.KindAccountTracker, "error", err)
	} else if lastSeen != nil {
		s.accounts.ImportState(lastSeen)
	}
}

// freshness is the one checkpoint-recovery policy: a checkpoint is usable
// while younger than twice the larger of the monitor interval and the save
// interval.
func freshness(interval, saveInterval time.Duration) time.Duration {
	return 2 * max(interval, saveInterval)
}
