package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/xwjdsh/polymonitor/internal/checkpoint"
	"github.com/xwjdsh/polymonitor/internal/config"
	"github.com/xwjdsh/polymonitor/internal/service/polymarket"
)

// PositionChanges reports material value changes of held positions since the
// previous tick, aggregated into one message per wallet.
type PositionChanges struct {
	client polymarket.Service
	cfg    *config.Store
	opts   options

	mu       sync.Mutex
	snapshot map[string]checkpoint.PositionSnapshot
}

func NewPositionChanges(client polymarket.Service, cfg *config.Store, opts ...Option) *PositionChanges {
	return &PositionChanges{
		client:   client,
		cfg:      cfg,
		opts:     newOptions(opts...),
		snapshot: make(map[string]checkpoint.PositionSnapshot),
	}
}

func (m *PositionChanges) Name() string {
	return "position changes"
}

func (m *PositionChanges) Run(ctx context.Context) error {
	cfg := m.cfg.Current()
	for _, wallet := range cfg.MyWallets {
		if err := m.checkWallet(ctx, wallet, cfg.PositionChanges); err != nil {
			slog.Error("position changes wallet check failed", "wallet", wallet, "error", err)
		}
	}
	return nil
}

type changeEntry struct {
	change float64 // absolute magnitude, used for ordering
	line   string
}

func (m *PositionChanges) checkWallet(ctx context.Context, wallet string, cfg config.PositionChangesConfig) error {
	// A failed fetch returns before any state is touched, so missing data is
	// never mistaken for closed positions.
	positions, err := m.client.GetPositions(ctx, wallet)
	if err != nil {
		return err
	}
	slog.Info("position changes: checking positions", "wallet", wallet, "count", len(positions))

	var entries []changeEntry
	var total float64

	m.mu.Lock()
	currentIDs := make(map[string]struct{}, len(positions))
	for _, pos := range positions {
		if pos.TokenID == "" {
			continue
		}
		currentIDs[pos.TokenID] = struct{}{}

		prev, seen := m.snapshot[pos.TokenID]
		if seen {
			if prev.Size > 0 && pos.Size != prev.Size {
				// Quantity changed: the value moved because of a buy or
				// sell, not a market move.
				slog.Debug("position quantity changed, updating silently",
					"title", pos.Title, "outcome", pos.Outcome,
					"prev_size", prev.Size, "size", pos.Size)
				m.snapshot[pos.TokenID] = snapshotOf(pos)
				continue
			}
			change := pos.CurrentValue - prev.Value
			threshold := cfg.DefaultThreshold
			if market, ok := cfg.PerMarket[pos.ConditionID]; ok && market.Threshold != nil {
				threshold = *market.Threshold
			}
			if math.Abs(change) > threshold {
				total += change
				entries = append(entries, changeEntry{
					change: math.Abs(change),
					line: fmt.Sprintf("• %s [%s]\n  $%.2f → $%.2f (%+.2f)",
						pos.Title, pos.Outcome, prev.Value, pos.CurrentValue, change),
				})
			}
		}
		m.snapshot[pos.TokenID] = snapshotOf(pos)
	}

	// Positions in the snapshot but not in this fetch were closed.
	for id, snap := range m.snapshot {
		if _, held := currentIDs[id]; held {
			continue
		}
		entries = append(entries, changeEntry{
			change: snap.Value,
			line:   fmt.Sprintf("• %s [%s]\n  $%.2f → CLOSED", snap.Title, snap.Outcome, snap.Value),
		})
		total -= snap.Value
		delete(m.snapshot, id)
	}
	m.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	// Largest moves first.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].change > entries[j].change
	})
	lines := lo.Map(entries, func(e changeEntry, _ int) string {
		return e.line
	})

	msg := fmt.Sprintf("<b>Position Changes</b>\n<code>%s...</code>\n\n%s\n\n<b>Net change:</b> $%+.2f",
		shortAddr(wallet), strings.Join(lines, "\n\n"), total)
	m.opts.notifyHTML(ctx, msg)
	m.opts.record(ctx, config.JobPositionChanges, wallet, "position changes", msg, total)
	return nil
}

func snapshotOf(pos polymarket.Position) checkpoint.PositionSnapshot {
	return checkpoint.PositionSnapshot{
		Title:   pos.Title,
		Outcome: pos.Outcome,
		Value:   pos.CurrentValue,
		Size:    pos.Size,
	}
}

func (m *PositionChanges) ExportState() map[string]checkpoint.PositionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string]checkpoint.PositionSnapshot, len(m.snapshot))
	for id, snap := range m.snapshot {
		snapshot[id] = snap
	}
	return snapshot
}

func (m *PositionChanges) ImportState(snapshot map[string]checkpoint.PositionSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot = make(map[string]checkpoint.PositionSnapshot, len(snapshot))
	for id, snap := range snapshot {
		m.snapshot[id] = snap
	}
}
