package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/samber/lo"
	"github.com/xwjdsh/polymonitor/internal/config"
	"github.com/xwjdsh/polymonitor/internal/service/polymarket"
)

// PriceMonitor watches the prices of held tokens. It fires on configured
// level crossings (with hysteresis, so an oscillating price alerts once per
// crossing) and on price moves larger than the change threshold.
type PriceMonitor struct {
	client polymarket.Service
	cfg    *config.Store
	opts   options

	mu         sync.Mutex
	lastPrices map[string]float64
	triggered  map[string]map[string]struct{}
}

func NewPriceMonitor(client polymarket.Service, cfg *config.Store, opts ...Option) *PriceMonitor {
	return &PriceMonitor{
		client:     client,
		cfg:        cfg,
		opts:       newOptions(opts...),
		lastPrices: make(map[string]float64),
		triggered:  make(map[string]map[string]struct{}),
	}
}

func (m *PriceMonitor) Name() string {
	return "price monitor"
}

func (m *PriceMonitor) Run(ctx context.Context) error {
	cfg := m.cfg.Current()
	for _, wallet := range cfg.MyWallets {
		if err := m.checkWallet(ctx, wallet, cfg.PriceMonitor); err != nil {
			slog.Error("price monitor wallet check failed", "wallet", wallet, "error", err)
		}
	}
	return nil
}

func (m *PriceMonitor) checkWallet(ctx context.Context, wallet string, cfg config.PriceMonitorConfig) error {
	positions, err := m.client.GetPositions(ctx, wallet)
	if err != nil {
		return err
	}
	tokens := lo.Filter(positions, func(p polymarket.Position, _ int) bool {
		return p.TokenID != ""
	})
	if len(tokens) == 0 {
		return nil
	}
	slog.Info("price monitor: fetching prices", "wallet", wallet, "tokens", len(tokens))

	for _, pos := range tokens {
		price, err := m.client.GetMidpoint(ctx, pos.TokenID)
		if err != nil {
			slog.Warn("failed to get midpoint", "token_id", pos.TokenID, "error", err)
			continue
		}
		for _, alert := range m.observe(pos, price, cfg) {
			m.opts.notifyHTML(ctx, alert.message)
			m.opts.record(ctx, config.JobPriceMonitor, pos.TokenID, pos.Title, alert.message, alert.value)
		}
	}
	return nil
}

type firedAlert struct {
	message string
	value   float64
}

// observe applies both alert rules to one price sample and updates the state.
// Alerts are collected under the lock and delivered by the caller.
func (m *PriceMonitor) observe(pos polymarket.Position, price float64, cfg config.PriceMonitorConfig) []firedAlert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var fired []firedAlert

	last, seen := m.lastPrices[pos.TokenID]
	m.lastPrices[pos.TokenID] = price

	market, hasMarket := cfg.PerMarket[pos.ConditionID]
	if hasMarket {
		fired = append(fired, m.checkLevels(pos, price, market)...)
	}

	// The change rule needs a previous observation; the first sample for a
	// token only seeds the state.
	if !seen {
		return fired
	}

	threshold := cfg.DefaultThreshold
	if hasMarket && market.Threshold != nil {
		threshold = *market.Threshold
	}
	change := price - last
	if math.Abs(change) >= threshold {
		direction := "UP"
		if change < 0 {
			direction = "DOWN"
		}
		msg := fmt.Sprintf(
			"<b>Price Alert</b> %s\n\n<b>%s</b>\n%s - %s\n\n%.2f → %.2f (%+.1f%%)\n%.2f shares",
			direction, pos.EventTitle, pos.Title, pos.Outcome, last, price, change*100, pos.Size,
		)
		fired = append(fired, firedAlert{message: msg, value: price})
	}
	return fired
}

// checkLevels runs the hysteresis state machine for the market's fixed
// levels. A level fires on the crossing into the armed state and stays silent
// until the price leaves it again. Callers hold m.mu.
func (m *PriceMonitor) checkLevels(pos polymarket.Position, price float64, market config.PriceAlert) []firedAlert {
	set := m.triggered[pos.TokenID]
	if set == nil {
		set = make(map[string]struct{})
		m.triggered[pos.TokenID] = set
	}

	var fired []firedAlert

	if market.Above != nil {
		key := levelKey("above", *market.Above)
		if price >= *market.Above {
			if _, armed := set[key]; !armed {
				set[key] = struct{}{}
				msg := fmt.Sprintf(
					"<b>Take Profit Alert</b>\n\n<b>%s</b>\n%s - %s\n\n%.2f crossed above %.2f\n%.2f shares",
					pos.EventTitle, pos.Title, pos.Outcome, price, *market.Above, pos.Size,
				)
				fired = append(fired, firedAlert{message: msg, value: price})
			}
		} else {
			delete(set, key)
		}
	}

	if market.Below != nil {
		key := levelKey("below", *market.Below)
		if price <= *market.Below {
			if _, armed := set[key]; !armed {
				set[key] = struct{}{}
				msg := fmt.Sprintf(
					"<b>Stop Loss Alert</b>\n\n<b>%s</b>\n%s - %s\n\n%.2f crossed below %.2f\n%.2f shares",
					pos.EventTitle, pos.Title, pos.Outcome, price, *market.Below, pos.Size,
				)
				fired = append(fired, firedAlert{message: msg, value: price})
			}
		} else {
			delete(set, key)
		}
	}
	return fired
}

func levelKey(direction string, level float64) string {
	return direction + ":" + strconv.FormatFloat(level, 'g', -1, 64)
}

// ExportState returns deep copies, so a checkpoint save never observes a tick
// mid-update.
func (m *PriceMonitor) ExportState() (map[string]float64, map[string]map[string]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lastPrices := make(map[string]float64, len(m.lastPrices))
	for id, p := range m.lastPrices {
		lastPrices[id] = p
	}
	triggered := make(map[string]map[string]struct{}, len(m.triggered))
	for id, set := range m.triggered {
		cp := make(map[string]struct{}, len(set))
		for key := range set {
			cp[key] = struct{}{}
		}
		triggered[id] = cp
	}
	return lastPrices, triggered
}

// ImportState replaces the monitor's state wholesale, typically from a fresh
// checkpoint during startup.
func (m *PriceMonitor) ImportState(lastPrices map[string]float64, triggered map[string]map[string]struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPrices = make(map[string]float64, len(lastPrices))
	for id, p := range lastPrices {
		m.lastPrices[id] = p
	}
	m.triggered = make(map[string]map[string]struct{}, len(triggered))
	for id, set := range triggered {
		cp := make(map[string]struct{}, len(set))
		for key := range set {
			cp[key] = struct{}{}
		}
		m.triggered[id] = cp
	}
}
