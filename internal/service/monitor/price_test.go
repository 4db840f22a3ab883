package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xwjdsh/polymonitor/internal/config"
	"github.com/xwjdsh/polymonitor/internal/service/polymarket"
)

func singlePosition(tokenID, conditionID string) func(ctx context.Context, wallet string) ([]polymarket.Position, error) {
	return func(ctx context.Context, wallet string) ([]polymarket.Position, error) {
		return []polymarket.Position{{
			TokenID:     tokenID,
			ConditionID: conditionID,
			Title:       "Will it happen?",
			Outcome:     "Yes",
			EventTitle:  "Some Event",
			Size:        12,
		}}, nil
	}
}

func priceSequence(prices []float64) func(ctx context.Context, tokenID string) (float64, error) {
	i := 0
	return func(ctx context.Context, tokenID string) (float64, error) {
		p := prices[i]
		i++
		return p, nil
	}
}

func TestPriceMonitorLevelHysteresis(t *testing.T) {
	prices := []float64{0.79, 0.80, 0.80, 0.81, 0.79, 0.81}
	client := &stubClient{
		positions: singlePosition("t1", "c1"),
		midpoint:  priceSequence(prices),
	}
	store := newTestStore(t, func(cfg *config.AppConfig) {
		cfg.PriceMonitor.PerMarket = map[string]config.PriceAlert{
			"c1": {Above: fptr(0.80)},
		}
	})
	notifier := &recordingNotifier{}
	m := NewPriceMonitor(client, store, WithNotifier(notifier))

	for range prices {
		require.NoError(t, m.Run(context.Background()))
	}

	// Two crossings into the armed state: samples 2 and 6. The price sitting
	// at or above the level in between stays silent.
	require.Len(t, notifier.htmls, 2)
	for _, msg := range notifier.htmls {
		assert.Contains(t, msg, "crossed above 0.80")
	}
}

func TestPriceMonitorBelowLevelHysteresis(t *testing.T) {
	prices := []float64{0.25, 0.20, 0.25, 0.19}
	client := &stubClient{
		positions: singlePosition("t1", "c1"),
		midpoint:  priceSequence(prices),
	}
	store := newTestStore(t, func(cfg *config.AppConfig) {
		// High change threshold so only level alerts fire here.
		cfg.PriceMonitor.DefaultThreshold = 0.5
		cfg.PriceMonitor.PerMarket = map[string]config.PriceAlert{
			"c1": {Below: fptr(0.20)},
		}
	})
	notifier := &recordingNotifier{}
	m := NewPriceMonitor(client, store, WithNotifier(notifier))

	for range prices {
		require.NoError(t, m.Run(context.Background()))
	}

	require.Len(t, notifier.htmls, 2)
	for _, msg := range notifier.htmls {
		assert.Contains(t, msg, "crossed below 0.20")
	}
}

func TestPriceMonitorThresholdGating(t *testing.T) {
	prices := []float64{0.50, 0.56, 0.56}
	client := &stubClient{
		positions: singlePosition("t1", "c1"),
		midpoint:  priceSequence(prices),
	}
	store := newTestStore(t, nil) // default threshold 0.05
	notifier := &recordingNotifier{}
	m := NewPriceMonitor(client, store, WithNotifier(notifier))

	for range prices {
		require.NoError(t, m.Run(context.Background()))
	}

	// The first sample only seeds lastPrice; the second moves by 0.06 and
	// fires; the third does not move.
	require.Len(t, notifier.htmls, 1)
	assert.Contains(t, notifier.htmls[0], "Price Alert")
	assert.Contains(t, notifier.htmls[0], "UP")
}

func TestPriceMonitorPerMarketThresholdOverride(t *testing.T) {
	prices := []float64{0.50, 0.53}
	client := &stubClient{
		positions: singlePosition("t1", "c1"),
		midpoint:  priceSequence(prices),
	}
	store := newTestStore(t, func(cfg *config.AppConfig) {
		cfg.PriceMonitor.PerMarket = map[string]config.PriceAlert{
			"c1": {Threshold: fptr(0.02)},
		}
	})
	notifier := &recordingNotifier{}
	m := NewPriceMonitor(client, store, WithNotifier(notifier))

	for range prices {
		require.NoError(t, m.Run(context.Background()))
	}

	// 0.03 is under the 0.05 default but over the per-market override.
	require.Len(t, notifier.htmls, 1)
}

func TestPriceMonitorTokenFailureIsolation(t *testing.T) {
	client := &stubClient{
		positions: func(ctx context.Context, wallet string) ([]polymarket.Position, error) {
			return []polymarket.Position{
				{TokenID: "bad", ConditionID: "c1", Title: "A", Outcome: "Yes"},
				{TokenID: "good", ConditionID: "c2", Title: "B", Outcome: "No"},
			}, nil
		},
	}
	goodPrices := []float64{0.50, 0.60}
	i := 0
	client.midpoint = func(ctx context.Context, tokenID string) (float64, error) {
		if tokenID == "bad" {
			return 0, errors.New("boom")
		}
		p := goodPrices[i]
		i++
		return p, nil
	}
	store := newTestStore(t, nil)
	notifier := &recordingNotifier{}
	m := NewPriceMonitor(client, store, WithNotifier(notifier))

	require.NoError(t, m.Run(context.Background()))
	require.NoError(t, m.Run(context.Background()))

	// The failing token never blocks the healthy one.
	require.Len(t, notifier.htmls, 1)
	assert.True(t, strings.Contains(notifier.htmls[0], "B - No"))

	lastPrices, _ := m.ExportState()
	assert.NotContains(t, lastPrices, "bad")
	assert.Equal(t, 0.60, lastPrices["good"])
}

func TestPriceMonitorStateRoundTrip(t *testing.T) {
	store := newTestStore(t, nil)
	m := NewPriceMonitor(&stubClient{}, store)

	lastPrices := map[string]float64{"t1": 0.42}
	triggered := map[string]map[string]struct{}{
		"t1": {"above:0.8": {}},
	}
	m.ImportState(lastPrices, triggered)

	gotPrices, gotTriggered := m.ExportState()
	assert.Equal(t, lastPrices, gotPrices)
	assert.Equal(t, triggered, gotTriggered)

	// Exported maps are copies, not aliases.
	gotPrices["t1"] = 0.99
	delete(gotTriggered["t1"], "above:0.8")
	again, againTriggered := m.ExportState()
	assert.Equal(t, 0.42, again["t1"])
	assert.Contains(t, againTriggered["t1"], "above:0.8")
}
