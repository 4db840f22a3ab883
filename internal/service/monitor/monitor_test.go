package monitor

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xwjdsh/polymonitor/internal/config"
	"github.com/xwjdsh/polymonitor/internal/service/polymarket"
)

type stubClient struct {
	positions func(ctx context.Context, wallet string) ([]polymarket.Position, error)
	midpoint  func(ctx context.Context, tokenID string) (float64, error)
	activity  func(ctx context.Context, wallet, since string, limit int) ([]polymarket.Activity, error)
}

func (c *stubClient) GetPositions(ctx context.Context, wallet string) ([]polymarket.Position, error) {
	if c.positions == nil {
		return nil, nil
	}
	return c.positions(ctx, wallet)
}

func (c *stubClient) GetMidpoint(ctx context.Context, tokenID string) (float64, error) {
	if c.midpoint == nil {
		return 0, nil
	}
	return c.midpoint(ctx, tokenID)
}

func (c *stubClient) GetActivity(ctx context.Context, wallet, since string, limit int) ([]polymarket.Activity, error) {
	if c.activity == nil {
		return nil, nil
	}
	return c.activity(ctx, wallet, since, limit)
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
	htmls []string
}

func (n *recordingNotifier) SendText(ctx context.Context, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, body)
	return nil
}

func (n *recordingNotifier) SendHTML(ctx context.Context, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.htmls = append(n.htmls, body)
	return nil
}

func newTestStore(t *testing.T, mutate func(cfg *config.AppConfig)) *config.Store {
	t.Helper()
	cfg := config.Default()
	cfg.StateDir = t.TempDir()
	cfg.MyWallets = []string{"0xwallet0000000000"}
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())
	return config.NewStore(cfg)
}

func fptr(v float64) *float64 {
	return &v
}
