package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/xwjdsh/polymonitor/internal/config"
	"github.com/xwjdsh/polymonitor/internal/service/polymarket"
)

const activityFetchLimit = 50

// AccountTracker alerts on new on-chain actions of tracked accounts. Each
// address carries a cursor holding the last seen activity timestamp; only
// strictly newer activity is reported and the cursor only moves forward.
type AccountTracker struct {
	client polymarket.Service
	cfg    *config.Store
	opts   options
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[string]string
}

func NewAccountTracker(client polymarket.Service, cfg *config.Store, opts ...Option) *AccountTracker {
	return &AccountTracker{
		client:   client,
		cfg:      cfg,
		opts:     newOptions(opts...),
		now:      time.Now,
		lastSeen: make(map[string]string),
	}
}

func (m *AccountTracker) Name() string {
	return "account tracker"
}

func (m *AccountTracker) Run(ctx context.Context) error {
	cfg := m.cfg.Current()
	for _, account := range cfg.AccountTracker.Accounts {
		if err := m.checkAccount(ctx, account); err != nil {
			slog.Error("account tracker check failed", "label", account.Label, "error", err)
		}
	}
	return nil
}

func (m *AccountTracker) checkAccount(ctx context.Context, account config.TrackedAccount) error {
	m.mu.Lock()
	cursor, ok := m.lastSeen[account.Address]
	m.mu.Unlock()

	if !ok {
		// First sight of this address: start from now instead of flooding
		// with its whole history.
		start := strconv.FormatInt(m.now().Unix(), 10)
		m.mu.Lock()
		m.lastSeen[account.Address] = start
		m.mu.Unlock()
		slog.Info("account tracker: cursor initialized", "label", account.Label, "cursor", start)
		return nil
	}

	activities, err := m.client.GetActivity(ctx, account.Address, cursor, activityFetchLimit)
	if err != nil {
		return err
	}

	cursorTS := timestampValue(cursor)
	fresh := lo.Filter(activities, func(a polymarket.Activity, _ int) bool {
		return a.Timestamp.Int() > cursorTS
	})
	if len(fresh) == 0 {
		return nil
	}

	// Advance the cursor once, to the newest timestamp of this batch. A
	// crash mid-batch replays a few alerts on the next tick instead of
	// losing any.
	latest := fresh[0].Timestamp
	for _, a := range fresh[1:] {
		if a.Timestamp.Int() > latest.Int() {
			latest = a.Timestamp
		}
	}
	m.mu.Lock()
	m.lastSeen[account.Address] = string(latest)
	m.mu.Unlock()

	for _, a := range fresh {
		msg := fmt.Sprintf(
			"*Account Activity*\n\n*%s* (`%s...`)\n\nType: %s | Side: %s\nMarket: %s\n%s - %s\nAmount: %.2f shares @ $%.2f\nValue: $%.2f\nTime: %s",
			account.Label, shortAddr(account.Address),
			a.Type, a.Side, a.EventTitle, a.Title, a.Outcome,
			a.Tokens, a.Price, a.Cash, a.Timestamp,
		)
		m.opts.notifyText(ctx, msg)
		m.opts.record(ctx, config.JobAccountTracker, account.Address, a.Title, msg, a.Cash)
	}
	return nil
}

// timestampValue parses a cursor; malformed values compare as 0, sorting
// before any real timestamp.
func timestampValue(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (m *AccountTracker) ExportState() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lastSeen := make(map[string]string, len(m.lastSeen))
	for addr, ts := range m.lastSeen {
		lastSeen[addr] = ts
	}
	return lastSeen
}

func (m *AccountTracker) ImportState(lastSeen map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSeen = make(map[string]string, len(lastSeen))
	for addr, ts := range lastSeen {
		m.lastSeen[addr] = ts
	}
}
