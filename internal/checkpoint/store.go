// Package checkpoint persists each monitor's in-memory state as a CSV
// snapshot and restores it after a restart, provided the snapshot is fresh
// enough to resume from.
package checkpoint

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Checkpoint kinds. They double as the file name prefixes.
const (
	KindPriceMonitor    = "price_monitor"
	KindPositionChanges = "position_changes"
	KindAccountTracker  = "account_tracker"
)

const timeLayout = "20060102_150405"

// PositionSnapshot is the last observed state of one held token.
type PositionSnapshot struct {
	Title   string
	Outcome string
	Value   float64
	Size    float64
}

// Store reads and writes checkpoint files under one directory. At most one
// live file exists per kind; the file name encodes the creation time in UTC,
// so "latest" is simply the greatest name.
type Store struct {
	dir    string
	rename func(oldpath, newpath string) error
}

func NewStore(dir string) *Store {
	return &Store{dir: dir, rename: os.Rename}
}

// write snapshots rows to a fresh kind file. The new file is written to a
// temp name and renamed into place before older files of the kind are pruned,
// so a crash mid-write always leaves the previous checkpoint readable.
func (s *Store) write(kind string, header []string, rows [][]string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	target := filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", kind, time.Now().UTC().Format(timeLayout)))

	tmp, err := os.CreateTemp(s.dir, kind+"_*.csv.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	w := csv.NewWriter(tmp)
	err = w.Write(header)
	if err == nil {
		err = w.WriteAll(rows)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint %s: %w", kind, err)
	}

	if err := s.rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("finalize checkpoint %s: %w", kind, err)
	}

	s.prune(kind, filepath.Base(target))
	slog.Info("saved checkpoint", "kind", kind, "path", target)
	return nil
}

// prune removes every file of the kind except keep, including abandoned temp
// files from failed writes.
func (s *Store) prune(kind, keep string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if name == keep || !strings.HasPrefix(name, kind+"_") {
			continue
		}
		if !strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".csv.tmp") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			slog.Warn("failed to remove old checkpoint", "path", name, "error", err)
		}
	}
}

// latest returns the newest checkpoint file of the kind, or ok=false when
// none exists.
func (s *Store) latest(kind string) (path string, created time.Time, ok bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", time.Time{}, false
	}
	var best string
	var bestTime time.Time
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, kind+"_") || !strings.HasSuffix(name, ".csv") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, kind+"_"), ".csv")
		ts, err := time.ParseInLocation(timeLayout, stamp, time.UTC)
		if err != nil {
			continue
		}
		if best == "" || name > best {
			best = name
			bestTime = ts
		}
	}
	if best == "" {
		return "", time.Time{}, false
	}
	return filepath.Join(s.dir, best), bestTime, true
}

// read returns the data rows of the latest checkpoint of the kind, or nil
// when there is no checkpoint fresh enough to resume from. maxAge is the
// caller's freshness window, normally 2 * max(monitor interval, save
// interval).
func (s *Store) read(kind string, maxAge time.Duration) ([][]string, error) {
	path, created, ok := s.latest(kind)
	if !ok {
		return nil, nil
	}
	if age := time.Since(created); age > maxAge {
		slog.Info("checkpoint is stale, starting fresh", "kind", kind, "age", age, "max_age", maxAge)
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %s: %w", kind, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", kind, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	slog.Info("loaded checkpoint", "kind", kind, "path", path, "rows", len(records)-1)
	return records[1:], nil
}

// SavePriceMonitor persists the price monitor's last prices and armed level
// keys. A token appears when it has either a price or armed levels.
func (s *Store) SavePriceMonitor(lastPrices map[string]float64, triggered map[string]map[string]struct{}) error {
	ids := make(map[string]struct{}, len(lastPrices)+len(triggered))
	for id := range lastPrices {
		ids[id] = struct{}{}
	}
	for id := range triggered {
		ids[id] = struct{}{}
	}

	rows := make([][]string, 0, len(ids))
	for _, id := range sortedKeys(ids) {
		price := ""
		if p, ok := lastPrices[id]; ok {
			price = strconv.FormatFloat(p, 'g', -1, 64)
		}
		rows = append(rows, []string{id, price, joinLevelKeys(triggered[id])})
	}
	return s.write(KindPriceMonitor, []string{"token_id", "last_price", "triggered"}, rows)
}

// LoadPriceMonitor restores the price monitor state, or returns nil maps when
// no fresh checkpoint exists.
func (s *Store) LoadPriceMonitor(maxAge time.Duration) (map[string]float64, map[string]map[string]struct{}, error) {
	rows, err := s.read(KindPriceMonitor, maxAge)
	if err != nil || rows == nil {
		return nil, nil, err
	}
	lastPrices := make(map[string]float64)
	triggered := make(map[string]map[string]struct{})
	for _, row := range rows {
		if len(row) < 3 {
			return nil, nil, fmt.Errorf("checkpoint %s: malformed row %q", KindPriceMonitor, row)
		}
		id := row[0]
		if row[1] != "" {
			p, err := strconv.ParseFloat(row[1], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("checkpoint %s: bad price for %s: %w", KindPriceMonitor, id, err)
			}
			lastPrices[id] = p
		}
		if row[2] != "" {
			set := make(map[string]struct{})
			for _, key := range strings.Split(row[2], ",") {
				set[key] = struct{}{}
			}
			triggered[id] = set
		}
	}
	return lastPrices, triggered, nil
}

// SavePositionChanges persists the position snapshot map.
func (s *Store) SavePositionChanges(snapshot map[string]PositionSnapshot) error {
	rows := make([][]string, 0, len(snapshot))
	for _, id := range sortedKeys(snapshot) {
		snap := snapshot[id]
		rows = append(rows, []string{
			id,
			snap.Title,
			snap.Outcome,
			strconv.FormatFloat(snap.Value, 'g', -1, 64),
			strconv.FormatFloat(snap.Size, 'g', -1, 64),
		})
	}
	return s.write(KindPositionChanges, []string{"token_id", "title", "outcome", "value", "size"}, rows)
}

// LoadPositionChanges restores the position snapshot map. Rows written by the
// pre-size schema load with a zero size.
func (s *Store) LoadPositionChanges(maxAge time.Duration) (map[string]PositionSnapshot, error) {
	rows, err := s.read(KindPositionChanges, maxAge)
	if err != nil || rows == nil {
		return nil, err
	}
	snapshot := make(map[string]PositionSnapshot, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			return nil, fmt.Errorf("checkpoint %s: malformed row %q", KindPositionChanges, row)
		}
		value, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: bad value for %s: %w", KindPositionChanges, row[0], err)
		}
		var size float64
		if len(row) > 4 && row[4] != "" {
			size, err = strconv.ParseFloat(row[4], 64)
			if err != nil {
				return nil, fmt.Errorf("checkpoint %s: bad size for %s: %w", KindPositionChanges, row[0], err)
			}
		}
		snapshot[row[0]] = PositionSnapshot{Title: row[1], Outcome: row[2], Value: value, Size: size}
	}
	return snapshot, nil
}

// SaveAccountTracker persists the per-address activity cursors.
func (s *Store) SaveAccountTracker(lastSeen map[string]string) error {
	rows := make([][]string, 0, len(lastSeen))
	for _, addr := range sortedKeys(lastSeen) {
		rows = append(rows, []string{addr, lastSeen[addr]})
	}
	return s.write(KindAccountTracker, []string{"address", "last_seen"}, rows)
}

// LoadAccountTracker restores the per-address activity cursors.
func (s *Store) LoadAccountTracker(maxAge time.Duration) (map[string]string, error) {
	rows, err := s.read(KindAccountTracker, maxAge)
	if err != nil || rows == nil {
		return nil, err
	}
	lastSeen := make(map[string]string, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("checkpoint %s: malformed row %q", KindAccountTracker, row)
		}
		lastSeen[row[0]] = row[1]
	}
	return lastSeen, nil
}

func joinLevelKeys(set map[string]struct{}) string {
	if len(set) == 0 {
		return ""
	}
	return strings.Join(sortedKeys(set), ",")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
