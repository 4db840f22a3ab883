package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindFiles(t *testing.T, dir, kind string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), kind+"_") {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestPriceMonitorRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	lastPrices := map[string]float64{"t1": 0.42, "t2": 0.875}
	triggered := map[string]map[string]struct{}{
		"t1": {"above:0.8": {}, "below:0.2": {}},
		"t3": {"above:0.9": {}},
	}
	require.NoError(t, s.SavePriceMonitor(lastPrices, triggered))

	gotPrices, gotTriggered, err := s.LoadPriceMonitor(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, lastPrices, gotPrices)
	assert.Equal(t, triggered, gotTriggered)
}

func TestPositionChangesRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	snapshot := map[string]PositionSnapshot{
		"t1": {Title: "Will it happen?", Outcome: "Yes", Value: 123.45, Size: 100},
		"t2": {Title: "A title, with commas", Outcome: "No", Value: 0.5, Size: 2.5},
	}
	require.NoError(t, s.SavePositionChanges(snapshot))

	got, err := s.LoadPositionChanges(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, snapshot, got)
}

func TestPositionChangesLegacyRows(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	// A checkpoint from before the size column was added.
	name := KindPositionChanges + "_" + time.Now().UTC().Format(timeLayout) + ".csv"
	body := "token_id,title,outcome,value\nt1,Old,Yes,12.5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))

	got, err := s.LoadPositionChanges(time.Hour)
	require.NoError(t, err)
	require.Contains(t, got, "t1")
	assert.Equal(t, 12.5, got["t1"].Value)
	assert.Equal(t, 0.0, got["t1"].Size)
}

func TestAccountTrackerRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	lastSeen := map[string]string{"0xaaa": "1700000000", "0xbbb": "1700000100"}
	require.NoError(t, s.SaveAccountTracker(lastSeen))

	got, err := s.LoadAccountTracker(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, lastSeen, got)
}

func TestStaleCheckpointIgnored(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	name := KindAccountTracker + "_20200101_000000.csv"
	body := "address,last_seen\n0xaaa,100\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))

	got, err := s.LoadAccountTracker(time.Hour)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMissingDirectory(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope"))

	prices, triggered, err := s.LoadPriceMonitor(time.Hour)
	require.NoError(t, err)
	assert.Nil(t, prices)
	assert.Nil(t, triggered)
}

func TestSavePrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	// An older checkpoint and an abandoned temp file from a crashed write.
	old := KindAccountTracker + "_20200101_000000.csv"
	require.NoError(t, os.WriteFile(filepath.Join(dir, old), []byte("address,last_seen\n"), 0o644))
	tmp := KindAccountTracker + "_123.csv.tmp"
	require.NoError(t, os.WriteFile(filepath.Join(dir, tmp), []byte("partial"), 0o644))
	// A different kind is untouched by the prune.
	other := KindPriceMonitor + "_20200101_000000.csv"
	require.NoError(t, os.WriteFile(filepath.Join(dir, other), []byte("token_id,last_price,triggered\n"), 0o644))

	require.NoError(t, s.SaveAccountTracker(map[string]string{"0xaaa": "100"}))

	names := kindFiles(t, dir, KindAccountTracker)
	require.Len(t, names, 1)
	assert.True(t, strings.HasSuffix(names[0], ".csv"))
	assert.Len(t, kindFiles(t, dir, KindPriceMonitor), 1)
}

func TestFailedFinalizeKeepsPreviousCheckpoint(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	require.NoError(t, s.SaveAccountTracker(map[string]string{"0xaaa": "100"}))

	s.rename = func(oldpath, newpath string) error {
		return errors.New("boom")
	}
	require.Error(t, s.SaveAccountTracker(map[string]string{"0xaaa": "200"}))
	s.rename = os.Rename

	// The previous checkpoint is untouched and the failed write left no
	// temp file behind.
	got, err := s.LoadAccountTracker(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0xaaa": "100"}, got)
	names := kindFiles(t, dir, KindAccountTracker)
	require.Len(t, names, 1)
	assert.False(t, strings.HasSuffix(names[0], ".tmp"))
}

func TestEmptyStateRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())

	require.NoError(t, s.SavePriceMonitor(nil, nil))

	prices, triggered, err := s.LoadPriceMonitor(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, prices)
	assert.Empty(t, triggered)
}
