package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const monitorsFile = "monitors.yaml"

// MonitorSections holds the mutable monitor sections of the config. Runtime
// edits touch only these, so static settings like the telegram credentials
// never round-trip through the side file.
type MonitorSections struct {
	PriceMonitor    *PriceMonitorConfig    `yaml:"price_monitor,omitempty" json:"price_monitor,omitempty"`
	PositionChanges *PositionChangesConfig `yaml:"position_changes,omitempty" json:"position_changes,omitempty"`
	AccountTracker  *AccountTrackerConfig  `yaml:"account_tracker,omitempty" json:"account_tracker,omitempty"`
}

// Sections returns the mutable sections of c.
func (c *AppConfig) Sections() MonitorSections {
	return MonitorSections{
		PriceMonitor:    &c.PriceMonitor,
		PositionChanges: &c.PositionChanges,
		AccountTracker:  &c.AccountTracker,
	}
}

// UnmarshalJSON decodes each submitted section over that section's defaults,
// so a field omitted from a partial section keeps its default value instead of
// being zeroed.
func (s *MonitorSections) UnmarshalJSON(data []byte) error {
	var raw struct {
		PriceMonitor    json.RawMessage `json:"price_monitor"`
		PositionChanges json.RawMessage `json:"position_changes"`
		AccountTracker  json.RawMessage `json:"account_tracker"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	def := Default()
	if present(raw.PriceMonitor) {
		section := def.PriceMonitor
		if err := json.Unmarshal(raw.PriceMonitor, &section); err != nil {
			return err
		}
		s.PriceMonitor = &section
	}
	if present(raw.PositionChanges) {
		section := def.PositionChanges
		if err := json.Unmarshal(raw.PositionChanges, &section); err != nil {
			return err
		}
		s.PositionChanges = &section
	}
	if present(raw.AccountTracker) {
		section := def.AccountTracker
		if err := json.Unmarshal(raw.AccountTracker, &section); err != nil {
			return err
		}
		s.AccountTracker = &section
	}
	return nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// ApplySections replaces the sections present in s, leaving the rest of the
// config untouched.
func (c *AppConfig) ApplySections(s MonitorSections) {
	if s.PriceMonitor != nil {
		c.PriceMonitor = *s.PriceMonitor
	}
	if s.PositionChanges != nil {
		c.PositionChanges = *s.PositionChanges
	}
	if s.AccountTracker != nil {
		c.AccountTracker = *s.AccountTracker
	}
}

// SaveMonitors writes the three monitor sections to {stateDir}/monitors.yaml.
func SaveMonitors(cfg *AppConfig, stateDir string) error {
	data, err := yaml.Marshal(cfg.Sections())
	if err != nil {
		return fmt.Errorf("marshal monitor sections: %w", err)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(stateDir, monitorsFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// LoadMonitorsOverride reads {stateDir}/monitors.yaml if it exists. A missing
// file is not an error, it just means no runtime edits were ever saved.
func LoadMonitorsOverride(stateDir string) (MonitorSections, error) {
	var sections MonitorSections
	path := filepath.Join(stateDir, monitorsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sections, nil
		}
		return sections, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return MonitorSections{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return sections, nil
}
