package memory

import (
	"fmt"
	"log"
	"time"

	"gopkg.in/yaml.v3"
)

// PerformanceThresholds are the elapsed-time ceilings that make the
// façade log a warning without failing the call that exceeded them.
type PerformanceThresholds struct {
	MemoryOperationTime      time.Duration
	LogWriteTime             time.Duration
	AnalyticsCalculationTime time.Duration
}

func (p PerformanceThresholds) withDefaults() PerformanceThresholds {
	if p.MemoryOperationTime <= 0 {
		p.MemoryOperationTime = 50 * time.Millisecond
	}
	if p.LogWriteTime <= 0 {
		p.LogWriteTime = 20 * time.Millisecond
	}
	if p.AnalyticsCalculationTime <= 0 {
		p.AnalyticsCalculationTime = 200 * time.Millisecond
	}
	return p
}

// Config is constructed by the embedding caller and passed to
// NewManager, mirroring the teacher's notifications.Config /
// persistence.NewJSONStore(filepath) pattern: a plain struct, no file
// parser owned by this package (spec.md's Non-goals exclude a CLI/
// HTTP config surface). LoadConfig below decodes the YAML document
// shape spec.md §6 names (storageBasePath, retentionDays, ...,
// performanceThresholds.*TimeMs) for a caller that already has the
// bytes in hand.
type Config struct {
	// StorageBasePath is the root directory B the spec's filesystem
	// layout (§4.1) is rooted at.
	StorageBasePath string

	// RetentionDays controls when a completed JobMemory is archived
	// by Cleanup. Zero selects a default of 90.
	RetentionDays int
	// LogRetentionDays controls when rotated runtime log files are
	// deleted by Cleanup. Zero selects a default of 30.
	LogRetentionDays int

	// CompressionEnabled gates compressOldMemories; when false it is
	// a documented no-op returning 0.
	CompressionEnabled bool
	// AnalyticsEnabled gates whether CompleteJobMemory triggers
	// CalculateJobAnalytics as a side effect.
	AnalyticsEnabled bool
	// AutoPromoteGotchas gates whether CompleteJobMemory forwards
	// eligible gotchas to the attached KnowledgeStore.
	AutoPromoteGotchas bool
	// DesktopAlertsEnabled gates the optional notify.CriticalAlerter
	// hook (§4.7). Disabled by default.
	DesktopAlertsEnabled bool

	Thresholds PerformanceThresholds

	// Logger receives every instrumented event this façade emits.
	// Defaults to log.Default().
	Logger *log.Logger
}

func (c Config) withDefaults() Config {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.LogRetentionDays <= 0 {
		c.LogRetentionDays = 30
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	c.Thresholds = c.Thresholds.withDefaults()
	return c
}

// yamlThresholds mirrors spec.md §6's performanceThresholds option
// names, which are expressed in whole milliseconds rather than a
// time.Duration-parseable string.
type yamlThresholds struct {
	MemoryOperationTimeMs      int `yaml:"memoryOperationTimeMs"`
	LogWriteTimeMs             int `yaml:"logWriteTimeMs"`
	AnalyticsCalculationTimeMs int `yaml:"analyticsCalculationTimeMs"`
}

// yamlConfig is the on-the-wire shape LoadConfig decodes, using the
// exact option names spec.md §6 lists.
type yamlConfig struct {
	StorageBasePath      string         `yaml:"storageBasePath"`
	RetentionDays        int            `yaml:"retentionDays"`
	LogRetentionDays     int            `yaml:"logRetentionDays"`
	CompressionEnabled   bool           `yaml:"compressionEnabled"`
	AnalyticsEnabled     bool           `yaml:"analyticsEnabled"`
	AutoPromoteGotchas   bool           `yaml:"autoPromoteGotchas"`
	DesktopAlertsEnabled bool           `yaml:"desktopAlertsEnabled"`
	Thresholds           yamlThresholds `yaml:"performanceThresholds"`
}

// LoadConfig decodes a YAML document — e.g. the body of a caller's own
// config file — into a Config, following spec.md §6's option table.
// This is a pure decode step: no file I/O and no flag parsing, both of
// which stay with the embedding caller, matching the CLI/config-file
// surface spec.md's Non-goals exclude from this module.
func LoadConfig(data []byte) (Config, error) {
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Config{}, fmt.Errorf("decoding memory.Config: %w", err)
	}
	return Config{
		StorageBasePath:      y.StorageBasePath,
		RetentionDays:        y.RetentionDays,
		LogRetentionDays:     y.LogRetentionDays,
		CompressionEnabled:   y.CompressionEnabled,
		AnalyticsEnabled:     y.AnalyticsEnabled,
		AutoPromoteGotchas:   y.AutoPromoteGotchas,
		DesktopAlertsEnabled: y.DesktopAlertsEnabled,
		Thresholds: PerformanceThresholds{
			MemoryOperationTime:      time.Duration(y.Thresholds.MemoryOperationTimeMs) * time.Millisecond,
			LogWriteTime:             time.Duration(y.Thresholds.LogWriteTimeMs) * time.Millisecond,
			AnalyticsCalculationTime: time.Duration(y.Thresholds.AnalyticsCalculationTimeMs) * time.Millisecond,
		},
	}, nil
}
