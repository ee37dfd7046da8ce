package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dbrepl/dbrepl/pkg/dbconn"
	"github.com/dbrepl/dbrepl/pkg/mask"
)

// Mode selects how table data is replicated.
type Mode string

const (
	// ModeFull truncates each target table before loading.
	ModeFull Mode = "full"
	// ModeIncremental is accepted by the configuration but has no enacting
	// logic; Run rejects it explicitly.
	ModeIncremental Mode = "incremental"
)

// ConflictResolution is a declared strategy with no enacting logic.
type ConflictResolution string

const (
	SourceWins ConflictResolution = "source-wins"
	TargetWins ConflictResolution = "target-wins"
	NewerWins  ConflictResolution = "newer-wins"
	Fail       ConflictResolution = "fail"
)

// Checkpoint settings are declared placeholders; nothing reads them.
type Checkpoint struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Config is the fully-resolved replication configuration. Credential
// resolution, file discovery and environment overlays happen before this
// struct is built.
type Config struct {
	Source dbconn.Endpoint `yaml:"source"`
	Target dbconn.Endpoint `yaml:"target"`

	Mode                 Mode `yaml:"mode"`
	SyncSchema           bool `yaml:"syncSchema"`
	PreviewSchemaChanges bool `yaml:"previewSchemaChanges"`
	BatchSize            int  `yaml:"batchSize"`

	// MaxRetryAttempts and RetryDelayMs apply to endpoint validation only;
	// statement execution is never retried.
	MaxRetryAttempts int `yaml:"maxRetryAttempts"`
	RetryDelayMs     int `yaml:"retryDelayMs"`

	ConflictResolution ConflictResolution `yaml:"conflictResolution,omitempty"`

	IncludeSchemas []string `yaml:"includeSchemas,omitempty"`
	ExcludeSchemas []string `yaml:"excludeSchemas,omitempty"`
	IncludeTables  []string `yaml:"includeTables,omitempty"`
	ExcludeTables  []string `yaml:"excludeTables,omitempty"`

	// ParallelThreads > 1 enables the bounded worker pool over the table
	// list; 1 or 0 keeps the sequential loop.
	ParallelThreads int `yaml:"parallelThreads"`

	Checkpoint Checkpoint `yaml:"checkpoint,omitempty"`

	MaskingRules []mask.Rule `yaml:"maskingRules,omitempty"`
}

// Load reads a configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeFull
	}
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
}

// Validate checks the invariants the core relies on.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batchSize must be > 0, got %d", c.BatchSize)
	}
	switch c.Mode {
	case ModeFull, ModeIncremental:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Source.Host == "" || c.Target.Host == "" {
		return fmt.Errorf("source and target endpoints are required")
	}
	for _, r := range c.MaskingRules {
		switch r.Kind {
		case mask.FullMask, mask.PartialMask, mask.FixedValue, mask.CustomPattern:
		default:
			return fmt.Errorf("masking rule %s.%s: unknown kind %q", r.Table, r.Column, r.Kind)
		}
	}
	return nil
}
