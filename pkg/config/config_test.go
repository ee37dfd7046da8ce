package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dbrepl/dbrepl/pkg/mask"
)

const sampleYAML = `
source:
  driver: mysql
  host: src.internal
  port: 3306
  database: app
  user: replica
  password: s3cret
target:
  driver: mysql
  host: dst.internal
  port: 3306
  database: app
  user: loader
  password: other
mode: full
syncSchema: true
previewSchemaChanges: true
batchSize: 500
maxRetryAttempts: 3
retryDelayMs: 250
includeTables:
  - "user_*"
excludeTables:
  - "user_secret"
maskingRules:
  - table: users
    column: email
    kind: full
  - table: users
    column: ssn
    kind: pattern
    pattern: "###-##-####"
`

func writeTemp(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "dbrepl.yaml")
	if err := os.WriteFile(p, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTemp(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Source.Host != "src.internal" || cfg.Target.Host != "dst.internal" {
		t.Fatalf("endpoints: %+v %+v", cfg.Source, cfg.Target)
	}
	if cfg.BatchSize != 500 || !cfg.SyncSchema || !cfg.PreviewSchemaChanges {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.MaskingRules) != 2 || cfg.MaskingRules[1].Kind != mask.CustomPattern {
		t.Fatalf("masking rules: %+v", cfg.MaskingRules)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, "source:\n  host: a\ntarget:\n  host: b\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != ModeFull {
		t.Errorf("mode = %q", cfg.Mode)
	}
	if cfg.BatchSize != 1000 {
		t.Errorf("batchSize = %d", cfg.BatchSize)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	base := func() *Config {
		c := &Config{}
		c.Source.Host = "a"
		c.Target.Host = "b"
		c.applyDefaults()
		return c
	}

	c := base()
	c.BatchSize = -1
	if err := c.Validate(); err == nil {
		t.Error("negative batch size accepted")
	}

	c = base()
	c.Mode = Mode("streaming")
	if err := c.Validate(); err == nil {
		t.Error("unknown mode accepted")
	}

	c = base()
	c.MaskingRules = []mask.Rule{{Table: "t", Column: "c", Kind: mask.Kind("scramble")}}
	if err := c.Validate(); err == nil {
		t.Error("unknown masking kind accepted")
	}
}
