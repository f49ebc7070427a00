package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level auditor configuration file.
type Config struct {
	Portal    PortalConfig    `yaml:"portal"`
	Metatable MetatableConfig `yaml:"metatable"`
	Audit     AuditConfig     `yaml:"audit"`
	Report    ReportConfig    `yaml:"report"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// PortalConfig identifies the ArcGIS Online organization and the user whose
// items are audited.
type PortalConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MetatableConfig describes where the reference tables live and how duplicate
// item IDs across them are resolved.
type MetatableConfig struct {
	Primary    *SourceConfig `yaml:"primary"`
	Secondary  *SourceConfig `yaml:"secondary,omitempty"`
	Precedence string        `yaml:"precedence"`
}

// SourceConfig defines a single reference-table source. Kind "sql" reads a
// database table through the named driver; kind "agol" reads a hosted
// feature-layer table through the portal REST API.
type SourceConfig struct {
	Kind   string `yaml:"kind"`
	Driver string `yaml:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
	Table  string `yaml:"table,omitempty"`
	ItemID string `yaml:"item_id,omitempty"`
	Layer  int    `yaml:"layer,omitempty"`
}

// AuditConfig controls the per-item checks.
type AuditConfig struct {
	ThumbnailDir string `yaml:"thumbnail_dir"`
	CacheMaxAge  int    `yaml:"cache_max_age"`
	Retries      int    `yaml:"retries"`
	StaticNote   string `yaml:"static_note"`
	ShelvedNote  string `yaml:"shelved_note"`
}

// ReportConfig controls where audit reports are written and how many rotated
// copies are kept.
type ReportConfig struct {
	Dir      string `yaml:"dir"`
	Basename string `yaml:"basename"`
	Keep     int    `yaml:"keep"`
}

// NotifyConfig controls the summary email sent after scheduled runs.
type NotifyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses a YAML configuration file. Environment variables
// referenced as ${VAR_NAME} in the file are expanded before parsing, and
// defaults are applied for anything the file leaves unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-filled with sensible defaults. Portal and
// metatable settings have no usable defaults and must come from the file.
func Default() *Config {
	return &Config{
		Portal: PortalConfig{
			URL: "https://www.arcgis.com",
		},
		Metatable: MetatableConfig{
			Precedence: "primary",
		},
		Audit: AuditConfig{
			ThumbnailDir: "thumbnails",
			CacheMaxAge:  86400,
			Retries:      3,
			StaticNote: "<i><b>NOTE</b>: This dataset holds 'static' data that we don't expect to change. " +
				"We have removed it from the SDE database and placed it in ArcGIS Online, but it is still " +
				"considered part of the SGID and shared on opendata.gis.utah.gov.</i>",
			ShelvedNote: "<i><b>NOTE</b>: This dataset is an older dataset that we have removed from the SGID " +
				"and 'shelved' in ArcGIS Online. There may (or may not) be a newer vintage of this dataset in " +
				"the SGID.</i>",
		},
		Report: ReportConfig{
			Dir:      "reports",
			Basename: "audit-report.txt",
			Keep:     18,
		},
		Notify: NotifyConfig{
			SMTPPort: 25,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is complete enough to run an audit.
// The portal password is allowed to be empty here; the CLI prompts for it.
func (c *Config) Validate() error {
	if c.Portal.URL == "" {
		return fmt.Errorf("portal.url is required")
	}
	if c.Portal.Username == "" {
		return fmt.Errorf("portal.username is required")
	}
	if c.Metatable.Primary == nil {
		return fmt.Errorf("metatable.primary is required")
	}
	if err := c.Metatable.Primary.validate("metatable.primary"); err != nil {
		return err
	}
	if c.Metatable.Secondary != nil {
		if err := c.Metatable.Secondary.validate("metatable.secondary"); err != nil {
			return err
		}
	}
	switch c.Metatable.Precedence {
	case "", "primary", "secondary":
	default:
		return fmt.Errorf("metatable.precedence must be %q or %q, got %q", "primary", "secondary", c.Metatable.Precedence)
	}
	return nil
}

func (s *SourceConfig) validate(name string) error {
	switch strings.ToLower(s.Kind) {
	case "sql":
		switch s.Driver {
		case "sqlserver", "pgx", "sqlite":
		default:
			return fmt.Errorf("%s.driver must be sqlserver, pgx, or sqlite, got %q", name, s.Driver)
		}
		if s.DSN == "" {
			return fmt.Errorf("%s.dsn is required for sql sources", name)
		}
		if s.Table == "" {
			return fmt.Errorf("%s.table is required for sql sources", name)
		}
	case "agol":
		if s.ItemID == "" {
			return fmt.Errorf("%s.item_id is required for agol sources", name)
		}
	default:
		return fmt.Errorf("%s.kind must be %q or %q, got %q", name, "sql", "agol", s.Kind)
	}
	return nil
}
