package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/agrc/auditor/internal/arcgis"
	"github.com/agrc/auditor/internal/audit"
	"github.com/agrc/auditor/internal/config"
	"github.com/agrc/auditor/internal/metatable"
)

// loadConfig reads the typed config from the file viper located. AUDITOR_*
// environment variables override the portal credentials so secrets can stay
// out of the file.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path == "" {
		return nil, fmt.Errorf("no config file found, run %q to create one", "auditor config init")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("portal.username"); v != "" {
		cfg.Portal.Username = v
	}
	if v := viper.GetString("portal.password"); v != "" {
		cfg.Portal.Password = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the stderr logger. --verbose wins over the configured level.
func newLogger(level string, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// signIn connects to the portal, prompting for the password when neither the
// config file nor the environment provides one. The prompt goes to stderr so
// the report can be piped from stdout.
func signIn(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*arcgis.Client, error) {
	password := cfg.Portal.Password
	if password == "" {
		fmt.Fprintf(os.Stderr, "Password for %s: ", cfg.Portal.Username)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		password = string(raw)
	}

	client := arcgis.NewClient(cfg.Portal.URL, cfg.Portal.Username, password, logger)
	if err := client.SignIn(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// buildSource turns one source config into a metatable source. The primary
// table carries the AUTHORITATIVE column; the secondary carries CATEGORY.
func buildSource(sc *config.SourceConfig, label string, authoritative bool, client *arcgis.Client) (metatable.Source, error) {
	if sc == nil {
		return nil, nil
	}
	switch strings.ToLower(sc.Kind) {
	case "sql":
		return metatable.NewSQLSource(label, sc.Driver, sc.DSN, sc.Table, authoritative)
	case "agol":
		return metatable.NewAGOLSource(label, client, sc.ItemID, sc.Layer, authoritative), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

// loadMetatable loads and merges the configured reference tables.
func loadMetatable(ctx context.Context, cfg *config.Config, client *arcgis.Client, logger *slog.Logger) (*metatable.Table, error) {
	primary, err := buildSource(cfg.Metatable.Primary, "primary", true, client)
	if err != nil {
		return nil, err
	}
	secondary, err := buildSource(cfg.Metatable.Secondary, "secondary", false, client)
	if err != nil {
		return nil, err
	}
	return metatable.Load(ctx, primary, secondary, metatable.Options{
		Precedence: cfg.Metatable.Precedence,
		Logger:     logger,
	})
}

func auditOptions(cfg *config.Config, dryRun bool) audit.Options {
	return audit.Options{
		ThumbnailDir: cfg.Audit.ThumbnailDir,
		StaticNote:   cfg.Audit.StaticNote,
		ShelvedNote:  cfg.Audit.ShelvedNote,
		CacheMaxAge:  cfg.Audit.CacheMaxAge,
		Retries:      cfg.Audit.Retries,
		DryRun:       dryRun,
	}
}
