package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage auditor configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default auditor.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")

	return cmd
}

const defaultConfig = `# AGOL item auditor configuration

portal:
  url: https://www.arcgis.com
  username: ""
  # Leave the password empty to be prompted, or set AUDITOR_PORTAL_PASSWORD.
  password: ""

metatable:
  # The primary table follows the SDE layout with an AUTHORITATIVE column.
  primary:
    kind: sql
    driver: sqlserver   # sqlserver, pgx, or sqlite
    dsn: ${SDE_DSN}
    table: SGID.META.AGOLITEMS
  # The secondary table follows the AGOLItems layout with a CATEGORY column.
  # Remove this block if one table covers everything.
  secondary:
    kind: agol
    item_id: ""
    layer: 0
  # Which source wins when an item id appears in both tables.
  precedence: primary

audit:
  thumbnail_dir: thumbnails
  cache_max_age: 86400
  retries: 3

report:
  dir: reports
  basename: audit-report.txt
  keep: 18

notify:
  enabled: false
  smtp_host: ""
  smtp_port: 25
  from: ""
  to: []

log:
  level: info   # debug, info, warn, error
`

func runConfigInit(force bool) error {
	path := "auditor.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Fill in the portal account and metatable sources, then run 'auditor audit --dry-run'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigShow() error {
	// Ensure config is loaded
	initConfig()

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("Config file: %s\n", configFile)
	} else {
		fmt.Println("Config file: (none found, using defaults)")
	}
	fmt.Println()

	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("No configuration settings loaded.")
		fmt.Println("Run 'auditor config init' to create a default configuration file.")
		return nil
	}

	for key, value := range settings {
		fmt.Printf("  %s: %v\n", key, value)
	}

	return nil
}
