package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agrc/auditor/internal/arcgis"
	"github.com/agrc/auditor/internal/config"
	"github.com/agrc/auditor/internal/metatable"
)

func newMetatableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metatable",
		Short: "Work with the reference tables",
	}

	cmd.AddCommand(newMetatableCheckCmd())

	return cmd
}

func newMetatableCheckCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Load the reference tables and print merge statistics",
		Long:  "Load and merge the configured reference tables without touching any items.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetatableCheck(cmd, jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output statistics as JSON")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Debug logging")

	return cmd
}

func runMetatableCheck(cmd *cobra.Command, jsonOutput, verbose bool) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, verbose)

	// The portal sign-in is only needed when a source lives in AGOL.
	var client *arcgis.Client
	for _, sc := range []*config.SourceConfig{cfg.Metatable.Primary, cfg.Metatable.Secondary} {
		if sc != nil && strings.EqualFold(sc.Kind, "agol") {
			client, err = signIn(ctx, cfg, logger)
			if err != nil {
				return err
			}
			break
		}
	}

	table, err := loadMetatable(ctx, cfg, client, logger)
	if err != nil {
		return err
	}

	if jsonOutput {
		stats := struct {
			Rows       int                   `json:"rows"`
			Skipped    int                   `json:"skipped"`
			Duplicates []metatable.Duplicate `json:"duplicates"`
		}{table.Len(), table.Skipped, table.Duplicates}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "rows:       %d\n", table.Len())
	fmt.Fprintf(cmd.OutOrStdout(), "skipped:    %d\n", table.Skipped)
	fmt.Fprintf(cmd.OutOrStdout(), "duplicates: %d\n", len(table.Duplicates))
	for _, dup := range table.Duplicates {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s wins over %s\n", dup.ItemID, dup.Winner, dup.Loser)
	}
	return nil
}
