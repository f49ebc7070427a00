package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agrc/auditor/internal/audit"
	"github.com/agrc/auditor/internal/report"
)

func newAuditCmd() *cobra.Command {
	var (
		dryRun     bool
		verbose    bool
		saveReport bool
	)

	cmd := &cobra.Command{
		Use:   "audit [ITEM_ID ...]",
		Short: "Audit hosted feature services and print the report",
		Long: `Audit the signed-in user's hosted feature services against the reference
tables. With item IDs only those items are checked; without any, every
feature service the user owns is. Fixes are applied unless --dry-run is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, args, dryRun, verbose, saveReport)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute and report corrections without applying them")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Debug logging")
	cmd.Flags().BoolVar(&saveReport, "save-report", false, "Also write the report to the report directory")

	return cmd
}

func runAudit(cmd *cobra.Command, ids []string, dryRun, verbose, saveReport bool) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, verbose)

	client, err := signIn(ctx, cfg, logger)
	if err != nil {
		return err
	}
	table, err := loadMetatable(ctx, cfg, client, logger)
	if err != nil {
		return err
	}

	auditor := audit.New(client, table, auditOptions(cfg, dryRun), logger)
	var run *audit.Run
	if len(ids) > 0 {
		run, err = auditor.RunItems(ctx, ids)
	} else {
		run, err = auditor.Run(ctx)
	}
	if err != nil {
		return err
	}

	text := report.Render(run)
	fmt.Fprint(cmd.OutOrStdout(), text)

	if saveReport {
		path, err := report.Save(cfg.Report.Dir, cfg.Report.Basename, cfg.Report.Keep, text)
		if err != nil {
			return err
		}
		logger.Info("report saved", "path", path)
	}

	if run.Failures > 0 {
		return fmt.Errorf("%d of %d items failed", run.Failures, len(run.Items))
	}
	return nil
}
