package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agrc/auditor/internal/audit"
	"github.com/agrc/auditor/internal/notify"
	"github.com/agrc/auditor/internal/report"
)

func newScheduledCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduled",
		Short: "Run the full audit, save the report, send the summary",
		Long: `Run the audit the way the nightly job does: fix everything, rotate the
audit report on disk, and email the run summary when notifications are
configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduled(cmd)
		},
	}
}

func runScheduled(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, false)

	client, err := signIn(ctx, cfg, logger)
	if err != nil {
		return err
	}
	table, err := loadMetatable(ctx, cfg, client, logger)
	if err != nil {
		return err
	}

	auditor := audit.New(client, table, auditOptions(cfg, false), logger)
	run, err := auditor.Run(ctx)
	if err != nil {
		return err
	}

	path, err := report.Save(cfg.Report.Dir, cfg.Report.Basename, cfg.Report.Keep, report.Render(run))
	if err != nil {
		return err
	}
	logger.Info("report saved", "path", path)

	if cfg.Notify.Enabled {
		mailer := notify.Mailer{
			Host: cfg.Notify.SMTPHost,
			Port: cfg.Notify.SMTPPort,
			From: cfg.Notify.From,
			To:   cfg.Notify.To,
		}
		if err := mailer.Send(notify.Subject(run), notify.Summary(run, path)); err != nil {
			logger.Error("notification failed", "error", err)
		}
	}

	if run.Failures > 0 {
		return fmt.Errorf("%d of %d items failed", run.Failures, len(run.Items))
	}
	return nil
}
