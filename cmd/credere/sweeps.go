package main

import (
	"github.com/spf13/cobra"
)

// Each sweep is exposed as a one-shot command mirroring the cron jobs, so an
// operator can run any policy out of cadence. The sweeps' own idempotency
// guards make reruns safe.

func fetchAwardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch-awards",
		Short: "Fetch new procurement awards and invite their suppliers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.ingestor.FetchNewAwards(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("award fetch finished",
				"created", summary.Created,
				"skipped", summary.Skipped,
				"failed", summary.Failed,
			)
			return nil
		},
	}
}

func sendRemindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-reminders",
		Short: "Send intro and submit reminders for applications expiring soon",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			sent, err := a.jobs.SendReminders(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("reminders finished", "sent", sent)
			return nil
		},
	}
}

func setLapsedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-lapsed",
		Short: "Lapse applications that sat inactive past the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			lapsed, err := a.jobs.SetLapsed(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("lapsing finished", "lapsed", lapsed)
			return nil
		},
	}
}

func slaOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sla-overdue",
		Short: "Alert lenders and the admin about applications breaching SLA",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			return a.jobs.SLAOverdue(cmd.Context())
		},
	}
}

func removeDatedDataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-dated-data",
		Short: "Archive terminal applications and scrub expired PII",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			archived, err := a.jobs.RemoveDatedData(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("retention finished", "archived", archived)
			return nil
		},
	}
}

func updateStatisticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-statistics",
		Short: "Recompute today's KPI snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			return a.stats.Refresh(cmd.Context())
		},
	}
}
