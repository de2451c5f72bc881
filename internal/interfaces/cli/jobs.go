package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
)

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process",
		Short: "Run the daily job: roll over due filings, then rebuild every queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cliCtx, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Processor == nil {
				return missing("daily processor")
			}
			res, err := app.Processor.ProcessReminders(cmd.Context())
			if err != nil {
				return err
			}
			cliCtx.Logger.Info("daily process finished",
				logging.Int("queued", res.Queued),
				logging.Int("rolled_over", res.RolledOver),
				logging.Int("errors", res.Errors),
			)
			return PrintResult(cmd, res)
		},
	}
}

func newRebuildCmd() *cobra.Command {
	var clientID string

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Reconcile reminder queues with current client data",
		Long:  "Rebuild one client's queue with --client, or every client's queue.\nEntries already sent or pending are never touched.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Builder == nil {
				return missing("queue builder")
			}
			if clientID != "" {
				res, err := app.Builder.BuildClient(cmd.Context(), clientID)
				if err != nil {
					return err
				}
				return PrintResult(cmd, res)
			}
			res, err := app.Builder.BuildAll(cmd.Context())
			if err != nil {
				return err
			}
			if err := PrintResult(cmd, res); err != nil {
				return err
			}
			if n := res.ErrorCount(); n > 0 {
				return fmt.Errorf("%d client(s) failed to rebuild", n)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "rebuild only this client")
	return cmd
}

func newSendDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-due",
		Short: "Hand reminders due today to the sender",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Dispatcher == nil {
				return missing("dispatcher")
			}
			res, err := app.Dispatcher.PromoteDue(cmd.Context())
			if err != nil {
				return err
			}
			return PrintResult(cmd, res)
		},
	}
}
