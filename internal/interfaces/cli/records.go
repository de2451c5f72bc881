package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/scheduling"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
)

func newRecordsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Mark a client's records received or not received",
	}
	cmd.AddCommand(
		newRecordsActionCmd("received", "Mark records received and cancel outstanding reminders",
			func(r scheduling.RecordsService) recordsFn { return r.MarkReceived }),
		newRecordsActionCmd("unreceived", "Clear the records-received marker and reschedule reminders",
			func(r scheduling.RecordsService) recordsFn { return r.MarkNotReceived }),
	)
	return cmd
}

type recordsFn = func(ctx context.Context, clientID string, ft filing.FilingType) (*scheduling.RecordsChange, error)

func newRecordsActionCmd(use, short string, pick func(scheduling.RecordsService) recordsFn) *cobra.Command {
	var (
		clientID   string
		filingType string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := filing.ParseFilingType(filingType)
			if err != nil {
				return err
			}
			app, cliCtx, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Records == nil {
				return missing("records service")
			}
			ch, err := pick(app.Records)(cmd.Context(), clientID, ft)
			if err != nil {
				return err
			}
			cliCtx.Logger.Info("records updated",
				logging.String("action", use),
				logging.ClientID(clientID),
				logging.FilingType(string(ft)),
				logging.Bool("changed", ch.Changed),
			)
			return PrintResult(cmd, ch)
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client ID (required)")
	cmd.Flags().StringVar(&filingType, "filing-type", "", "filing type (required)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("filing-type")
	return cmd
}
