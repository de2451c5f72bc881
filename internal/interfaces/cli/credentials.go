package cli

import (
	"github.com/spf13/cobra"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/infrastructure/monitoring/logging"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage accounting-connection credentials",
	}

	var connectionID string
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh for a connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cliCtx, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Credentials == nil {
				return missing("credential manager")
			}
			cred, err := app.Credentials.ForceRefresh(cmd.Context(), connectionID)
			if err != nil {
				return err
			}
			cliCtx.Logger.Info("credential refreshed",
				logging.String("connection_id", cred.ConnectionID),
				logging.Time("expires_at", cred.ExpiresAt),
			)
			return PrintResult(cmd, cred)
		},
	}
	refresh.Flags().StringVar(&connectionID, "connection", "", "connection ID (required)")
	_ = refresh.MarkFlagRequired("connection")

	cmd.AddCommand(refresh)
	return cmd
}
