package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/customization"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/deadlines"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/template"
)

// listingView renders a deadline listing.
type listingView struct {
	*deadlines.Listing
}

func (v listingView) TableHeaders() []string {
	return []string{"FILING TYPE", "DEADLINE", "WORKING DAY", "DAYS", "STATUS", "SOURCE", "RECORDS"}
}

func (v listingView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Items))
	for _, it := range v.Items {
		records := "-"
		switch {
		case it.Completed:
			records = "completed"
		case it.RecordsReceived:
			records = "received"
		}
		rows = append(rows, []string{
			string(it.FilingType),
			calendar.Key(it.Deadline),
			calendar.Key(it.WorkingDay),
			strconv.Itoa(it.DaysRemaining),
			string(it.Status),
			string(it.Source),
			records,
		})
	}
	for _, ft := range v.Missing {
		rows = append(rows, []string{string(ft), "-", "-", "-", "unresolved", "-", "-"})
	}
	return rows
}

func newDeadlinesCmd() *cobra.Command {
	var (
		clientID string
		icsPath  string
		export   bool
	)

	cmd := &cobra.Command{
		Use:   "deadlines",
		Short: "Show a client's filing deadlines",
		Long:  "Show a client's filing deadlines.  --ics writes an iCalendar file ('-' for\nstdout); --export uploads it to object storage and prints a download link.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Deadlines == nil {
				return missing("deadline service")
			}
			ctx := cmd.Context()

			switch {
			case export:
				exp, err := app.Deadlines.ExportICS(ctx, clientID)
				if err != nil {
					return err
				}
				return PrintResult(cmd, exp)
			case icsPath == "-":
				data, _, err := app.Deadlines.ICS(ctx, clientID)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			case icsPath != "":
				data, _, err := app.Deadlines.ICS(ctx, clientID)
				if err != nil {
					return err
				}
				if err := os.WriteFile(icsPath, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", icsPath, err)
				}
				PrintSuccess(cmd, fmt.Sprintf("wrote %d bytes to %s", len(data), icsPath))
				return nil
			}

			l, err := app.Deadlines.ForClient(ctx, clientID)
			if err != nil {
				return err
			}
			return PrintResult(cmd, listingView{l})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client ID (required)")
	cmd.Flags().StringVar(&icsPath, "ics", "", "write an iCalendar file to this path")
	cmd.Flags().BoolVar(&export, "export", false, "upload the iCalendar file and print a link")
	_ = cmd.MarkFlagRequired("client")
	cmd.MarkFlagsMutuallyExclusive("ics", "export")
	return cmd
}

// templateView renders a resolved template.
type templateView struct {
	Preview  *customization.Preview `json:"preview"`
	Rendered []template.Rendered    `json:"rendered,omitempty"`
}

func (v templateView) TableHeaders() []string {
	return []string{"STEP", "DELAY", "OVERRIDDEN", "SUBJECT"}
}

func (v templateView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Preview.Steps))
	for i, s := range v.Preview.Steps {
		subject := s.Subject
		if i < len(v.Rendered) {
			subject = v.Rendered[i].Subject
		}
		over := strings.Join(v.Preview.Overridden[i], ",")
		if over == "" {
			over = "-"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), strconv.Itoa(s.DelayDays) + "d", over, subject})
	}
	return rows
}

func newTemplatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect reminder templates",
	}
	cmd.AddCommand(newTemplatesResolveCmd())
	return cmd
}

func newTemplatesResolveCmd() *cobra.Command {
	var (
		clientID   string
		filingType string
		due        string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show a client's template with its step overrides applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ft, err := filing.ParseFilingType(filingType)
			if err != nil {
				return err
			}
			app, _, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Templates == nil {
				return missing("template resolver")
			}

			p, err := app.Templates.Preview(cmd.Context(), clientID, ft)
			if err != nil {
				return err
			}
			view := templateView{Preview: p}
			if due != "" {
				d, err := calendar.ParseDate(due)
				if err != nil {
					return fmt.Errorf("invalid --due %q: want YYYY-MM-DD", due)
				}
				if view.Rendered, err = app.Templates.Render(cmd.Context(), clientID, ft, d); err != nil {
					return err
				}
			}
			return PrintResult(cmd, view)
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client ID (required)")
	cmd.Flags().StringVar(&filingType, "filing-type", "", "filing type (required)")
	cmd.Flags().StringVar(&due, "due", "", "render against this deadline (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("filing-type")
	return cmd
}
