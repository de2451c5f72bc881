package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/application/rollover"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/filing"
)

// candidateTable renders rollover candidates.
type candidateTable []rollover.Candidate

func (t candidateTable) TableHeaders() []string {
	return []string{"CLIENT", "COMPANY", "FILING TYPE", "DEADLINE", "DAYS OVERDUE"}
}

func (t candidateTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, c := range t {
		rows = append(rows, []string{c.ClientID, c.CompanyName, string(c.FilingType), calendar.Key(c.Deadline), strconv.Itoa(c.DaysOverdue)})
	}
	return rows
}

func newRolloverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "List and execute filing rollovers",
	}
	cmd.AddCommand(newRolloverListCmd(), newRolloverExecuteCmd())
	return cmd
}

func newRolloverListCmd() *cobra.Command {
	var clientID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List obligations whose deadline has passed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Detector == nil {
				return missing("rollover detector")
			}
			var cs []rollover.Candidate
			if clientID != "" {
				cs, err = app.Detector.ForClient(cmd.Context(), clientID)
			} else {
				cs, err = app.Detector.Candidates(cmd.Context())
			}
			if err != nil {
				return err
			}
			if len(cs) == 0 {
				return PrintResult(cmd, "no rollover candidates")
			}
			return PrintResult(cmd, candidateTable(cs))
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "only this client")
	return cmd
}

func newRolloverExecuteCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "execute [client:filing_type ...]",
		Short: "Roll over the given obligations, or every candidate with --all",
		Example: `  reminderctl rollover execute acme:corporation_tax_payment acme:ct600_filing
  reminderctl rollover execute --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return fmt.Errorf("give at least one client:filing_type target or --all")
			}
			targets, err := parseTargets(args)
			if err != nil {
				return err
			}

			app, _, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Detector == nil || app.Executor == nil {
				return missing("rollover executor")
			}
			if all {
				cs, err := app.Detector.Candidates(cmd.Context())
				if err != nil {
					return err
				}
				targets = append(cs, targets...)
			}

			res := app.Executor.ExecuteBulk(cmd.Context(), targets)
			if err := PrintResult(cmd, res); err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d rollover(s) failed", res.Failed, res.Total)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll over every current candidate")
	return cmd
}

func parseTargets(args []string) ([]rollover.Candidate, error) {
	out := make([]rollover.Candidate, 0, len(args))
	for _, a := range args {
		clientID, ftRaw, ok := strings.Cut(a, ":")
		if !ok || clientID == "" {
			return nil, fmt.Errorf("invalid target %q: want client:filing_type", a)
		}
		ft, err := filing.ParseFilingType(ftRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", a, err)
		}
		out = append(out, rollover.Candidate{ClientID: clientID, FilingType: ft})
	}
	return out, nil
}
