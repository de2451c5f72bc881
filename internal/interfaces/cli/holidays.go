package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ejschoeb2/accountancyauto-sub001/internal/domain/calendar"
)

// holidayTable lists bank holidays in date order.
type holidayTable struct {
	Region string      `json:"region"`
	Dates  []time.Time `json:"dates"`
}

func (t holidayTable) TableHeaders() []string { return []string{"DATE", "WEEKDAY"} }

func (t holidayTable) TableRows() [][]string {
	rows := make([][]string, 0, len(t.Dates))
	for _, d := range t.Dates {
		rows = append(rows, []string{calendar.Key(d), d.Weekday().String()})
	}
	return rows
}

func newHolidaysCmd() *cobra.Command {
	var (
		region string
		year   int
	)

	cmd := &cobra.Command{
		Use:   "holidays",
		Short: "List the bank holidays the engine is using",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, _, err := appFor(cmd)
			if err != nil {
				return err
			}
			if app.Holidays == nil {
				return missing("holiday source")
			}
			if region == "" {
				region = app.Region
			}
			if year == 0 {
				year = time.Now().Year()
			}

			set, err := app.Holidays.Holidays(cmd.Context(), region)
			if err != nil {
				return err
			}
			return PrintResult(cmd, holidayTable{Region: region, Dates: set.InYear(year)})
		},
	}
	cmd.Flags().StringVar(&region, "region", "", "holiday region (default: scheduling.region)")
	cmd.Flags().IntVar(&year, "year", 0, "calendar year (default: current year)")
	return cmd
}
