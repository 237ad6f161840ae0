package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"routined/internal/holiday"
)

func newHolidaysCmd(opts *rootOptions) *cobra.Command {
	var months int
	cmd := &cobra.Command{
		Use:   "holidays [YYYY-MM]",
		Short: "Show cached public holidays, refreshing expired months",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			first := holiday.MonthOf(c.Today())
			if s := firstArg(args); s != "" {
				t, err := time.Parse("2006-01", s)
				if err != nil {
					return fmt.Errorf("invalid month %q, expected YYYY-MM", s)
				}
				first = holiday.Month{Year: t.Year(), Month: t.Month()}
			}
			if months <= 0 {
				months = 1
			}
			list := make([]holiday.Month, 0, months)
			for m, i := first, 0; i < months; m, i = m.Next(), i+1 {
				list = append(list, m)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "source: %s\n", c.Settings.Holidays.Source)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, res := range c.Holidays.Prefetch(cmd.Context(), list...) {
				m := holiday.Month{Year: res.Year, Month: res.Month}
				status := res.Status.String()
				if res.Err != nil {
					status += ": " + res.Err.Error()
				}
				fmt.Fprintf(tw, "%s\t%s\n", m, status)
				for _, r := range res.Records {
					if !r.IsHoliday {
						continue
					}
					fmt.Fprintf(tw, "  %s\t%s %s\n", r.Date, weekdayName(r.Date)[:3], r.Name)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&months, "months", "n", 1, "number of months to show")
	return cmd
}
