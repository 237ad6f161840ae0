package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"routined/internal/report"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:       "report [weekly|monthly]",
		Short:     "Completion report for the week or month containing a date",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"weekly", "monthly"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := report.ParsePeriod(firstArg(args))
			if err != nil {
				return err
			}
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			day, err := parseDay(date, c.Today())
			if err != nil {
				return err
			}
			rep, err := c.Report(cmd.Context(), p, day)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s report %s .. %s\n", rep.Period, rep.Start, rep.End)
			if rep.Through.IsZero() {
				fmt.Fprintln(out, "period has not started yet")
				return nil
			}
			fmt.Fprintf(out, "completion  %d/%d (%.0f%%)\n", rep.Completed, rep.Expected, rep.Rate*100)
			fmt.Fprintf(out, "most kept   %s\n", rep.MostKept)
			fmt.Fprintf(out, "most missed %s\n", rep.MostMissed)
			if len(rep.Routines) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tDONE\tDUE\tMISSED")
			for _, s := range rep.Routines {
				if s.Expected == 0 {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", s.RoutineID, s.Title, s.Completed, s.Expected, s.Missed())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&date, "date", "today", "any day inside the period (YYYY-MM-DD)")
	return cmd
}
