package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"routined/internal/routine"
)

func newAddCmd(opts *rootOptions) *cobra.Command {
	var rec routine.Record
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add or replace a routine",
		Example: `  routined add "stretch" --kind weekly --days 1,3,5 --at 07:30
  routined add "water plants" --kind every_x_days --interval 3 --anchor 2025-06-01
  routined add "commute" --kind weekday_holiday --split weekday --at 08:00
  routined add "dentist" --kind once --date 2025-06-17 --at 14:00`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.Title = args[0]
			r, err := routine.FromRecord(rec)
			if err != nil {
				return err
			}
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			saved, err := c.Store.InsertRoutine(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s)\n", saved.ID, saved.Kind())
			if at, ok := c.Calc.NextTriggerTime(cmd.Context(), saved, time.Now()); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "next reminder %s\n", at.Format(time.DateTime))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&rec.ID, "id", "", "routine id; generated when empty, replaces an existing routine when set")
	f.StringVar(&rec.Description, "description", "", "free text")
	f.StringVar(&rec.Kind, "kind", string(routine.KindWeekly), "none, once, weekly, every_x_days or weekday_holiday")
	f.StringVar(&rec.Date, "date", "", "date for kind once (YYYY-MM-DD)")
	f.StringVar(&rec.Days, "days", "", "ISO weekdays, 1=Monday .. 7=Sunday (e.g. 1,3,5)")
	f.StringVar(&rec.Split, "split", "", "weekday or holiday, for kind weekday_holiday")
	f.IntVar(&rec.Interval, "interval", 0, "days between occurrences, for kind every_x_days")
	f.StringVar(&rec.Anchor, "anchor", "", "first day of the recurrence (YYYY-MM-DD)")
	f.StringVar(&rec.Policy, "policy", "", "any or weekdays_only, for kind every_x_days")
	f.StringVar(&rec.Reminder, "at", "", "reminder time HH:MM; no reminder when empty")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List routines",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			rs, err := c.Store.AllRoutines(cmd.Context())
			if err != nil {
				return err
			}
			writeRoutines(cmd.OutOrStdout(), rs)
			return nil
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Delete a routine and its completion marks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Store.DeleteRoutine(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newDueCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "due [date]",
		Short: "List routines due on a date (default today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			day, err := parseDay(firstArg(args), c.Today())
			if err != nil {
				return err
			}
			rs, err := c.DueOn(cmd.Context(), day)
			if err != nil {
				return err
			}
			marks, err := c.Store.ChecksForDate(cmd.Context(), day)
			if err != nil {
				return err
			}
			done := map[string]bool{}
			for _, m := range marks {
				done[m.RoutineID] = m.Done
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", day, weekdayName(day))
			if len(rs) == 0 {
				fmt.Fprintln(out, "nothing due")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, r := range rs {
				box := "[ ]"
				if done[r.ID] {
					box = "[x]"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", box, r.ID, r.Title, reminderText(r))
			}
			return tw.Flush()
		},
	}
}

func newNextCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show every routine's next reminder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			next, err := c.NextTriggers(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tNEXT")
			for _, n := range next {
				at := "-"
				switch {
				case n.OK:
					at = n.At.Format("2006-01-02 Mon 15:04")
				case n.Routine.HasReminder():
					at = "none upcoming"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", n.Routine.ID, n.Routine.Title, at)
			}
			return tw.Flush()
		},
	}
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		date string
		undo bool
	)
	cmd := &cobra.Command{
		Use:   "check <id>",
		Short: "Mark a routine done for a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			day, err := parseDay(date, c.Today())
			if err != nil {
				return err
			}
			if err := c.Check(cmd.Context(), args[0], day, !undo); err != nil {
				return err
			}
			state := "done"
			if undo {
				state = "not done"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s on %s\n", args[0], state, day)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "today", "day to mark (YYYY-MM-DD, today, yesterday)")
	cmd.Flags().BoolVar(&undo, "undo", false, "clear the mark instead")
	return cmd
}

func writeRoutines(w io.Writer, rs []routine.Routine) {
	if len(rs) == 0 {
		fmt.Fprintln(w, "no routines")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tREPEAT\tREMINDER")
	for _, r := range rs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Title, repeatText(r), reminderText(r))
	}
	_ = tw.Flush()
}

func repeatText(r routine.Routine) string {
	rec := routine.ToRecord(r)
	parts := []string{rec.Kind}
	switch r.Repeat.(type) {
	case routine.Once:
		if rec.Date != "" {
			parts = append(parts, rec.Date)
		}
	case routine.Weekly:
		parts = append(parts, "days="+rec.Days)
	case routine.EveryXDays:
		parts = append(parts, fmt.Sprintf("every=%d", rec.Interval), "policy="+rec.Policy)
	case routine.WeekdayHoliday:
		parts = append(parts, "split="+rec.Split, "days="+rec.Days)
	}
	if rec.Anchor != "" {
		parts = append(parts, "from="+rec.Anchor)
	}
	return strings.Join(parts, " ")
}

func reminderText(r routine.Routine) string {
	if r.Reminder == nil {
		return "-"
	}
	return r.Reminder.String()
}

func weekdayName(d routine.Date) string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday().String()
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
