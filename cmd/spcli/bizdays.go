package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nlstn/go-sprest/bizdays"
	"github.com/spf13/cobra"
)

func parseDate(s string) (time.Time, error) {
	return bizdays.ParseSharePointTime(s, time.Local)
}

func newBizdaysCmd(_ *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bizdays",
		Short: "Business-day arithmetic on dates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "between <start> <end>",
		Short: "Count weekdays from start to end, both inclusive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDate(args[0])
			if err != nil {
				return err
			}
			end, err := parseDate(args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), bizdays.BusinessDaysBetween(start, end))
			return err
		},
	})

	var calendar bool
	add := &cobra.Command{
		Use:   "add <date> <days>",
		Short: "Move a date by a number of business days (negative moves back)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDate(args[0])
			if err != nil {
				return err
			}
			days, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("days %q is not a number", args[1])
			}
			var result time.Time
			if calendar {
				result = bizdays.AddDays(start, days)
			} else {
				result = bizdays.AddBusinessDays(start, days)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Format("2006-01-02"))
			return err
		},
	}
	add.Flags().BoolVar(&calendar, "calendar", false, "count calendar days instead of business days")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "month <month> <year>",
		Short: "Show the first and last date of a month (1-12)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			month, err := strconv.Atoi(args[0])
			if err != nil || month < 1 || month > 12 {
				return fmt.Errorf("month %q must be a number from 1 to 12", args[0])
			}
			year, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("year %q is not a number", args[1])
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
				bizdays.FirstDateOfMonth(month, year), bizdays.LastDateOfMonth(month, year))
			return err
		},
	})
	return cmd
}
