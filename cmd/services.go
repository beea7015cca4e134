package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var servicesCmd = &cobra.Command{
	Use:   "services <version> <date> [service_id...]",
	Short: "Lists the services of a schedule version running on a date",
	Long: `Lists the services running on a YYYY-MM-DD date, checking the
storage backend against the resolved calendar. Given service IDs, also
reports whether each of them runs.`,
	Args: cobra.MinimumNArgs(2),
	RunE: services,
}

func init() {
	rootCmd.AddCommand(servicesCmd)
}

func services(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	static, err := e.Manager.LoadSchedule(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	date := args[1]
	ds, err := static.ServicesOn(date)
	if err != nil {
		return err
	}

	fmt.Printf("schedule %s (%s), calendar %s to %s\n", args[0], static.Location(), ds.Bounds.Start, ds.Bounds.End)
	if !ds.Bounds.Contains(date) {
		fmt.Printf("%s is outside the calendar\n", date)
	}
	fmt.Printf("%s: %s\n", date, strings.Join(ds.Services, " "))

	if len(args) == 2 {
		return nil
	}

	calendar, err := static.Calendar()
	if err != nil {
		return err
	}
	for _, serviceID := range args[2:] {
		fmt.Printf("  %s: %t\n", serviceID, calendar.Active(date, serviceID))
	}

	return nil
}
