package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chihacknight/chn-ghost-buses/model"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compares configured schedule versions with realtime data",
	Args:  cobra.NoArgs,
	RunE:  compare,
}

var lastDate string

func init() {
	compareCmd.Flags().StringVarP(&lastDate, "last-date", "", "", "Last date (YYYY-MM-DD) of the final feed period, default yesterday")
	rootCmd.AddCommand(compareCmd)
}

func compare(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	last := lastDate
	if last == "" {
		last = time.Now().AddDate(0, 0, -1).Format(model.DateLayout)
	}

	feeds, err := e.Config.FeedDescriptors(last)
	if err != nil {
		return err
	}

	result, err := e.Manager.Compare(cmd.Context(), feeds)
	if err != nil {
		return err
	}

	for _, fc := range result.Feeds {
		fmt.Printf("%s: %d rows, %d dates without data\n", fc.Feed, len(fc.ByDayType), len(fc.MissingDates))
	}
	for _, failed := range result.Failed {
		fmt.Printf("failed: %s\n", failed)
	}

	fmt.Printf("%-8s %-4s %8s %8s %6s\n", "route", "day", "rt", "sched", "ratio")
	for _, row := range result.Combined {
		ratio := row.RatioStatus
		if row.Ratio.Defined {
			ratio = fmt.Sprintf("%.3f", row.Ratio.Value)
		}
		fmt.Printf("%-8s %-4s %8d %8d %6s\n", row.RouteID, row.DayType, row.TripCountRT, row.TripCountSched, ratio)
	}

	return nil
}
