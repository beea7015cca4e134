package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	ghostbuses "github.com/chihacknight/chn-ghost-buses"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <version>...",
	Short: "Loads schedule versions and writes their trip count summaries",
	Args:  cobra.MinimumNArgs(1),
	RunE:  schedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

func schedule(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	for _, version := range args {
		summary, err := e.Manager.ScheduleSummary(cmd.Context(), version)
		if err != nil {
			return err
		}

		trips := map[string]int{}
		for date, byRoute := range ghostbuses.DailyScheduledTrips(summary.ByRoute) {
			for _, n := range byRoute {
				trips[date] += n
			}
		}
		dates := make([]string, 0, len(trips))
		for date := range trips {
			dates = append(dates, date)
		}
		sort.Strings(dates)

		fmt.Printf("%s: %d route-hour rows, %d route-direction-hour rows\n", version, len(summary.ByRoute), len(summary.ByDirection))
		if len(dates) > 0 {
			fmt.Printf("  %s to %s\n", dates[0], dates[len(dates)-1])
		}
	}

	return nil
}
