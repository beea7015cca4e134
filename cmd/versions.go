package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chihacknight/chn-ghost-buses/model"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <version>...",
	Short: "Derives feed periods from an ordered list of schedule versions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  versions,
}

func init() {
	versionsCmd.Flags().StringVarP(&lastDate, "last-date", "", "", "Last date (YYYY-MM-DD) of the final feed period, default yesterday")
	rootCmd.AddCommand(versionsCmd)
}

func versions(cmd *cobra.Command, args []string) error {
	last := lastDate
	if last == "" {
		last = time.Now().AddDate(0, 0, -1).Format(model.DateLayout)
	}

	feeds, err := model.FeedsFromVersions(args, last)
	if err != nil {
		return err
	}

	for _, feed := range feeds {
		fmt.Printf("%s %s %s\n", feed.ScheduleVersion, feed.FeedStartDate, feed.FeedEndDate)
	}

	return nil
}
