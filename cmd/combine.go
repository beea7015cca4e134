package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	ghostbuses "github.com/chihacknight/chn-ghost-buses"
	"github.com/chihacknight/chn-ghost-buses/logging"
	"github.com/chihacknight/chn-ghost-buses/model"
)

var combineCmd = &cobra.Command{
	Use:   "combine <date> [end date]",
	Short: "Combines a day's (or range of days') scraper batches into daily summaries",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  combine,
}

func init() {
	rootCmd.AddCommand(combineCmd)
}

func combine(cmd *cobra.Command, args []string) error {
	end := args[0]
	if len(args) == 2 {
		end = args[1]
	}
	dates, err := model.FeedDescriptor{FeedStartDate: args[0], FeedEndDate: end}.Dates()
	if err != nil {
		return err
	}

	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	combined := 0
	for _, date := range dates {
		day, err := e.Manager.CombineDay(cmd.Context(), date)
		if errors.Is(err, ghostbuses.ErrDataUnavailable) {
			logging.LogWarning(e.Logger, "skipping date", slog.String("date", date), slog.String("reason", err.Error()))
			continue
		}
		if err != nil {
			return err
		}
		combined++
		fmt.Printf("%s: %d vehicle rows, %d error rows, %d buckets\n", date, len(day.Combined.Vehicles), len(day.Combined.Errors), len(day.Observed))
	}

	if combined == 0 {
		return fmt.Errorf("%w: %s to %s", ghostbuses.ErrNoRealtimeData, dates[0], dates[len(dates)-1])
	}

	return nil
}
