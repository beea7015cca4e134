package main

import (
	"fmt"

	"github.com/spf13/cobra"

	ghostbuses "github.com/chihacknight/chn-ghost-buses"
)

var daytypeCmd = &cobra.Command{
	Use:   "daytype <date>...",
	Short: "Classifies dates as weekday, Saturday, Sunday or holiday",
	Args:  cobra.MinimumNArgs(1),
	RunE:  daytype,
}

func init() {
	rootCmd.AddCommand(daytypeCmd)
}

func daytype(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	classifier, err := ghostbuses.NewDayTypeClassifier(holidays(cfg))
	if err != nil {
		return err
	}

	for _, date := range args {
		dayType, err := classifier.Classify(date)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", date, dayType)
	}

	return nil
}
