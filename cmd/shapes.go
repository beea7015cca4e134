package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var shapesCmd = &cobra.Command{
	Use:   "shapes <version>",
	Short: "Lists the most common shape of each route and direction",
	Args:  cobra.ExactArgs(1),
	RunE:  shapes,
}

var shapePoints bool

func init() {
	shapesCmd.Flags().BoolVarP(&shapePoints, "points", "p", false, "Print shape points")
	rootCmd.AddCommand(shapesCmd)
}

func shapes(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	static, err := e.Manager.LoadSchedule(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	shapes, err := static.MostCommonShapes()
	if err != nil {
		return err
	}

	for _, shape := range shapes {
		fmt.Printf("%s %s: %s (%d trips, %.1f km)\n", shape.RouteID, shape.Direction, shape.ShapeID, shape.TripCount, shape.LengthKm)
		if shapePoints {
			for _, p := range shape.Points {
				fmt.Printf("  %f,%f\n", p.Lat, p.Lon)
			}
		}
	}

	return nil
}
