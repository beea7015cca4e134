package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

type ShapeCSV struct {
	ID       string  `csv:"shape_id"`
	Lat      float64 `csv:"shape_pt_lat"`
	Lon      float64 `csv:"shape_pt_lon"`
	Sequence uint32  `csv:"shape_pt_sequence"`
}

func ParseShapes(writer storage.FeedWriter, data io.Reader) error {
	type point struct {
		shape string
		seq   uint32
	}
	seen := map[point]bool{}

	i := 0
	err := gocsv.UnmarshalToCallbackWithError(data, func(s *ShapeCSV) error {
		i++
		if s.ID == "" {
			return fmt.Errorf("empty shape_id (row %d)", i)
		}
		key := point{s.ID, s.Sequence}
		if seen[key] {
			return fmt.Errorf("duplicate shape_pt_sequence %d for shape_id '%s'", s.Sequence, s.ID)
		}
		seen[key] = true

		err := writer.WriteShapePoint(&model.ShapePoint{
			ShapeID:  s.ID,
			Lat:      s.Lat,
			Lon:      s.Lon,
			Sequence: s.Sequence,
		})
		if err != nil {
			return fmt.Errorf("writing shape point (row %d): %w", i, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("unmarshaling shapes csv: %w", err)
	}

	return nil
}
