package ghostbuses

import (
	"fmt"
	"sort"

	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

// The shape most trips of a route and direction follow, for drawing
// the route on a map.
type RouteShape struct {
	RouteID   string
	Direction string
	ShapeID   string

	// Trips following this shape.
	TripCount int

	// Polyline, ordered by sequence.
	Points []*model.ShapePoint

	LengthKm float64
}

type routeDirectionKey struct {
	routeID   string
	direction string
}

// Picks the most frequent shape per (route, direction). Ties go to the
// lowest shape_id. Trips without a shape are ignored.
func MostCommonShapes(trips []*model.Trip, points []*model.ShapePoint) []RouteShape {
	counts := map[routeDirectionKey]map[string]int{}
	for _, trip := range trips {
		if trip.ShapeID == "" {
			continue
		}
		key := routeDirectionKey{trip.RouteID, trip.DirectionKey()}
		if counts[key] == nil {
			counts[key] = map[string]int{}
		}
		counts[key][trip.ShapeID]++
	}

	pointsByShape := map[string][]*model.ShapePoint{}
	for _, p := range points {
		pointsByShape[p.ShapeID] = append(pointsByShape[p.ShapeID], p)
	}
	for _, shape := range pointsByShape {
		sort.SliceStable(shape, func(i, j int) bool {
			return shape[i].Sequence < shape[j].Sequence
		})
	}

	shapes := make([]RouteShape, 0, len(counts))
	for key, byShape := range counts {
		best := ""
		for shapeID, n := range byShape {
			if best == "" || n > byShape[best] || (n == byShape[best] && shapeID < best) {
				best = shapeID
			}
		}

		polyline := pointsByShape[best]

		shapes = append(shapes, RouteShape{
			RouteID:   key.routeID,
			Direction: key.direction,
			ShapeID:   best,
			TripCount: byShape[best],
			Points:    polyline,
			LengthKm:  storage.PolylineLength(polyline),
		})
	}

	sort.Slice(shapes, func(i, j int) bool {
		if shapes[i].RouteID != shapes[j].RouteID {
			return shapes[i].RouteID < shapes[j].RouteID
		}
		return shapes[i].Direction < shapes[j].Direction
	})

	return shapes
}

func (s *Static) MostCommonShapes() ([]RouteShape, error) {
	trips, err := s.Reader.Trips()
	if err != nil {
		return nil, fmt.Errorf("getting trips: %w", err)
	}
	points, err := s.Reader.ShapePoints()
	if err != nil {
		return nil, fmt.Errorf("getting shape points: %w", err)
	}
	return MostCommonShapes(trips, points), nil
}
