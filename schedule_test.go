package ghostbuses

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chihacknight/chn-ghost-buses/model"
)

func trip(id, routeID, serviceID string, directionID int8, direction string) *model.Trip {
	return &model.Trip{ID: id, RouteID: routeID, ServiceID: serviceID, DirectionID: directionID, Direction: direction}
}

func stopTime(tripID string, seq uint32, arrival string) *model.StopTime {
	return &model.StopTime{TripID: tripID, StopSequence: seq, Arrival: arrival, Departure: arrival}
}

func TestAggregateScheduledTripsPastMidnight(t *testing.T) {
	summary := AggregateScheduledTrips(
		[]model.ServiceDate{sd("2022-06-06", "wk")},
		[]*model.Trip{trip("owl", "N9", "wk", 0, "")},
		[]*model.StopTime{
			stopTime("owl", 1, "252000"),
			stopTime("owl", 2, "253000"),
		},
	)

	assert.Equal(t, []model.ScheduledTripCount{
		{Date: "2022-06-06", RouteID: "N9", Hour: 1, TripCount: 1},
	}, summary.ByRoute)
	assert.Equal(t, []model.ScheduledTripCount{
		{Date: "2022-06-06", RouteID: "N9", Direction: "0", Hour: 1, TripCount: 1},
	}, summary.ByDirection)
}

func TestAggregateScheduledTripsHourSpanning(t *testing.T) {
	// t1 visits hour 23 and (after midnight) hour 0. t2 stays in
	// hour 23 with several stops.
	summary := AggregateScheduledTrips(
		[]model.ServiceDate{sd("2022-06-06", "wk")},
		[]*model.Trip{
			trip("t1", "22", "wk", 1, "Northbound"),
			trip("t2", "22", "wk", 0, "Southbound"),
		},
		[]*model.StopTime{
			stopTime("t1", 1, "235000"),
			stopTime("t1", 2, "240500"),
			stopTime("t1", 3, "241000"),
			stopTime("t2", 1, "230000"),
			stopTime("t2", 2, "231500"),
			stopTime("t2", 3, "235900"),
		},
	)

	assert.Equal(t, []model.ScheduledTripCount{
		{Date: "2022-06-06", RouteID: "22", Hour: 0, TripCount: 1},
		{Date: "2022-06-06", RouteID: "22", Hour: 23, TripCount: 2},
	}, summary.ByRoute)
	assert.Equal(t, []model.ScheduledTripCount{
		{Date: "2022-06-06", RouteID: "22", Direction: "Northbound", Hour: 0, TripCount: 1},
		{Date: "2022-06-06", RouteID: "22", Direction: "Northbound", Hour: 23, TripCount: 1},
		{Date: "2022-06-06", RouteID: "22", Direction: "Southbound", Hour: 23, TripCount: 1},
	}, summary.ByDirection)
}

func TestAggregateScheduledTripsTotals(t *testing.T) {
	serviceDates := []model.ServiceDate{
		sd("2022-06-06", "wk"),
		sd("2022-06-07", "wk"),
		sd("2022-06-07", "extra"),
	}
	trips := []*model.Trip{
		trip("a", "9", "wk", 0, ""),
		trip("b", "9", "wk", 1, ""),
		trip("c", "9", "wk", 0, ""),
		trip("d", "9", "extra", 0, ""),
		trip("e", "X9", "wk", 0, ""),
		// No stop times.
		trip("f", "9", "wk", 0, ""),
		// Service never active.
		trip("g", "9", "sat", 0, ""),
	}
	stopTimes := []*model.StopTime{
		stopTime("a", 1, "060000"),
		stopTime("a", 2, "061500"),
		stopTime("b", 1, "071000"),
		stopTime("c", 1, "063000"),
		stopTime("d", 1, "120000"),
		stopTime("e", 1, "080000"),
		stopTime("g", 1, "090000"),
	}

	summary := AggregateScheduledTrips(serviceDates, trips, stopTimes)

	// Each trip here touches a single hour, so hourly counts sum
	// to the number of distinct trips running.
	daily := DailyScheduledTrips(summary.ByRoute)
	assert.Equal(t, map[string]map[string]int{
		"2022-06-06": {"9": 3, "X9": 1},
		"2022-06-07": {"9": 4, "X9": 1},
	}, daily)

	assert.Equal(t, []model.ScheduledTripCount{
		{Date: "2022-06-06", RouteID: "9", Hour: 6, TripCount: 2},
		{Date: "2022-06-06", RouteID: "9", Hour: 7, TripCount: 1},
		{Date: "2022-06-06", RouteID: "X9", Hour: 8, TripCount: 1},
		{Date: "2022-06-07", RouteID: "9", Hour: 6, TripCount: 2},
		{Date: "2022-06-07", RouteID: "9", Hour: 7, TripCount: 1},
		{Date: "2022-06-07", RouteID: "9", Hour: 12, TripCount: 1},
		{Date: "2022-06-07", RouteID: "X9", Hour: 8, TripCount: 1},
	}, summary.ByRoute)

	// Direction falls back to direction_id.
	byDirection := map[string]int{}
	for _, row := range summary.ByDirection {
		if row.Date == "2022-06-06" && row.RouteID == "9" {
			byDirection[row.Direction] += row.TripCount
		}
	}
	assert.Equal(t, map[string]int{"0": 2, "1": 1}, byDirection)
}

func TestAggregateScheduledTripsDuplicateTrips(t *testing.T) {
	summary := AggregateScheduledTrips(
		[]model.ServiceDate{sd("2022-06-06", "wk")},
		[]*model.Trip{
			trip("a", "9", "wk", 0, ""),
			trip("a", "9", "wk", 0, ""),
		},
		[]*model.StopTime{stopTime("a", 1, "060000")},
	)
	assert.Equal(t, []model.ScheduledTripCount{
		{Date: "2022-06-06", RouteID: "9", Hour: 6, TripCount: 1},
	}, summary.ByRoute)
}

func TestAggregateScheduledTripsEmpty(t *testing.T) {
	summary := AggregateScheduledTrips(nil, nil, nil)
	assert.Empty(t, summary.ByRoute)
	assert.Empty(t, summary.ByDirection)
}
