package ghostbuses

import (
	"sort"

	"github.com/chihacknight/chn-ghost-buses/model"
)

// Scheduled trip counts per hour, at route and route-direction
// granularity.
type ScheduleSummary struct {
	ByRoute     []model.ScheduledTripCount
	ByDirection []model.ScheduledTripCount
}

type routeHourKey struct {
	date      string
	routeID   string
	direction string
	hour      int
}

// Counts, for every date a trip's service runs, the distinct trips
// touching each hour. A trip is counted once in every hour in which
// any of its stops arrives, with hours past midnight folded back into
// 0-23. Trips with no stop times contribute nothing.
func AggregateScheduledTrips(
	serviceDates []model.ServiceDate,
	trips []*model.Trip,
	stopTimes []*model.StopTime,
) *ScheduleSummary {
	hours := map[string]map[int]bool{}
	for _, st := range stopTimes {
		h, found := hours[st.TripID]
		if !found {
			h = map[int]bool{}
			hours[st.TripID] = h
		}
		h[st.ArrivalHour()] = true
	}

	tripsByService := map[string][]*model.Trip{}
	seen := map[string]bool{}
	for _, trip := range trips {
		if seen[trip.ID] {
			continue
		}
		seen[trip.ID] = true
		tripsByService[trip.ServiceID] = append(tripsByService[trip.ServiceID], trip)
	}

	byRoute := map[routeHourKey]int{}
	byDirection := map[routeHourKey]int{}
	for _, sd := range serviceDates {
		for _, trip := range tripsByService[sd.ServiceID] {
			direction := trip.DirectionKey()
			for hour := range hours[trip.ID] {
				byRoute[routeHourKey{sd.Date, trip.RouteID, "", hour}]++
				byDirection[routeHourKey{sd.Date, trip.RouteID, direction, hour}]++
			}
		}
	}

	return &ScheduleSummary{
		ByRoute:     tripCounts(byRoute),
		ByDirection: tripCounts(byDirection),
	}
}

func tripCounts(counts map[routeHourKey]int) []model.ScheduledTripCount {
	rows := make([]model.ScheduledTripCount, 0, len(counts))
	for k, n := range counts {
		rows = append(rows, model.ScheduledTripCount{
			Date:      k.date,
			RouteID:   k.routeID,
			Direction: k.direction,
			Hour:      k.hour,
			TripCount: n,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.RouteID != b.RouteID {
			return a.RouteID < b.RouteID
		}
		if a.Direction != b.Direction {
			return a.Direction < b.Direction
		}
		return a.Hour < b.Hour
	})
	return rows
}

// Sums a route level summary over the hours of each day, keyed by
// date and then route.
func DailyScheduledTrips(rows []model.ScheduledTripCount) map[string]map[string]int {
	daily := map[string]map[string]int{}
	for _, row := range rows {
		routes, found := daily[row.Date]
		if !found {
			routes = map[string]int{}
			daily[row.Date] = routes
		}
		routes[row.RouteID] += row.TripCount
	}
	return daily
}
