package ghostbuses

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chihacknight/chn-ghost-buses/model"
)

// Schedule vs realtime comparison for one feed period.
type FeedComparison struct {
	Feed      model.FeedDescriptor
	Daily     []model.DailyComparison
	ByDayType []model.DayTypeComparison

	// Dates in the feed's range with realtime data.
	ObservedDates []string

	// Dates in the feed's range without realtime data. These are
	// left out of the comparison, not counted as zero.
	MissingDates []string
}

// Compares a feed's route level schedule summary with observed trip
// counts, keyed by date. Only dates inside the feed's range that have
// observed data take part. Within a date, routes from either side are
// kept: a scheduled route nobody observed counts zero observed trips,
// and an observed route missing from the schedule counts zero
// scheduled ones.
func CompareFeed(
	feed model.FeedDescriptor,
	scheduled []model.ScheduledTripCount,
	observed map[string][]model.ObservedTripCount,
	classifier *DayTypeClassifier,
) (*FeedComparison, error) {
	dates, err := feed.Dates()
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feed, err)
	}

	schedDaily := DailyScheduledTrips(scheduled)

	fc := &FeedComparison{Feed: feed}
	for _, date := range dates {
		obsRows, found := observed[date]
		if !found {
			fc.MissingDates = append(fc.MissingDates, date)
			continue
		}

		dayType, err := classifier.Classify(date)
		if err != nil {
			return nil, err
		}
		fc.ObservedDates = append(fc.ObservedDates, date)

		obsDaily := DailyObservedTrips(obsRows)
		sched := schedDaily[date]

		routes := map[string]bool{}
		for route := range sched {
			routes[route] = true
		}
		for route := range obsDaily {
			routes[route] = true
		}

		for route := range routes {
			fc.Daily = append(fc.Daily, model.DailyComparison{
				Date:           date,
				RouteID:        route,
				DayType:        dayType,
				TripCountRT:    obsDaily[route],
				TripCountSched: sched[route],
				FeedVersion:    feed.ScheduleVersion,
			})
		}
	}

	sort.Slice(fc.Daily, func(i, j int) bool {
		if fc.Daily[i].Date != fc.Daily[j].Date {
			return fc.Daily[i].Date < fc.Daily[j].Date
		}
		return fc.Daily[i].RouteID < fc.Daily[j].RouteID
	})

	fc.ByDayType = rollUpDaily(fc.Daily)

	return fc, nil
}

type dayTypeKey struct {
	routeID string
	dayType model.DayType
}

// Running (route, day type) sums.
type dayTypeTotals map[dayTypeKey]*dayTypeSums

type dayTypeSums struct {
	rt       int
	sched    int
	versions map[string]bool
}

func (t dayTypeTotals) add(key dayTypeKey, rt, sched int, versions string) {
	s, found := t[key]
	if !found {
		s = &dayTypeSums{versions: map[string]bool{}}
		t[key] = s
	}
	s.rt += rt
	s.sched += sched
	for _, v := range strings.Split(versions, "|") {
		if v != "" {
			s.versions[v] = true
		}
	}
}

func (t dayTypeTotals) rows() []model.DayTypeComparison {
	rows := make([]model.DayTypeComparison, 0, len(t))
	for key, s := range t {
		versions := make([]string, 0, len(s.versions))
		for v := range s.versions {
			versions = append(versions, v)
		}
		sort.Strings(versions)

		ratio := model.NewRatio(s.rt, s.sched)
		rows = append(rows, model.DayTypeComparison{
			RouteID:        key.routeID,
			DayType:        key.dayType,
			TripCountRT:    s.rt,
			TripCountSched: s.sched,
			Ratio:          ratio,
			RatioStatus:    ratio.Status(),
			FeedVersion:    strings.Join(versions, "|"),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RouteID != rows[j].RouteID {
			return rows[i].RouteID < rows[j].RouteID
		}
		return rows[i].DayType < rows[j].DayType
	})

	return rows
}

func rollUpDaily(daily []model.DailyComparison) []model.DayTypeComparison {
	totals := dayTypeTotals{}
	for _, d := range daily {
		totals.add(dayTypeKey{d.RouteID, d.DayType}, d.TripCountRT, d.TripCountSched, d.FeedVersion)
	}
	return totals.rows()
}

// Re-sums (route, day type) rows, typically from several feed
// periods, and derives ratios from the summed counts. Ratios of the
// input rows are ignored.
func SummarizeDayTypes(rows []model.DayTypeComparison) []model.DayTypeComparison {
	totals := dayTypeTotals{}
	for _, r := range rows {
		totals.add(dayTypeKey{r.RouteID, r.DayType}, r.TripCountRT, r.TripCountSched, r.FeedVersion)
	}
	return totals.rows()
}

// Concatenates the per period roll ups of several feeds and
// summarizes them into one history.
func CombineComparisons(feeds []*FeedComparison) []model.DayTypeComparison {
	all := []model.DayTypeComparison{}
	for _, fc := range feeds {
		all = append(all, fc.ByDayType...)
	}
	return SummarizeDayTypes(all)
}
