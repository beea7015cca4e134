package ghostbuses

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/parse"
)

// Layout of the derived data_time column.
const DataTimeLayout = "2006-01-02 15:04:05"

// One scraper batch: the raw body of a single poll of the vehicle
// API, and the name it was stored under.
type Batch struct {
	ID   string
	Body []byte
}

// A day's batches, flattened.
type CombinedDay struct {
	Vehicles []model.Observation
	Errors   []model.ObservationError

	// Vehicle rows dropped for carrying a bad tmstmp.
	TimeParseErrors []*parse.TimeParseError

	// Batches that could not be decoded at all.
	BadBatches []error
}

// Suffix of batches holding a GTFS Realtime VehiclePositions feed.
// Any other batch is a bus tracker API response.
const VehiclePositionsExt = ".pb"

// Flattens and timestamps every batch of a day. Vehicle positions
// feeds are rendered in loc. Batches without vehicle or error rows
// vanish. Undecodable batches are recorded and skipped.
func CombineBatches(batches []Batch, loc *time.Location) *CombinedDay {
	day := &CombinedDay{}

	sorted := append([]Batch{}, batches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	for _, b := range sorted {
		if strings.HasSuffix(b.ID, VehiclePositionsExt) {
			vehicles, err := parse.ParseVehiclePositions(b.ID, b.Body, loc)
			if err != nil {
				day.BadBatches = append(day.BadBatches, fmt.Errorf("decoding batch %s: %w", b.ID, err))
				continue
			}
			day.Vehicles = append(day.Vehicles, vehicles...)
			continue
		}

		vehicles, errs, err := parse.FlattenBatch(b.ID, b.Body)
		if err != nil {
			day.BadBatches = append(day.BadBatches, err)
			continue
		}
		day.Vehicles = append(day.Vehicles, vehicles...)
		day.Errors = append(day.Errors, errs...)
	}

	var timeErrs []*parse.TimeParseError
	day.Vehicles, timeErrs = DeriveObservationTimes(day.Vehicles)
	day.TimeParseErrors = timeErrs

	return day
}

// Fills data_time, data_date and data_hour from each row's vendor
// timestamp. Timestamps are wall clock already, so the hour is used
// as is. Rows with unparseable timestamps are left out and reported.
func DeriveObservationTimes(rows []model.Observation) ([]model.Observation, []*parse.TimeParseError) {
	kept := make([]model.Observation, 0, len(rows))
	var errs []*parse.TimeParseError

	for i, row := range rows {
		t, err := time.Parse(parse.ObservationTimestampLayout, row.Timestamp)
		if err != nil {
			errs = append(errs, &parse.TimeParseError{
				Field: "tmstmp",
				Value: row.Timestamp,
				Row:   i + 1,
				Err:   err,
			})
			continue
		}
		row.DataTime = t.Format(DataTimeLayout)
		row.DataDate = t.Format(model.DateLayout)
		row.DataHour = t.Hour()
		kept = append(kept, row)
	}

	return kept, errs
}

type observedKey struct {
	date  string
	hour  int
	route string
	dest  string
}

type observedSets struct {
	vehicles map[string]bool
	trips    map[string]bool
	blocks   map[string]bool
}

func addID(set map[string]bool, id string) {
	if id != "" {
		set[id] = true
	}
}

// Buckets timestamped rows by (date, hour, route, destination),
// counting distinct vehicles, trips and blocks in each. Empty ids are
// not counted. Returns nil for no rows, so a day without data stays
// distinguishable from one with zero trips.
func AggregateObservations(rows []model.Observation) []model.ObservedTripCount {
	if len(rows) == 0 {
		return nil
	}

	buckets := map[observedKey]*observedSets{}
	for _, row := range rows {
		key := observedKey{row.DataDate, row.DataHour, row.Route, row.Dest}
		sets, found := buckets[key]
		if !found {
			sets = &observedSets{
				vehicles: map[string]bool{},
				trips:    map[string]bool{},
				blocks:   map[string]bool{},
			}
			buckets[key] = sets
		}
		addID(sets.vehicles, row.VehicleID)
		addID(sets.trips, row.TripID)
		addID(sets.blocks, row.BlockID)
	}

	counts := make([]model.ObservedTripCount, 0, len(buckets))
	for key, sets := range buckets {
		counts = append(counts, model.ObservedTripCount{
			DataDate:     key.date,
			DataHour:     key.hour,
			Route:        key.route,
			Destination:  key.dest,
			VehicleCount: len(sets.vehicles),
			TripCount:    len(sets.trips),
			BlockCount:   len(sets.blocks),
		})
	}
	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.DataDate != b.DataDate {
			return a.DataDate < b.DataDate
		}
		if a.DataHour != b.DataHour {
			return a.DataHour < b.DataHour
		}
		if a.Route != b.Route {
			return a.Route < b.Route
		}
		return a.Destination < b.Destination
	})

	return counts
}

// Sums observed trip counts per route over a day's buckets.
func DailyObservedTrips(rows []model.ObservedTripCount) map[string]int {
	daily := map[string]int{}
	for _, row := range rows {
		daily[row.Route] += row.TripCount
	}
	return daily
}
