package parse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

// A time value that could not be parsed. Rows carrying one are
// dropped and counted rather than failing the whole input.
type TimeParseError struct {
	Field string
	Value string
	Row   int
	Err   error
}

func (e *TimeParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("parsing %s '%s' (row %d): %v", e.Field, e.Value, e.Row, e.Err)
	}
	return fmt.Sprintf("parsing %s '%s': %v", e.Field, e.Value, e.Err)
}

func (e *TimeParseError) Unwrap() error {
	return e.Err
}

type StopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  uint32 `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	Headsign      string `csv:"stop_headsign"`
}

// Converts "H:MM:SS" or "HH:MM:SS" into "HHMMSS". Hours past 23 are
// kept as is.
func parseStopTimeTime(s string) (string, error) {
	split := strings.Split(strings.TrimSpace(s), ":")
	if len(split) != 3 {
		return "", fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(str)
		if err != nil {
			return "", fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[0] > 99 {
		return "", fmt.Errorf("invalid hour in '%s'", s)
	}
	if hms[1] < 0 || hms[1] > 59 {
		return "", fmt.Errorf("invalid minute in '%s'", s)
	}
	if hms[2] < 0 || hms[2] > 59 {
		return "", fmt.Errorf("invalid second in '%s'", s)
	}

	return fmt.Sprintf("%02d%02d%02d", hms[0], hms[1], hms[2]), nil
}

// Parses stop_times.txt. Rows with unparseable times or unknown trips
// are dropped and counted in stats. A missing departure_time is
// taken to equal arrival_time, and vice versa. Returns max arrival
// and departure times.
func ParseStopTimes(
	writer storage.FeedWriter,
	data io.Reader,
	trips map[string]bool,
	stops map[string]bool,
	stats *Stats,
) (string, string, error) {

	stopSeq := map[string]map[uint32]bool{}

	maxArrival := "000000"
	maxDeparture := "000000"

	i := 0
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *StopTimeCSV) error {
		i += 1
		if !trips[st.TripID] {
			stats.UnknownTrips++
			return nil
		}
		if st.StopID == "" {
			return fmt.Errorf("missing stop_id (row %d)", i)
		}
		if !stops[st.StopID] {
			return fmt.Errorf("unknown stop_id: '%s' (row %d)", st.StopID, i)
		}

		if st.ArrivalTime == "" {
			st.ArrivalTime = st.DepartureTime
		}
		if st.DepartureTime == "" {
			st.DepartureTime = st.ArrivalTime
		}

		arrivalTime, err := parseStopTimeTime(st.ArrivalTime)
		if err != nil {
			stats.timeParseError(&TimeParseError{Field: "arrival_time", Value: st.ArrivalTime, Row: i, Err: err})
			return nil
		}
		departureTime, err := parseStopTimeTime(st.DepartureTime)
		if err != nil {
			stats.timeParseError(&TimeParseError{Field: "departure_time", Value: st.DepartureTime, Row: i, Err: err})
			return nil
		}

		stopTime := &model.StopTime{
			TripID:       st.TripID,
			StopID:       st.StopID,
			Headsign:     st.Headsign,
			StopSequence: st.StopSequence,
			Arrival:      arrivalTime,
			Departure:    departureTime,
		}
		if stopTime.ArrivalHour() != stopTime.DepartureHour() {
			stats.HourMismatches++
		}

		seen := stopSeq[st.TripID]
		if seen == nil {
			seen = map[uint32]bool{}
			stopSeq[st.TripID] = seen
		}
		if seen[st.StopSequence] {
			return fmt.Errorf("duplicate stop_sequence %d for trip_id '%s' (row %d)", st.StopSequence, st.TripID, i)
		}
		seen[st.StopSequence] = true

		if arrivalTime > maxArrival {
			maxArrival = arrivalTime
		}
		if departureTime > maxDeparture {
			maxDeparture = departureTime
		}

		err = writer.WriteStopTime(stopTime)
		if err != nil {
			return errors.Wrapf(err, "writing stop_time (row %d)", i)
		}

		return nil
	})

	if err != nil {
		return "", "", errors.Wrap(err, "unmarshaling stop_times csv")
	}

	return maxArrival, maxDeparture, nil
}
