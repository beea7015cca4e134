package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/chihacknight/chn-ghost-buses/storage"
)

// Returned when a table required for schedule summaries is absent
// from a feed.
type MissingFileError struct {
	File string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("missing %s", e.File)
}

// Counts of rows that were dropped or flagged, rather than failing
// the whole feed.
type Stats struct {
	// stop_times rows with unparseable times.
	TimeParseErrors int

	// stop_times rows referencing a trip not in trips.txt.
	UnknownTrips int

	// stop_times rows whose arrival and departure fall in
	// different hours.
	HourMismatches int

	// Optional tables that were absent, and replaced by empty
	// ones.
	MissingOptional []string

	// The first few time parse errors, for logging.
	Samples []error
}

const maxSamples = 10

func (s *Stats) timeParseError(err *TimeParseError) {
	s.TimeParseErrors++
	if len(s.Samples) < maxSamples {
		s.Samples = append(s.Samples, err)
	}
}

// Dropped is the total number of rows left out of storage.
func (s *Stats) Dropped() int {
	return s.TimeParseErrors + s.UnknownTrips
}

var requiredFiles = []string{"routes.txt", "stops.txt", "trips.txt", "stop_times.txt"}

var optionalFiles = []string{"agency.txt", "calendar.txt", "calendar_dates.txt", "shapes.txt"}

func init() {
	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

func ParseStatic(writer storage.FeedWriter, buf []byte) (*storage.FeedMetadata, *Stats, error) {
	file := map[string]io.ReadCloser{}
	for _, name := range append(append([]string{}, requiredFiles...), optionalFiles...) {
		file[name] = nil
	}

	defer func() {
		for _, rc := range file {
			if rc != nil {
				rc.Close()
			}
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, nil, fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if rc, found := file[fName]; !found || rc != nil {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	for _, required := range requiredFiles {
		if file[required] == nil {
			return nil, nil, &MissingFileError{File: required}
		}
	}

	stats := &Stats{}
	for _, optional := range optionalFiles {
		if file[optional] == nil {
			stats.MissingOptional = append(stats.MissingOptional, optional)
		}
	}

	// Parse agency.txt. Extract timezone and set of agency IDs in
	// the process. A nil agency set disables agency_id checks on
	// routes.
	var agency map[string]bool
	var timezone string
	if file["agency.txt"] != nil {
		agency, timezone, err = ParseAgency(writer, file["agency.txt"])
		if err != nil {
			return nil, nil, fmt.Errorf("parsing agency.txt: %w", err)
		}
	}

	// Parse routes.txt. Extract route IDs in the process.
	routes, err := ParseRoutes(writer, file["routes.txt"], agency)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing routes.txt: %w", err)
	}

	// Parse calendar.txt and calendar_dates.txt. Extract min/max
	// date of services seen.
	var calendarStart, calendarEnd string
	if file["calendar.txt"] != nil {
		_, calendarStart, calendarEnd, err = ParseCalendar(writer, file["calendar.txt"])
		if err != nil {
			return nil, nil, fmt.Errorf("parsing calendar.txt: %w", err)
		}
	}
	if file["calendar_dates.txt"] != nil {
		_, minDate, maxDate, err := ParseCalendarDates(writer, file["calendar_dates.txt"])
		if err != nil {
			return nil, nil, fmt.Errorf("parsing calendar_dates.txt: %w", err)
		}
		if minDate != "" && (calendarStart == "" || minDate < calendarStart) {
			calendarStart = minDate
		}
		if maxDate != "" && (calendarEnd == "" || maxDate > calendarEnd) {
			calendarEnd = maxDate
		}
	}

	// Parse trips.txt. Extract trip IDs in the process.
	err = writer.BeginTrips()
	if err != nil {
		return nil, nil, fmt.Errorf("beginning trips: %w", err)
	}
	trips, err := ParseTrips(writer, file["trips.txt"], routes)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing trips.txt: %w", err)
	}
	err = writer.EndTrips()
	if err != nil {
		return nil, nil, fmt.Errorf("ending trips: %w", err)
	}

	stops, err := ParseStops(writer, file["stops.txt"])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing stops.txt: %w", err)
	}

	if file["shapes.txt"] != nil {
		err = ParseShapes(writer, file["shapes.txt"])
		if err != nil {
			return nil, nil, fmt.Errorf("parsing shapes.txt: %w", err)
		}
	}

	// Parse stop_times.txt.
	err = writer.BeginStopTimes()
	if err != nil {
		return nil, nil, fmt.Errorf("beginning stop_times: %w", err)
	}
	maxArrival, maxDeparture, err := ParseStopTimes(writer, file["stop_times.txt"], trips, stops, stats)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing stop_times.txt: %w", err)
	}
	err = writer.EndStopTimes()
	if err != nil {
		return nil, nil, fmt.Errorf("ending stop_times: %w", err)
	}

	// All files parsed: close the writer.
	err = writer.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("closing feed writer: %w", err)
	}

	// And return a (partial) metadata holding some key
	// information about the feed.
	return &storage.FeedMetadata{
		CalendarStartDate: calendarStart,
		CalendarEndDate:   calendarEnd,
		Timezone:          timezone,
		MaxArrival:        maxArrival,
		MaxDeparture:      maxDeparture,
	}, stats, nil
}
