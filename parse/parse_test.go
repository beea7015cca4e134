package parse

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

func buildZip(t *testing.T, files map[string][]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for filename, content := range files {
		f, err := w.Create(filename)
		require.NoError(t, err)
		_, err = f.Write([]byte(strings.Join(content, "\n")))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

// A small bus feed with all tables present
func fixtureSimple() map[string][]string {
	return map[string][]string{
		"agency.txt": {
			"agency_timezone,agency_name,agency_url",
			"America/Chicago,Chicago Transit Authority,http://transitchicago.com",
		},
		"routes.txt": {
			"route_id,route_short_name,route_type",
			"9,9,3",
		},
		"calendar.txt": {
			"service_id,monday,start_date,end_date",
			"mondays,1,20220501,20220630",
		},
		"calendar_dates.txt": {
			"service_id,date,exception_type",
			"mondays,20220704,1",
		},
		"trips.txt": {
			"route_id,service_id,trip_id,direction_id,direction,shape_id,block_id",
			"9,mondays,t,1,Northbound,sh,b1",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"s,Ashland & 95th,41.72,-87.66",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t,12:00:00,12:00:00,s,1",
		},
		"shapes.txt": {
			"shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence",
			"sh,41.72,-87.66,1",
			"sh,41.73,-87.66,2",
		},
	}
}

func TestParseValidFeed(t *testing.T) {
	s, err := storage.NewSQLiteStorage()
	require.NoError(t, err)
	writer, err := s.GetWriter("test")
	require.NoError(t, err)

	metadata, stats, err := ParseStatic(writer, buildZip(t, fixtureSimple()))
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", metadata.Timezone)
	assert.Equal(t, "20220501", metadata.CalendarStartDate)
	assert.Equal(t, "20220704", metadata.CalendarEndDate)
	assert.Equal(t, "120000", metadata.MaxArrival)
	assert.Equal(t, "120000", metadata.MaxDeparture)
	assert.Equal(t, 0, stats.Dropped())
	assert.Empty(t, stats.MissingOptional)

	reader, err := s.GetReader("test")
	require.NoError(t, err)

	routes, err := reader.Routes()
	require.NoError(t, err)
	assert.Equal(t, []*model.Route{{
		ID:        "9",
		ShortName: "9",
		Type:      model.RouteTypeBus,
		Color:     "FFFFFF",
		TextColor: "000000",
	}}, routes)

	calendar, err := reader.Calendars()
	require.NoError(t, err)
	assert.Equal(t, []*model.Calendar{{
		ServiceID: "mondays",
		Weekday:   1 << time.Monday,
		StartDate: "20220501",
		EndDate:   "20220630",
	}}, calendar)

	calendarDates, err := reader.CalendarDates()
	require.NoError(t, err)
	assert.Equal(t, []*model.CalendarDate{{
		ServiceID:     "mondays",
		Date:          "20220704",
		ExceptionType: model.ExceptionAdded,
	}}, calendarDates)

	trips, err := reader.Trips()
	require.NoError(t, err)
	assert.Equal(t, []*model.Trip{{
		ID:          "t",
		RouteID:     "9",
		ServiceID:   "mondays",
		DirectionID: 1,
		Direction:   "Northbound",
		ShapeID:     "sh",
		BlockID:     "b1",
	}}, trips)

	stopTimes, err := reader.StopTimes()
	require.NoError(t, err)
	assert.Equal(t, []*model.StopTime{{
		TripID:       "t",
		Arrival:      "120000",
		Departure:    "120000",
		StopID:       "s",
		StopSequence: 1,
	}}, stopTimes)

	shapes, err := reader.ShapePoints()
	require.NoError(t, err)
	assert.Equal(t, []*model.ShapePoint{
		{ShapeID: "sh", Lat: 41.72, Lon: -87.66, Sequence: 1},
		{ShapeID: "sh", Lat: 41.73, Lon: -87.66, Sequence: 2},
	}, shapes)
}

func TestParseMissingRequiredFile(t *testing.T) {
	for _, file := range []string{
		"routes.txt",
		"trips.txt",
		"stops.txt",
		"stop_times.txt",
	} {
		writer, err := storage.NewMemoryStorage().GetWriter("test")
		require.NoError(t, err)

		files := fixtureSimple()
		delete(files, file)
		_, _, err = ParseStatic(writer, buildZip(t, files))
		require.Error(t, err, "missing "+file)

		var missing *MissingFileError
		require.True(t, errors.As(err, &missing))
		assert.Equal(t, file, missing.File)
	}
}

func TestParseMissingOptionalFile(t *testing.T) {
	// calendar_dates.txt absent: only calendar.txt dates count.
	writer, err := storage.NewMemoryStorage().GetWriter("test")
	require.NoError(t, err)
	files := fixtureSimple()
	delete(files, "calendar_dates.txt")
	metadata, stats, err := ParseStatic(writer, buildZip(t, files))
	require.NoError(t, err)
	assert.Equal(t, "20220501", metadata.CalendarStartDate)
	assert.Equal(t, "20220630", metadata.CalendarEndDate)
	assert.Equal(t, []string{"calendar_dates.txt"}, stats.MissingOptional)

	// calendar.txt absent
	writer, err = storage.NewMemoryStorage().GetWriter("test")
	require.NoError(t, err)
	files = fixtureSimple()
	delete(files, "calendar.txt")
	metadata, _, err = ParseStatic(writer, buildZip(t, files))
	require.NoError(t, err)
	assert.Equal(t, "20220704", metadata.CalendarStartDate)
	assert.Equal(t, "20220704", metadata.CalendarEndDate)

	// Everything optional absent. The feed parses, but has no
	// service dates.
	s := storage.NewMemoryStorage()
	writer, err = s.GetWriter("test")
	require.NoError(t, err)
	files = fixtureSimple()
	for _, f := range []string{"agency.txt", "calendar.txt", "calendar_dates.txt", "shapes.txt"} {
		delete(files, f)
	}
	metadata, stats, err = ParseStatic(writer, buildZip(t, files))
	require.NoError(t, err)
	assert.Equal(t, "", metadata.CalendarStartDate)
	assert.Equal(t, "", metadata.Timezone)
	assert.ElementsMatch(t, []string{"agency.txt", "calendar.txt", "calendar_dates.txt", "shapes.txt"}, stats.MissingOptional)

	reader, err := s.GetReader("test")
	require.NoError(t, err)
	shapes, err := reader.ShapePoints()
	require.NoError(t, err)
	assert.Empty(t, shapes)
}

func TestParseBrokenFile(t *testing.T) {
	// Individual files in the feed broken.
	for _, file := range []string{
		"agency.txt",
		"routes.txt",
		"calendar.txt",
		"calendar_dates.txt",
		"trips.txt",
		"stops.txt",
		"stop_times.txt",
		"shapes.txt",
	} {
		writer, err := storage.NewMemoryStorage().GetWriter("test")
		require.NoError(t, err)

		files := fixtureSimple()
		files[file][1] = "malformed"

		_, _, err = ParseStatic(writer, buildZip(t, files))
		assert.Error(t, err, "malformed "+file)
	}

	// Zip file broken.
	writer, err := storage.NewMemoryStorage().GetWriter("test")
	require.NoError(t, err)

	_, _, err = ParseStatic(writer, []byte("malformed"))
	assert.Error(t, err, "malformed zip file")
}

func TestParseDropsBadStopTimes(t *testing.T) {
	s := storage.NewMemoryStorage()
	writer, err := s.GetWriter("test")
	require.NoError(t, err)

	files := fixtureSimple()
	files["stop_times.txt"] = []string{
		"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
		"t,12:00:00,12:00:00,s,1",
		"t,12:xx:00,12:05:00,s,2",
		"ghost,12:10:00,12:10:00,s,1",
		"t,12:59:00,13:01:00,s,3",
	}

	_, stats, err := ParseStatic(writer, buildZip(t, files))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TimeParseErrors)
	assert.Equal(t, 1, stats.UnknownTrips)
	assert.Equal(t, 1, stats.HourMismatches)
	assert.Equal(t, 2, stats.Dropped())
	require.Len(t, stats.Samples, 1)

	var tpe *TimeParseError
	require.True(t, errors.As(stats.Samples[0], &tpe))
	assert.Equal(t, "arrival_time", tpe.Field)
	assert.Equal(t, 2, tpe.Row)

	reader, err := s.GetReader("test")
	require.NoError(t, err)
	stopTimes, err := reader.StopTimes()
	require.NoError(t, err)
	assert.Len(t, stopTimes, 2)
}

// Some agencies place files in subdirectories. They shouldn't, but
// they do. Make sure we can handle that.
func TestParseUnorthodoxArchiveStructure(t *testing.T) {
	badFiles := map[string][]string{}
	for name, contents := range fixtureSimple() {
		badFiles["bad/agency/"+name] = contents
	}

	writer, err := storage.NewMemoryStorage().GetWriter("test")
	require.NoError(t, err)

	metadata, _, err := ParseStatic(writer, buildZip(t, badFiles))
	require.NoError(t, err)
	assert.Equal(t, "America/Chicago", metadata.Timezone)
	assert.Equal(t, "20220501", metadata.CalendarStartDate)
	assert.Equal(t, "20220704", metadata.CalendarEndDate)
}
