package parse

import (
	"bytes"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

func TestParseStopTimeTime(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out string
		err bool
	}{
		{"12:34:56", "123456", false},
		{"1:02:03", "010203", false},
		{" 7:00:00", "070000", false},
		{"25:30:00", "253000", false},
		{"99:59:59", "995959", false},
		{"12:60:00", "", true},
		{"12:00:60", "", true},
		{"12:00", "", true},
		{"ab:00:00", "", true},
		{"", "", true},
	} {
		out, err := parseStopTimeTime(tc.in)
		if tc.err {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.out, out)
	}
}

func TestParseStopTimes(t *testing.T) {
	trips := map[string]bool{"t1": true, "t2": true}
	stops := map[string]bool{"s1": true, "s2": true, "s3": true}

	for _, tc := range []struct {
		name         string
		content      string
		expected     []*model.StopTime
		maxArrival   string
		maxDeparture string
		stats        Stats
		err          bool
	}{
		{
			"past midnight",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t1,23:50:00,23:50:00,s1,1
t1,24:10:00,24:11:00,s2,2
t1,25:30:00,25:30:00,s3,3`,
			[]*model.StopTime{
				{TripID: "t1", StopID: "s1", StopSequence: 1, Arrival: "235000", Departure: "235000"},
				{TripID: "t1", StopID: "s2", StopSequence: 2, Arrival: "241000", Departure: "241100"},
				{TripID: "t1", StopID: "s3", StopSequence: 3, Arrival: "253000", Departure: "253000"},
			},
			"253000",
			"253000",
			Stats{},
			false,
		},

		{
			"missing times filled from each other",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t2,,08:00:00,s1,1
t2,08:10:00,,s2,2`,
			[]*model.StopTime{
				{TripID: "t2", StopID: "s1", StopSequence: 1, Arrival: "080000", Departure: "080000"},
				{TripID: "t2", StopID: "s2", StopSequence: 2, Arrival: "081000", Departure: "081000"},
			},
			"081000",
			"081000",
			Stats{},
			false,
		},

		{
			"bad rows dropped and counted",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t1,08:00:00,08:00:00,s1,1
t1,8h10,08:10:00,s2,2
ghost,08:20:00,08:20:00,s3,3
t1,08:59:00,09:01:00,s3,4`,
			[]*model.StopTime{
				{TripID: "t1", StopID: "s1", StopSequence: 1, Arrival: "080000", Departure: "080000"},
				{TripID: "t1", StopID: "s3", StopSequence: 4, Arrival: "085900", Departure: "090100"},
			},
			"085900",
			"090100",
			Stats{TimeParseErrors: 1, UnknownTrips: 1, HourMismatches: 1},
			false,
		},

		{
			"dwell across midnight",
			`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t1,23:59:00,24:01:00,s1,1
t1,24:30:00,24:40:00,s2,2`,
			[]*model.StopTime{
				{TripID: "t1", StopID: "s1", StopSequence: 1, Arrival: "235900", Departure: "240100"},
				{TripID: "t1", StopID: "s2", StopSequence: 2, Arrival: "243000", Departure: "244000"},
			},
			"243000",
			"244000",
			Stats{HourMismatches: 1},
			false,
		},

		{"unknown stop", `
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t1,08:00:00,08:00:00,s9,1`, nil, "", "", Stats{}, true},

		{"missing stop", `
trip_id,arrival_time,departure_time,stop_sequence
t1,08:00:00,08:00:00,1`, nil, "", "", Stats{}, true},

		{"duplicate stop_sequence", `
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t1,08:00:00,08:00:00,s1,1
t1,08:05:00,08:05:00,s2,1`, nil, "", "", Stats{}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := storage.NewMemoryStorage()
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			stats := &Stats{}
			require.NoError(t, writer.BeginStopTimes())
			maxArrival, maxDeparture, err := ParseStopTimes(writer, bytes.NewBufferString(tc.content), trips, stops, stats)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, writer.EndStopTimes())

			assert.Equal(t, tc.maxArrival, maxArrival)
			assert.Equal(t, tc.maxDeparture, maxDeparture)
			assert.Equal(t, tc.stats.TimeParseErrors, stats.TimeParseErrors)
			assert.Equal(t, tc.stats.UnknownTrips, stats.UnknownTrips)
			assert.Equal(t, tc.stats.HourMismatches, stats.HourMismatches)
			assert.Equal(t, stats.TimeParseErrors, len(stats.Samples))

			reader, err := s.GetReader("test")
			require.NoError(t, err)
			sts, err := reader.StopTimes()
			require.NoError(t, err)
			sort.Slice(sts, func(i, j int) bool {
				if sts[i].TripID != sts[j].TripID {
					return sts[i].TripID < sts[j].TripID
				}
				return sts[i].StopSequence < sts[j].StopSequence
			})
			assert.Equal(t, tc.expected, sts)
		})
	}
}

func TestTimeParseErrorSample(t *testing.T) {
	s := storage.NewMemoryStorage()
	writer, err := s.GetWriter("test")
	require.NoError(t, err)

	stats := &Stats{}
	_, _, err = ParseStopTimes(writer, bytes.NewBufferString(`
trip_id,arrival_time,departure_time,stop_id,stop_sequence
t1,08:00:00,nonsense,s1,1`), map[string]bool{"t1": true}, map[string]bool{"s1": true}, stats)
	require.NoError(t, err)

	require.Len(t, stats.Samples, 1)
	var tpe *TimeParseError
	require.True(t, errors.As(stats.Samples[0], &tpe))
	assert.Equal(t, "departure_time", tpe.Field)
	assert.Equal(t, "nonsense", tpe.Value)
	assert.Equal(t, 1, tpe.Row)
	assert.Equal(t, 1, stats.Dropped())
}
