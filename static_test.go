package ghostbuses_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghostbuses "github.com/chihacknight/chn-ghost-buses"
	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/storage"
	"github.com/chihacknight/chn-ghost-buses/testutil"
)

// Two routes around the July 4th holiday. Weekday service is swapped
// for Sunday service on the 4th.
func fixtureJuly() map[string][]string {
	return map[string][]string{
		"routes.txt": {
			"route_id,route_short_name,route_long_name,route_type",
			"22,22,Clark,3",
			"9,9,Ashland,3",
		},
		"calendar.txt": {
			"service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date",
			"wk,1,1,1,1,1,0,0,20220601,20220731",
			"sat,0,0,0,0,0,1,0,20220601,20220731",
			"sun,0,0,0,0,0,0,1,20220601,20220731",
		},
		"calendar_dates.txt": {
			"service_id,date,exception_type",
			"wk,20220704,2",
			"sun,20220704,1",
		},
		"trips.txt": {
			"route_id,service_id,trip_id,direction_id,direction,shape_id",
			"22,wk,t22a,1,Northbound,sh22n",
			"22,wk,t22b,0,Southbound,sh22s",
			"22,sun,t22c,1,Northbound,sh22n",
			"22,wk,t22d,1,Northbound,sh22x",
			"9,wk,t9a,0,,sh9b",
			"9,wk,t9owl,0,,sh9a",
		},
		"stops.txt": {
			"stop_id,stop_name,stop_lat,stop_lon",
			"clark_howard,Clark & Howard,42.019,-87.673",
			"clark_harrison,Clark & Harrison,41.874,-87.631",
			"ashland_95th,Ashland & 95th,41.721,-87.663",
		},
		"stop_times.txt": {
			"trip_id,arrival_time,departure_time,stop_id,stop_sequence",
			"t22a,07:00:00,07:00:00,clark_harrison,1",
			"t22a,07:45:00,07:45:00,clark_howard,2",
			"t22b,07:30:00,07:30:00,clark_howard,1",
			"t22c,10:00:00,10:00:00,clark_harrison,1",
			"t22d,07:10:00,07:10:00,clark_harrison,1",
			"t22d,08:05:00,08:05:00,clark_howard,2",
			"t9a,12:00:00,12:00:00,ashland_95th,1",
			"t9owl,23:50:00,23:50:00,ashland_95th,1",
			"t9owl,24:10:00,24:10:00,clark_harrison,2",
		},
		"shapes.txt": {
			"shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence",
			"sh22n,41.874,-87.631,1",
			"sh22n,41.95,-87.65,2",
			"sh22n,42.019,-87.673,3",
			"sh22s,42.019,-87.673,1",
			"sh22s,41.874,-87.631,2",
		},
	}
}

func testStaticServiceDates(t *testing.T, backend string) {
	static := testutil.BuildStatic(t, backend, fixtureJuly())

	dates, err := static.ServiceDates(ghostbuses.DateRange{Start: "2022-07-01", End: "2022-07-05"})
	require.NoError(t, err)
	assert.Equal(t, []model.ServiceDate{
		{Date: "2022-07-01", ServiceID: "wk"},
		{Date: "2022-07-02", ServiceID: "sat"},
		{Date: "2022-07-03", ServiceID: "sun"},
		{Date: "2022-07-04", ServiceID: "sun"},
		{Date: "2022-07-05", ServiceID: "wk"},
	}, dates)

	all, err := static.ServiceDates(ghostbuses.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, "2022-06-01", all[0].Date)
	assert.Equal(t, "2022-07-31", all[len(all)-1].Date)
	// One service per day, 61 days.
	assert.Len(t, all, 61)
}

// The storage layer's per-date resolution agrees with the calendar
// resolver.
func testStaticServicesOn(t *testing.T, backend string) {
	static := testutil.BuildStatic(t, backend, fixtureJuly())

	calendar, err := static.Calendar()
	require.NoError(t, err)

	dates, err := model.FeedDescriptor{FeedStartDate: "2022-05-30", FeedEndDate: "2022-08-02"}.Dates()
	require.NoError(t, err)

	for _, date := range dates {
		ds, err := static.ServicesOn(date)
		require.NoError(t, err, date)
		expected, err := calendar.ActiveServices(date)
		require.NoError(t, err)
		assert.Equal(t, expected, ds.Services, date)
		for _, serviceID := range ds.Services {
			assert.True(t, calendar.Active(date, serviceID), date)
		}
	}

	ds, err := static.ServicesOn("2022-07-04")
	require.NoError(t, err)
	assert.Equal(t, []string{"sun"}, ds.Services)
	assert.Equal(t, ghostbuses.DateRange{Start: "2022-06-01", End: "2022-07-31"}, ds.Bounds)

	ds, err = static.ServicesOn("2022-08-02")
	require.NoError(t, err)
	assert.Empty(t, ds.Services)
	assert.False(t, ds.Bounds.Contains("2022-08-02"))

	_, err = static.ServicesOn("20220704")
	assert.Error(t, err)
}

// Reports weekday service on every date, whatever the calendar says.
type weekdayOnlyReader struct {
	storage.FeedReader
}

func (weekdayOnlyReader) ActiveServices(date string) ([]string, error) {
	return []string{"wk"}, nil
}

func TestStaticServicesOnMismatch(t *testing.T) {
	built := testutil.BuildStatic(t, "memory", fixtureJuly())

	static, err := ghostbuses.NewStatic(weekdayOnlyReader{built.Reader}, built.Metadata)
	require.NoError(t, err)

	ds, err := static.ServicesOn("2022-07-05")
	require.NoError(t, err)
	assert.Equal(t, []string{"wk"}, ds.Services)

	_, err = static.ServicesOn("2022-07-04")
	assert.ErrorIs(t, err, ghostbuses.ErrServiceMismatch)
}

func testStaticScheduleSummary(t *testing.T, backend string) {
	static := testutil.BuildStatic(t, backend, fixtureJuly())

	summary, err := static.ScheduleSummary(ghostbuses.DateRange{Start: "2022-07-04", End: "2022-07-05"})
	require.NoError(t, err)

	assert.Equal(t, []model.ScheduledTripCount{
		{Date: "2022-07-04", RouteID: "22", Hour: 10, TripCount: 1},
		{Date: "2022-07-05", RouteID: "22", Hour: 7, TripCount: 3},
		{Date: "2022-07-05", RouteID: "22", Hour: 8, TripCount: 1},
		{Date: "2022-07-05", RouteID: "9", Hour: 0, TripCount: 1},
		{Date: "2022-07-05", RouteID: "9", Hour: 12, TripCount: 1},
		{Date: "2022-07-05", RouteID: "9", Hour: 23, TripCount: 1},
	}, summary.ByRoute)

	assert.Equal(t, []model.ScheduledTripCount{
		{Date: "2022-07-04", RouteID: "22", Direction: "Northbound", Hour: 10, TripCount: 1},
		{Date: "2022-07-05", RouteID: "22", Direction: "Northbound", Hour: 7, TripCount: 2},
		{Date: "2022-07-05", RouteID: "22", Direction: "Northbound", Hour: 8, TripCount: 1},
		{Date: "2022-07-05", RouteID: "22", Direction: "Southbound", Hour: 7, TripCount: 1},
		{Date: "2022-07-05", RouteID: "9", Direction: "0", Hour: 0, TripCount: 1},
		{Date: "2022-07-05", RouteID: "9", Direction: "0", Hour: 12, TripCount: 1},
		{Date: "2022-07-05", RouteID: "9", Direction: "0", Hour: 23, TripCount: 1},
	}, summary.ByDirection)
}

func testStaticMostCommonShapes(t *testing.T, backend string) {
	static := testutil.BuildStatic(t, backend, fixtureJuly())

	shapes, err := static.MostCommonShapes()
	require.NoError(t, err)
	require.Len(t, shapes, 3)

	north := shapes[0]
	assert.Equal(t, "22", north.RouteID)
	assert.Equal(t, "Northbound", north.Direction)
	assert.Equal(t, "sh22n", north.ShapeID)
	assert.Equal(t, 2, north.TripCount)
	require.Len(t, north.Points, 3)
	assert.Equal(t, uint32(1), north.Points[0].Sequence)
	assert.Equal(t, uint32(3), north.Points[2].Sequence)
	expected := storage.HaversineDistance(41.874, -87.631, 41.95, -87.65) +
		storage.HaversineDistance(41.95, -87.65, 42.019, -87.673)
	assert.InDelta(t, expected, north.LengthKm, 1e-6)

	south := shapes[1]
	assert.Equal(t, "Southbound", south.Direction)
	assert.Equal(t, "sh22s", south.ShapeID)
	assert.Len(t, south.Points, 2)

	// Tied at one trip each: lowest shape_id wins. Neither has
	// points in shapes.txt.
	ashland := shapes[2]
	assert.Equal(t, "9", ashland.RouteID)
	assert.Equal(t, "0", ashland.Direction)
	assert.Equal(t, "sh9a", ashland.ShapeID)
	assert.Empty(t, ashland.Points)
	assert.Equal(t, 0.0, ashland.LengthKm)
}

func testStaticMissingCalendar(t *testing.T, backend string) {
	files := fixtureJuly()
	delete(files, "calendar.txt")

	static := testutil.BuildStatic(t, backend, files)
	dates, err := static.ServiceDates(ghostbuses.DateRange{})
	require.NoError(t, err)
	assert.Equal(t, []model.ServiceDate{{Date: "2022-07-04", ServiceID: "sun"}}, dates)

	files = fixtureJuly()
	delete(files, "calendar_dates.txt")
	static = testutil.BuildStatic(t, backend, files)
	dates, err = static.ServiceDates(ghostbuses.DateRange{Start: "2022-07-04", End: "2022-07-04"})
	require.NoError(t, err)
	assert.Equal(t, []model.ServiceDate{{Date: "2022-07-04", ServiceID: "wk"}}, dates)
}

func TestStatic(t *testing.T) {
	for _, test := range []struct {
		Name string
		Test func(t *testing.T, backend string)
	}{
		{"ServiceDates", testStaticServiceDates},
		{"ServicesOn", testStaticServicesOn},
		{"ScheduleSummary", testStaticScheduleSummary},
		{"MostCommonShapes", testStaticMostCommonShapes},
		{"MissingCalendar", testStaticMissingCalendar},
	} {
		for _, backend := range testutil.Backends() {
			t.Run(fmt.Sprintf("%s %s", test.Name, backend), func(t *testing.T) {
				test.Test(t, backend)
			})
		}
	}
}
