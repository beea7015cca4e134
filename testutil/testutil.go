package testutil

// Helpers and configuration for tests.

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"

	ghostbuses "github.com/chihacknight/chn-ghost-buses"
	"github.com/chihacknight/chn-ghost-buses/parse"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

// Connection string for postgres backed tests. Those are skipped when
// unset.
func PostgresConnStr() string {
	return os.Getenv("GHOSTBUS_TEST_POSTGRES")
}

// Backends every storage dependent test runs against.
func Backends() []string {
	backends := []string{"memory", "sqlite"}
	if PostgresConnStr() != "" {
		backends = append(backends, "postgres")
	}
	return backends
}

func BuildStorage(t testing.TB, backend string) storage.Storage {
	var s storage.Storage
	var err error
	switch backend {
	case "memory":
		s = storage.NewMemoryStorage()
	case "sqlite":
		s, err = storage.NewSQLiteStorage()
		require.NoError(t, err)
	case "postgres":
		s, err = storage.NewPSQLStorage(PostgresConnStr(), true)
		require.NoError(t, err)
	}
	require.NotNil(t, s, "unknown backend %q", backend)

	return s
}

func LoadStatic(t testing.TB, backend string, buf []byte) *ghostbuses.Static {
	s := BuildStorage(t, backend)

	// Parse buf into storage. ParseStatic closes the writer.
	feedWriter, err := s.GetWriter("test")
	require.NoError(t, err)

	metadata, _, err := parse.ParseStatic(feedWriter, buf)
	require.NoError(t, err)

	reader, err := s.GetReader("test")
	require.NoError(t, err)

	static, err := ghostbuses.NewStatic(reader, metadata)
	require.NoError(t, err)

	return static
}

// Fills in missing required files with (mostly blank) dummy data.
func CompleteFeed(files map[string][]string) map[string][]string {
	complete := map[string][]string{}
	for name, content := range files {
		complete[name] = content
	}
	if complete["agency.txt"] == nil {
		complete["agency.txt"] = []string{"agency_timezone,agency_name,agency_url", "America/Chicago,Chicago Transit Authority,http://transitchicago.com"}
	}
	if complete["calendar.txt"] == nil && complete["calendar_dates.txt"] == nil {
		complete["calendar.txt"] = []string{"service_id"}
	}
	if complete["routes.txt"] == nil {
		complete["routes.txt"] = []string{"route_id"}
	}
	if complete["trips.txt"] == nil {
		complete["trips.txt"] = []string{"trip_id"}
	}
	if complete["stops.txt"] == nil {
		complete["stops.txt"] = []string{"stop_id"}
	}
	if complete["stop_times.txt"] == nil {
		complete["stop_times.txt"] = []string{"stop_id"}
	}
	return complete
}

func BuildStatic(
	t testing.TB,
	backend string,
	files map[string][]string,
) *ghostbuses.Static {
	return LoadStatic(t, backend, BuildZip(t, CompleteFeed(files)))
}

func BuildZip(
	t testing.TB,
	files map[string][]string,
) []byte {

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

// A vehicle as reported by the bus tracker API.
type Vehicle struct {
	VehicleID string `json:"vid"`
	Timestamp string `json:"tmstmp"`
	Route     string `json:"rt"`
	Dest      string `json:"des"`
	TripID    string `json:"tatripid"`
	BlockID   string `json:"tablockid"`
}

// Builds a scraper batch holding a single chunk with the given
// vehicles, plus a "no data" error for each of errorRoutes.
func BuildBatch(t testing.TB, vehicles []Vehicle, errorRoutes ...string) []byte {
	type apiError struct {
		Route   string `json:"rt"`
		Message string `json:"msg"`
	}
	errs := []apiError{}
	for _, rt := range errorRoutes {
		errs = append(errs, apiError{Route: rt, Message: "No data found for parameter"})
	}

	batch := map[string]any{
		"chunk_0": map[string]any{
			"bustime-response": map[string]any{
				"vehicle": vehicles,
				"error":   errs,
			},
		},
	}
	buf, err := json.Marshal(batch)
	require.NoError(t, err)
	return buf
}

// Builds a GTFS Realtime VehiclePositions feed of the given vehicles.
// Timestamps are read as wall clock in loc. Block IDs have no place in
// the feed and are dropped.
func BuildVehiclePositions(t testing.TB, loc *time.Location, vehicles []Vehicle) []byte {
	f := &gtfsproto.FeedMessage{
		Header: &gtfsproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsproto.FeedHeader_FULL_DATASET.Enum(),
		},
	}

	for _, v := range vehicles {
		ts, err := time.ParseInLocation(parse.ObservationTimestampLayout, v.Timestamp, loc)
		require.NoError(t, err)

		f.Entity = append(f.Entity, &gtfsproto.FeedEntity{
			Id: proto.String(v.VehicleID),
			Vehicle: &gtfsproto.VehiclePosition{
				Trip: &gtfsproto.TripDescriptor{
					TripId:  proto.String(v.TripID),
					RouteId: proto.String(v.Route),
				},
				Vehicle: &gtfsproto.VehicleDescriptor{
					Id:    proto.String(v.VehicleID),
					Label: proto.String(v.Dest),
				},
				Timestamp: proto.Uint64(uint64(ts.Unix())),
			},
		})
	}

	buf, err := proto.Marshal(f)
	require.NoError(t, err)
	return buf
}
