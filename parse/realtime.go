package parse

import (
	"fmt"
	"strconv"
	"time"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"

	"github.com/chihacknight/chn-ghost-buses/model"
)

// Layout of the vendor's tmstmp field.
const ObservationTimestampLayout = "20060102 15:04"

// Flattens a GTFS Realtime VehiclePositions feed into the same rows
// FlattenBatch produces, so either source can feed the daily
// aggregation. Timestamps are rendered in loc. Vehicles without a
// timestamp fall back on the feed header's.
func ParseVehiclePositions(batchID string, feed []byte, loc *time.Location) ([]model.Observation, error) {
	f := &gtfsproto.FeedMessage{}
	err := proto.Unmarshal(feed, f)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
	}

	header := f.GetHeader()

	version := header.GetGtfsRealtimeVersion()
	if version != "2.0" && version != "1.0" {
		return nil, fmt.Errorf("version %s not supported", version)
	}

	if header.GetIncrementality() != gtfsproto.FeedHeader_FULL_DATASET {
		return nil, fmt.Errorf("feed incrementality %s not supported", header.GetIncrementality())
	}

	rows := []model.Observation{}
	for _, entity := range f.GetEntity() {
		// Only vehicle positions carry observations.
		vp := entity.GetVehicle()
		if vp == nil {
			continue
		}

		ts := vp.GetTimestamp()
		if ts == 0 {
			ts = header.GetTimestamp()
		}
		if ts == 0 {
			return nil, fmt.Errorf("entity %s has no timestamp", entity.GetId())
		}

		trip := vp.GetTrip()
		pos := vp.GetPosition()

		row := model.Observation{
			Timestamp:  time.Unix(int64(ts), 0).In(loc).Format(ObservationTimestampLayout),
			VehicleID:  vp.GetVehicle().GetId(),
			Route:      trip.GetRouteId(),
			Dest:       vp.GetVehicle().GetLabel(),
			TripID:     trip.GetTripId(),
			ScrapeFile: batchID,
		}
		if row.VehicleID == "" {
			row.VehicleID = entity.GetId()
		}
		if pos != nil {
			row.Lat = strconv.FormatFloat(float64(pos.GetLatitude()), 'f', -1, 32)
			row.Lon = strconv.FormatFloat(float64(pos.GetLongitude()), 'f', -1, 32)
			row.Heading = strconv.FormatFloat(float64(pos.GetBearing()), 'f', -1, 32)
		}
		rows = append(rows, row)
	}

	return rows, nil
}
