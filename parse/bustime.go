package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/chihacknight/chn-ghost-buses/model"
)

// A JSON value the vendor API sends either as a string or as a bare
// number, depending on the field and the API version.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if len(b) > 0 && (b[0] == 't' || b[0] == 'f') {
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(strconv.FormatBool(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*f = flexString(n.String())
	return nil
}

type bustimeVehicle struct {
	Timestamp  flexString `json:"tmstmp"`
	VehicleID  flexString `json:"vid"`
	Lat        flexString `json:"lat"`
	Lon        flexString `json:"lon"`
	Heading    flexString `json:"hdg"`
	PatternID  flexString `json:"pid"`
	Route      flexString `json:"rt"`
	Dest       flexString `json:"des"`
	PatternDst flexString `json:"pdist"`
	Delayed    flexString `json:"dly"`
	TripID     flexString `json:"tatripid"`
	BlockID    flexString `json:"tablockid"`
	Zone       flexString `json:"zone"`
}

type bustimeError struct {
	Route   flexString `json:"rt"`
	Message flexString `json:"msg"`
}

type bustimeChunk struct {
	Response struct {
		Vehicles []bustimeVehicle `json:"vehicle"`
		Errors   []bustimeError   `json:"error"`
	} `json:"bustime-response"`
}

// Flattens one scraper batch into vehicle and error rows, each tagged
// with batchID. The batch is a JSON object of chunks, each holding a
// "bustime-response" with optional "vehicle" and "error" lists.
// Derived time fields are left empty.
func FlattenBatch(batchID string, body []byte) ([]model.Observation, []model.ObservationError, error) {
	chunks := map[string]bustimeChunk{}
	if err := json.Unmarshal(body, &chunks); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling batch %s: %w", batchID, err)
	}

	keys := make([]string, 0, len(chunks))
	for k := range chunks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vehicles := []model.Observation{}
	errs := []model.ObservationError{}
	for _, k := range keys {
		resp := chunks[k].Response
		for _, v := range resp.Vehicles {
			vehicles = append(vehicles, model.Observation{
				Timestamp:  string(v.Timestamp),
				VehicleID:  string(v.VehicleID),
				Lat:        string(v.Lat),
				Lon:        string(v.Lon),
				Heading:    string(v.Heading),
				PatternID:  string(v.PatternID),
				Route:      string(v.Route),
				Dest:       string(v.Dest),
				PatternDst: string(v.PatternDst),
				Delayed:    string(v.Delayed),
				TripID:     string(v.TripID),
				BlockID:    string(v.BlockID),
				Zone:       string(v.Zone),
				ScrapeFile: batchID,
			})
		}
		for _, e := range resp.Errors {
			errs = append(errs, model.ObservationError{
				Route:      string(e.Route),
				Message:    string(e.Message),
				ScrapeFile: batchID,
			})
		}
	}

	return vehicles, errs, nil
}
