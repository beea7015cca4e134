package parse

import (
	"bytes"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

func TestParseStops(t *testing.T) {
	for _, tc := range []struct {
		name     string
		content  string
		expected []*model.Stop
		err      bool
	}{
		{
			"stops and station",
			`
stop_id,stop_code,stop_name,stop_lat,stop_lon,location_type,parent_station
1,1,Ashland & 95th,41.72,-87.66,0,
40850,,Library,41.876862,-87.628196,1,
30166,,Library (Inner Loop),41.876862,-87.628196,0,40850`,
			[]*model.Stop{
				{ID: "1", Code: "1", Name: "Ashland & 95th", Lat: 41.72, Lon: -87.66},
				{ID: "30166", Name: "Library (Inner Loop)", Lat: 41.876862, Lon: -87.628196, ParentStation: "40850"},
				{ID: "40850", Name: "Library", Lat: 41.876862, Lon: -87.628196, LocationType: model.LocationTypeStation},
			},
			false,
		},

		{
			"generic node needs no position",
			`
stop_id,location_type
n,3`,
			[]*model.Stop{{ID: "n", LocationType: model.LocationTypeGenericNode}},
			false,
		},

		{"missing name", `
stop_id,stop_lat,stop_lon
1,41.72,-87.66`, nil, true},

		{"missing position", `
stop_id,stop_name
1,Ashland & 95th`, nil, true},

		{"unknown parent", `
stop_id,stop_name,stop_lat,stop_lon,parent_station
1,Ashland & 95th,41.72,-87.66,99`, nil, true},

		{"repeated stop_id", `
stop_id,stop_name,stop_lat,stop_lon
1,a,41.72,-87.66
1,b,41.72,-87.66`, nil, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := storage.NewSQLiteStorage()
			require.NoError(t, err)
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			_, err = ParseStops(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			reader, err := s.GetReader("test")
			require.NoError(t, err)
			stops, err := reader.Stops()
			require.NoError(t, err)
			sort.Slice(stops, func(i, j int) bool {
				return stops[i].ID < stops[j].ID
			})
			assert.Equal(t, tc.expected, stops)
		})
	}
}
