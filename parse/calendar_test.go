package parse

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

func TestParseCalendar(t *testing.T) {
	weekdays := int8(127 ^ (1 << time.Saturday) ^ (1 << time.Sunday))

	for _, tc := range []struct {
		name     string
		content  string
		expected []*model.Calendar
		minDate  string
		maxDate  string
		err      bool
	}{
		{
			"no days",
			`
service_id,start_date,end_date
s,20220501,20220531`,
			[]*model.Calendar{{ServiceID: "s", StartDate: "20220501", EndDate: "20220531"}},
			"20220501",
			"20220531",
			false,
		},

		{
			"weekday and weekend services",
			`
service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date
65001,1,1,1,1,1,0,0,20220507,20220630
65002,0,0,0,0,0,1,0,20220507,20220702
65003,0,0,0,0,0,0,1,20220501,20220630`,
			[]*model.Calendar{
				{ServiceID: "65001", Weekday: weekdays, StartDate: "20220507", EndDate: "20220630"},
				{ServiceID: "65002", Weekday: 1 << time.Saturday, StartDate: "20220507", EndDate: "20220702"},
				{ServiceID: "65003", Weekday: 1 << time.Sunday, StartDate: "20220501", EndDate: "20220630"},
			},
			"20220501",
			"20220702",
			false,
		},

		{
			"invalid weekday",
			`
service_id,monday,tuesday,start_date,end_date
s,1,3,20220501,20220531`,
			nil, "", "", true,
		},

		{
			"malformed weekday",
			`
service_id,thursday,start_date,end_date
s,X,20220501,20220531`,
			nil, "", "", true,
		},

		{
			"invalid date",
			`
service_id,monday,start_date,end_date
s,1,20220501,20220532`,
			nil, "", "", true,
		},

		{
			"ends before it starts",
			`
service_id,monday,start_date,end_date
s,1,20220601,20220531`,
			nil, "", "", true,
		},

		{
			"repeated service_id",
			`
service_id,monday,start_date,end_date
s,1,20220501,20220531
s,1,20220501,20220531`,
			nil, "", "", true,
		},

		{
			"missing service_id",
			`
monday,start_date,end_date
1,20220501,20220531`,
			nil, "", "", true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := storage.NewSQLiteStorage()
			require.NoError(t, err)
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			serviceIDs, minDate, maxDate, err := ParseCalendar(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			reader, err := s.GetReader("test")
			require.NoError(t, err)
			cals, err := reader.Calendars()
			require.NoError(t, err)

			sort.Slice(cals, func(i, j int) bool {
				return cals[i].ServiceID < cals[j].ServiceID
			})
			assert.Equal(t, tc.expected, cals)
			for _, c := range cals {
				assert.True(t, serviceIDs[c.ServiceID])
			}

			assert.Equal(t, tc.minDate, minDate)
			assert.Equal(t, tc.maxDate, maxDate)
		})
	}
}

func TestParseCalendarDates(t *testing.T) {
	for _, tc := range []struct {
		name     string
		content  string
		expected []*model.CalendarDate
		minDate  string
		maxDate  string
		err      bool
	}{
		{
			"holiday swap",
			`
service_id,date,exception_type
65001,20220704,2
65003,20220704,1`,
			[]*model.CalendarDate{
				{ServiceID: "65001", Date: "20220704", ExceptionType: model.ExceptionRemoved},
				{ServiceID: "65003", Date: "20220704", ExceptionType: model.ExceptionAdded},
			},
			"20220704",
			"20220704",
			false,
		},

		{
			"date range",
			`
service_id,date,exception_type
s1,20220530,2
s1,20220905,2`,
			[]*model.CalendarDate{
				{ServiceID: "s1", Date: "20220530", ExceptionType: model.ExceptionRemoved},
				{ServiceID: "s1", Date: "20220905", ExceptionType: model.ExceptionRemoved},
			},
			"20220530",
			"20220905",
			false,
		},

		{
			"invalid date",
			`
service_id,date,exception_type
s1,20220741,1`,
			nil, "", "", true,
		},

		{
			"invalid exception type",
			`
service_id,date,exception_type
s1,20220704,3`,
			nil, "", "", true,
		},

		{
			"repeated service id and date",
			`
service_id,date,exception_type
s1,20220704,1
s1,20220704,2`,
			nil, "", "", true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := storage.NewMemoryStorage()
			writer, err := s.GetWriter("test")
			require.NoError(t, err)

			serviceIDs, minDate, maxDate, err := ParseCalendarDates(writer, bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			reader, err := s.GetReader("test")
			require.NoError(t, err)
			cds, err := reader.CalendarDates()
			require.NoError(t, err)

			sort.Slice(cds, func(i, j int) bool {
				if cds[i].ServiceID != cds[j].ServiceID {
					return cds[i].ServiceID < cds[j].ServiceID
				}
				return cds[i].Date < cds[j].Date
			})
			assert.Equal(t, tc.expected, cds)
			for _, c := range cds {
				assert.True(t, serviceIDs[c.ServiceID])
			}

			assert.Equal(t, tc.minDate, minDate)
			assert.Equal(t, tc.maxDate, maxDate)
		})
	}
}
