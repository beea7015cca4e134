package model

import (
	"fmt"
	"strconv"
	"time"
)

// Holds all external facing types and constants.

// Layouts used throughout. GTFS files carry dates as YYYYMMDD, while
// everything this module produces uses ISO dates.
const (
	GTFSDateLayout = "20060102"
	DateLayout     = "2006-01-02"
)

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerial     RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

type ExceptionType int8

const (
	ExceptionAdded   ExceptionType = 1
	ExceptionRemoved ExceptionType = 2
)

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
}

// Weekday is a bitmask with bit 1<<time.Weekday set for each day the
// service runs.
type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

func (c *Calendar) RunsOn(d time.Weekday) bool {
	return c.Weekday&(1<<d) != 0
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Desc          string
	Lat           float64
	Lon           float64
	URL           string
	LocationType  LocationType
	ParentStation string
	PlatformCode  string
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
	// Free-text direction (e.g. "Northbound"), when the feed has it.
	Direction string
	ShapeID   string
	BlockID   string
}

// DirectionKey is the value trips are grouped by in per-direction
// summaries: the free-text direction if present, direction_id
// otherwise.
func (t *Trip) DirectionKey() string {
	if t.Direction != "" {
		return t.Direction
	}
	return strconv.Itoa(int(t.DirectionID))
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      RouteType
	URL       string
	Color     string
	TextColor string
}

// Arrival and Departure are "HHMMSS". Hours may exceed 23 for trips
// running past midnight.
type StopTime struct {
	TripID       string
	StopID       string
	Headsign     string
	StopSequence uint32
	Arrival      string
	Departure    string
}

func hhmmss(s string) time.Duration {
	if len(s) != 6 {
		return 0
	}
	h, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	sec, _ := strconv.Atoi(s[4:6])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
}

func (st *StopTime) ArrivalTime() time.Duration {
	return hhmmss(st.Arrival)
}

func (st *StopTime) DepartureTime() time.Duration {
	return hhmmss(st.Departure)
}

// Hour of day (0-23) of the arrival. "25:30:00" is hour 1.
func (st *StopTime) ArrivalHour() int {
	return int(st.ArrivalTime()/time.Hour) % 24
}

func (st *StopTime) DepartureHour() int {
	return int(st.DepartureTime()/time.Hour) % 24
}

type ShapePoint struct {
	ShapeID  string
	Lat      float64
	Lon      float64
	Sequence uint32
}

// A (date, service) pair for which the service is active. Date is
// YYYY-MM-DD.
type ServiceDate struct {
	Date      string `csv:"date"`
	ServiceID string `csv:"service_id"`
}

// Scheduled trips touching an hour. Direction is empty in route level
// summaries.
type ScheduledTripCount struct {
	Date      string `csv:"date"`
	RouteID   string `csv:"route_id"`
	Direction string `csv:"direction"`
	Hour      int    `csv:"hour"`
	TripCount int    `csv:"trip_count"`
}

// One vehicle sighting from a realtime batch, flattened. The data_*
// fields are derived from Timestamp.
type Observation struct {
	Timestamp  string `csv:"tmstmp" json:"tmstmp"`
	VehicleID  string `csv:"vid" json:"vid"`
	Lat        string `csv:"lat" json:"lat"`
	Lon        string `csv:"lon" json:"lon"`
	Heading    string `csv:"hdg" json:"hdg"`
	PatternID  string `csv:"pid" json:"pid"`
	Route      string `csv:"rt" json:"rt"`
	Dest       string `csv:"des" json:"des"`
	PatternDst string `csv:"pdist" json:"pdist"`
	Delayed    string `csv:"dly" json:"dly"`
	TripID     string `csv:"tatripid" json:"tatripid"`
	BlockID    string `csv:"tablockid" json:"tablockid"`
	Zone       string `csv:"zone" json:"zone"`
	ScrapeFile string `csv:"scrape_file" json:"scrape_file"`
	DataTime   string `csv:"data_time" json:"data_time"`
	DataHour   int    `csv:"data_hour" json:"data_hour"`
	DataDate   string `csv:"data_date" json:"data_date"`
}

// Error entry returned by the vendor API alongside vehicles.
type ObservationError struct {
	Route      string `csv:"rt" json:"rt"`
	Message    string `csv:"msg" json:"msg"`
	ScrapeFile string `csv:"scrape_file" json:"scrape_file"`
}

type ObservedTripCount struct {
	DataDate     string `csv:"data_date"`
	DataHour     int    `csv:"data_hour"`
	Route        string `csv:"rt"`
	Destination  string `csv:"des"`
	VehicleCount int    `csv:"vid_count"`
	TripCount    int    `csv:"trip_count"`
	BlockCount   int    `csv:"block_count"`
}

type DayType string

const (
	DayTypeWeekday  DayType = "wk"
	DayTypeSaturday DayType = "sat"
	DayTypeSunday   DayType = "sun"
	DayTypeHoliday  DayType = "hol"
)

// Ratio of observed to scheduled trips. Undefined when nothing was
// scheduled.
type Ratio struct {
	Value   float64
	Defined bool
}

const RatioStatusNoScheduledService = "no_scheduled_service"

func NewRatio(observed, scheduled int) Ratio {
	if scheduled == 0 {
		return Ratio{}
	}
	return Ratio{Value: float64(observed) / float64(scheduled), Defined: true}
}

// Status is empty for defined ratios.
func (r Ratio) Status() string {
	if r.Defined {
		return ""
	}
	return RatioStatusNoScheduledService
}

func (r Ratio) MarshalCSV() (string, error) {
	if !r.Defined {
		return "", nil
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64), nil
}

func (r *Ratio) UnmarshalCSV(s string) error {
	if s == "" {
		*r = Ratio{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing ratio '%s': %w", s, err)
	}
	*r = Ratio{Value: v, Defined: true}
	return nil
}

// Undefined ratios are null.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Defined {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(r.Value, 'f', -1, 64)), nil
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = Ratio{}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("parsing ratio '%s': %w", string(b), err)
	}
	*r = Ratio{Value: v, Defined: true}
	return nil
}

// Observed and scheduled trips for one route on one date.
type DailyComparison struct {
	Date           string  `csv:"date"`
	RouteID        string  `csv:"route_id"`
	DayType        DayType `csv:"day_type"`
	TripCountRT    int     `csv:"trip_count_rt"`
	TripCountSched int     `csv:"trip_count_sched"`
	FeedVersion    string  `csv:"feed_version"`
}

type DayTypeComparison struct {
	RouteID        string  `csv:"route_id" json:"route_id"`
	DayType        DayType `csv:"day_type" json:"day_type"`
	TripCountRT    int     `csv:"trip_count_rt" json:"trip_count_rt"`
	TripCountSched int     `csv:"trip_count_sched" json:"trip_count_sched"`
	Ratio          Ratio   `csv:"ratio" json:"ratio"`
	RatioStatus    string  `csv:"ratio_status" json:"ratio_status,omitempty"`
	FeedVersion    string  `csv:"feed_version" json:"feed_version"`
}

// A schedule version and the dates it governs (inclusive, YYYY-MM-DD).
type FeedDescriptor struct {
	ScheduleVersion string
	FeedStartDate   string
	FeedEndDate     string
}

func (f FeedDescriptor) String() string {
	return fmt.Sprintf("v_%s_fs_%s_fe_%s", f.ScheduleVersion, f.FeedStartDate, f.FeedEndDate)
}

// All dates in the feed's range, ascending.
func (f FeedDescriptor) Dates() ([]string, error) {
	start, err := time.Parse(DateLayout, f.FeedStartDate)
	if err != nil {
		return nil, fmt.Errorf("parsing feed start date: %w", err)
	}
	end, err := time.Parse(DateLayout, f.FeedEndDate)
	if err != nil {
		return nil, fmt.Errorf("parsing feed end date: %w", err)
	}
	dates := []string{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

// Builds descriptors for a list of schedule versions (YYYYMMDD, the
// date each was published). Each version runs from its publication
// date until the day before the next one, and none runs past lastDate.
func FeedsFromVersions(versions []string, lastDate string) ([]FeedDescriptor, error) {
	starts := make([]time.Time, len(versions))
	for i, v := range versions {
		t, err := time.Parse(GTFSDateLayout, v)
		if err != nil {
			return nil, fmt.Errorf("parsing version '%s': %w", v, err)
		}
		if i > 0 && !t.After(starts[i-1]) {
			return nil, fmt.Errorf("versions out of order at '%s'", v)
		}
		starts[i] = t
	}

	last, err := time.Parse(DateLayout, lastDate)
	if err != nil {
		return nil, fmt.Errorf("parsing last date: %w", err)
	}

	feeds := []FeedDescriptor{}
	for i, v := range versions {
		end := last
		if i+1 < len(versions) {
			if next := starts[i+1].AddDate(0, 0, -1); next.Before(end) {
				end = next
			}
		}
		if end.Before(starts[i]) {
			continue
		}
		feeds = append(feeds, FeedDescriptor{
			ScheduleVersion: v,
			FeedStartDate:   starts[i].Format(DateLayout),
			FeedEndDate:     end.Format(DateLayout),
		})
	}
	return feeds, nil
}

// Converts YYYYMMDD to YYYY-MM-DD.
func ISODate(gtfsDate string) (string, error) {
	t, err := time.Parse(GTFSDateLayout, gtfsDate)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

// Converts YYYY-MM-DD to YYYYMMDD.
func GTFSDate(isoDate string) (string, error) {
	t, err := time.Parse(DateLayout, isoDate)
	if err != nil {
		return "", err
	}
	return t.Format(GTFSDateLayout), nil
}
