package storage

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/chihacknight/chn-ghost-buses/model"
)

const (
	PSQLTripBatchSize     = 10000
	PSQLStopTimeBatchSize = 5000
	PSQLShapeBatchSize    = 5000
)

// Postgres implementation of Storage. All feeds share one set of
// tables, with rows keyed by feed ID.
type PSQLStorage struct {
	db *sql.DB
}

type PSQLFeedWriter struct {
	id          string
	db          *sql.DB
	tripBuf     [][]interface{}
	stopTimeBuf [][]interface{}
	shapeBuf    [][]interface{}
}

type PSQLFeedReader struct {
	id string
	db *sql.DB
}

var psqlFeedTables = []struct {
	name   string
	schema string
}{
	{"agency", `
CREATE TABLE IF NOT EXISTS agency (
    feed_id TEXT NOT NULL,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL,
    PRIMARY KEY (feed_id, id)
);`},
	{"stops", `
CREATE TABLE IF NOT EXISTS stops (
    feed_id TEXT NOT NULL,
    id TEXT NOT NULL,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    url TEXT NOT NULL,
    location_type INTEGER NOT NULL,
    parent_station TEXT NOT NULL,
    platform_code TEXT NOT NULL,
    PRIMARY KEY (feed_id, id)
);`},
	{"routes", `
CREATE TABLE IF NOT EXISTS routes (
    feed_id TEXT NOT NULL,
    id TEXT NOT NULL,
    agency_id TEXT NOT NULL,
    short_name TEXT NOT NULL,
    long_name TEXT NOT NULL,
    description TEXT NOT NULL,
    type INTEGER NOT NULL,
    url TEXT NOT NULL,
    color TEXT NOT NULL,
    text_color TEXT NOT NULL,
    PRIMARY KEY (feed_id, id)
);`},
	{"trips", `
CREATE TABLE IF NOT EXISTS trips (
    feed_id TEXT NOT NULL,
    id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT NOT NULL,
    short_name TEXT NOT NULL,
    direction_id INTEGER NOT NULL,
    direction TEXT NOT NULL,
    shape_id TEXT NOT NULL,
    block_id TEXT NOT NULL,
    PRIMARY KEY (feed_id, id)
);
CREATE INDEX IF NOT EXISTS trips_feed_route ON trips (feed_id, route_id);`},
	{"stop_times", `
CREATE TABLE IF NOT EXISTS stop_times (
    feed_id TEXT NOT NULL,
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    headsign TEXT NOT NULL,
    PRIMARY KEY (feed_id, trip_id, stop_sequence)
);`},
	{"calendar", `
CREATE TABLE IF NOT EXISTS calendar (
    feed_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    monday INTEGER NOT NULL,
    tuesday INTEGER NOT NULL,
    wednesday INTEGER NOT NULL,
    thursday INTEGER NOT NULL,
    friday INTEGER NOT NULL,
    saturday INTEGER NOT NULL,
    sunday INTEGER NOT NULL,
    PRIMARY KEY (feed_id, service_id)
);`},
	{"calendar_dates", `
CREATE TABLE IF NOT EXISTS calendar_dates (
    feed_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL,
    PRIMARY KEY (feed_id, service_id, date)
);
CREATE INDEX IF NOT EXISTS calendar_dates_feed_date ON calendar_dates (feed_id, date);`},
	{"shapes", `
CREATE TABLE IF NOT EXISTS shapes (
    feed_id TEXT NOT NULL,
    shape_id TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL,
    lon DOUBLE PRECISION NOT NULL,
    sequence INTEGER NOT NULL,
    PRIMARY KEY (feed_id, shape_id, sequence)
);`},
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, all tables are dropped on startup. You probably
// only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}

	if clearDB {
		names := []string{"feed"}
		for _, t := range psqlFeedTables {
			names = append(names, t.name)
		}
		_, err = db.Exec(`DROP TABLE IF EXISTS ` + strings.Join(names, ", "))
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS feed (
    version TEXT NOT NULL,
    sha256 TEXT NOT NULL,
    url TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    calendar_start TEXT NOT NULL,
    calendar_end TEXT NOT NULL,
    timezone TEXT NOT NULL,
    max_arrival TEXT NOT NULL,
    max_departure TEXT NOT NULL,
    PRIMARY KEY (version, sha256)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating feed table: %w", err)
	}

	for _, t := range psqlFeedTables {
		if _, err := db.Exec(t.schema); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %w", t.name, err)
		}
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	query := `
SELECT version, sha256, url, retrieved_at, calendar_start, calendar_end, timezone, max_arrival, max_departure
FROM feed`

	conditions := []string{}
	params := []interface{}{}
	if filter.Version != "" {
		params = append(params, filter.Version)
		conditions = append(conditions, fmt.Sprintf("version = $%d", len(params)))
	}
	if filter.SHA256 != "" {
		params = append(params, filter.SHA256)
		conditions = append(conditions, fmt.Sprintf("sha256 = $%d", len(params)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY retrieved_at DESC"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*FeedMetadata{}
	for rows.Next() {
		feed := &FeedMetadata{}
		err := rows.Scan(
			&feed.Version,
			&feed.SHA256,
			&feed.URL,
			&feed.RetrievedAt,
			&feed.CalendarStartDate,
			&feed.CalendarEndDate,
			&feed.Timezone,
			&feed.MaxArrival,
			&feed.MaxDeparture,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		feed.RetrievedAt = feed.RetrievedAt.UTC()
		feeds = append(feeds, feed)
	}

	return feeds, rows.Err()
}

func (s *PSQLStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	_, err := s.db.Exec(`
INSERT INTO feed (version, sha256, url, retrieved_at, calendar_start, calendar_end, timezone, max_arrival, max_departure)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (version, sha256) DO UPDATE SET
    url = excluded.url,
    retrieved_at = excluded.retrieved_at,
    calendar_start = excluded.calendar_start,
    calendar_end = excluded.calendar_end,
    timezone = excluded.timezone,
    max_arrival = excluded.max_arrival,
    max_departure = excluded.max_departure`,
		feed.Version,
		feed.SHA256,
		feed.URL,
		feed.RetrievedAt.UTC(),
		feed.CalendarStartDate,
		feed.CalendarEndDate,
		feed.Timezone,
		feed.MaxArrival,
		feed.MaxDeparture,
	)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetReader(feedID string) (FeedReader, error) {
	return &PSQLFeedReader{id: feedID, db: s.db}, nil
}

func (s *PSQLStorage) GetWriter(feedID string) (FeedWriter, error) {
	// In case the feed already exists, delete all its records
	for _, t := range psqlFeedTables {
		_, err := s.db.Exec(`DELETE FROM `+t.name+` WHERE feed_id = $1`, feedID)
		if err != nil {
			return nil, fmt.Errorf("deleting %s records: %w", t.name, err)
		}
	}

	return &PSQLFeedWriter{id: feedID, db: s.db}, nil
}

func (w *PSQLFeedWriter) WriteAgency(a *model.Agency) error {
	_, err := w.db.Exec(`
INSERT INTO agency (feed_id, id, name, url, timezone)
VALUES ($1, $2, $3, $4, $5)`,
		w.id, a.ID, a.Name, a.URL, a.Timezone,
	)
	if err != nil {
		return fmt.Errorf("inserting agency: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) WriteStop(stop *model.Stop) error {
	_, err := w.db.Exec(`
INSERT INTO stops (feed_id, id, code, name, description, lat, lon, url, location_type, parent_station, platform_code)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.id,
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Desc,
		stop.Lat,
		stop.Lon,
		stop.URL,
		stop.LocationType,
		stop.ParentStation,
		stop.PlatformCode,
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) WriteRoute(route *model.Route) error {
	_, err := w.db.Exec(`
INSERT INTO routes (feed_id, id, agency_id, short_name, long_name, description, type, url, color, text_color)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		w.id,
		route.ID,
		route.AgencyID,
		route.ShortName,
		route.LongName,
		route.Desc,
		route.Type,
		route.URL,
		route.Color,
		route.TextColor,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

// Bulk loads buffered rows into table using COPY.
func (w *PSQLFeedWriter) copyIn(table string, columns []string, buf [][]interface{}) error {
	if len(buf) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(table, append([]string{"feed_id"}, columns...)...))
	if err != nil {
		return fmt.Errorf("preparing COPY %s: %w", table, err)
	}
	defer stmt.Close()

	for _, row := range buf {
		_, err = stmt.Exec(append([]interface{}{w.id}, row...)...)
		if err != nil {
			return fmt.Errorf("COPY %s: %w", table, err)
		}
	}

	if _, err = stmt.Exec(); err != nil {
		return fmt.Errorf("flushing COPY %s: %w", table, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing %s: %w", table, err)
	}

	return nil
}

var (
	psqlTripColumns     = []string{"id", "route_id", "service_id", "headsign", "short_name", "direction_id", "direction", "shape_id", "block_id"}
	psqlStopTimeColumns = []string{"trip_id", "stop_id", "stop_sequence", "arrival_time", "departure_time", "headsign"}
	psqlShapeColumns    = []string{"shape_id", "lat", "lon", "sequence"}
)

func (w *PSQLFeedWriter) BeginTrips() error {
	return nil
}

func (w *PSQLFeedWriter) WriteTrip(trip *model.Trip) error {
	w.tripBuf = append(w.tripBuf, []interface{}{
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
		trip.ShortName,
		trip.DirectionID,
		trip.Direction,
		trip.ShapeID,
		trip.BlockID,
	})
	if len(w.tripBuf) >= PSQLTripBatchSize {
		return w.EndTrips()
	}
	return nil
}

func (w *PSQLFeedWriter) EndTrips() error {
	if err := w.copyIn("trips", psqlTripColumns, w.tripBuf); err != nil {
		return fmt.Errorf("flushing trips: %w", err)
	}
	w.tripBuf = nil
	return nil
}

func (w *PSQLFeedWriter) BeginStopTimes() error {
	return nil
}

func (w *PSQLFeedWriter) WriteStopTime(st *model.StopTime) error {
	w.stopTimeBuf = append(w.stopTimeBuf, []interface{}{
		st.TripID,
		st.StopID,
		st.StopSequence,
		st.Arrival,
		st.Departure,
		st.Headsign,
	})
	if len(w.stopTimeBuf) >= PSQLStopTimeBatchSize {
		return w.EndStopTimes()
	}
	return nil
}

func (w *PSQLFeedWriter) EndStopTimes() error {
	if err := w.copyIn("stop_times", psqlStopTimeColumns, w.stopTimeBuf); err != nil {
		return fmt.Errorf("flushing stop_times: %w", err)
	}
	w.stopTimeBuf = nil
	return nil
}

func (w *PSQLFeedWriter) WriteShapePoint(p *model.ShapePoint) error {
	w.shapeBuf = append(w.shapeBuf, []interface{}{p.ShapeID, p.Lat, p.Lon, p.Sequence})
	if len(w.shapeBuf) >= PSQLShapeBatchSize {
		return w.flushShapes()
	}
	return nil
}

func (w *PSQLFeedWriter) flushShapes() error {
	if err := w.copyIn("shapes", psqlShapeColumns, w.shapeBuf); err != nil {
		return fmt.Errorf("flushing shapes: %w", err)
	}
	w.shapeBuf = nil
	return nil
}

func (w *PSQLFeedWriter) WriteCalendar(cal *model.Calendar) error {
	days := [7]int{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if cal.RunsOn(d) {
			days[d] = 1
		}
	}

	_, err := w.db.Exec(`
INSERT INTO calendar (feed_id, service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		w.id,
		cal.ServiceID,
		cal.StartDate,
		cal.EndDate,
		days[time.Monday],
		days[time.Tuesday],
		days[time.Wednesday],
		days[time.Thursday],
		days[time.Friday],
		days[time.Saturday],
		days[time.Sunday],
	)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	_, err := w.db.Exec(`
INSERT INTO calendar_dates (feed_id, service_id, date, exception_type)
VALUES ($1, $2, $3, $4)`,
		w.id, cd.ServiceID, cd.Date, cd.ExceptionType,
	)
	if err != nil {
		return fmt.Errorf("inserting calendar date: %w", err)
	}
	return nil
}

func (w *PSQLFeedWriter) Close() error {
	// Shape points have no Begin/End pair; flush what's left.
	if err := w.flushShapes(); err != nil {
		return err
	}
	if _, err := w.db.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}

// Runs a query scoped to the reader's feed and hands each row to scan.
func (r *PSQLFeedReader) each(query string, scan func(*sql.Rows) error) error {
	rows, err := r.db.Query(query, r.id)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *PSQLFeedReader) Agencies() ([]*model.Agency, error) {
	agencies := []*model.Agency{}
	err := r.each(`SELECT id, name, url, timezone FROM agency WHERE feed_id = $1`, func(rows *sql.Rows) error {
		a := &model.Agency{}
		agencies = append(agencies, a)
		return rows.Scan(&a.ID, &a.Name, &a.URL, &a.Timezone)
	})
	if err != nil {
		return nil, fmt.Errorf("reading agencies: %w", err)
	}
	return agencies, nil
}

func (r *PSQLFeedReader) Stops() ([]*model.Stop, error) {
	stops := []*model.Stop{}
	err := r.each(`
SELECT id, code, name, description, lat, lon, url, location_type, parent_station, platform_code
FROM stops
WHERE feed_id = $1`, func(rows *sql.Rows) error {
		s := &model.Stop{}
		stops = append(stops, s)
		return rows.Scan(
			&s.ID,
			&s.Code,
			&s.Name,
			&s.Desc,
			&s.Lat,
			&s.Lon,
			&s.URL,
			&s.LocationType,
			&s.ParentStation,
			&s.PlatformCode,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("reading stops: %w", err)
	}
	return stops, nil
}

func (r *PSQLFeedReader) Routes() ([]*model.Route, error) {
	routes := []*model.Route{}
	err := r.each(`
SELECT id, agency_id, short_name, long_name, description, type, url, color, text_color
FROM routes
WHERE feed_id = $1`, func(rows *sql.Rows) error {
		route := &model.Route{}
		routes = append(routes, route)
		return rows.Scan(
			&route.ID,
			&route.AgencyID,
			&route.ShortName,
			&route.LongName,
			&route.Desc,
			&route.Type,
			&route.URL,
			&route.Color,
			&route.TextColor,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	return routes, nil
}

func (r *PSQLFeedReader) Trips() ([]*model.Trip, error) {
	trips := []*model.Trip{}
	err := r.each(`
SELECT id, route_id, service_id, headsign, short_name, direction_id, direction, shape_id, block_id
FROM trips
WHERE feed_id = $1`, func(rows *sql.Rows) error {
		t := &model.Trip{}
		trips = append(trips, t)
		return rows.Scan(
			&t.ID,
			&t.RouteID,
			&t.ServiceID,
			&t.Headsign,
			&t.ShortName,
			&t.DirectionID,
			&t.Direction,
			&t.ShapeID,
			&t.BlockID,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("reading trips: %w", err)
	}
	return trips, nil
}

func (r *PSQLFeedReader) StopTimes() ([]*model.StopTime, error) {
	stopTimes := []*model.StopTime{}
	err := r.each(`
SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time, headsign
FROM stop_times
WHERE feed_id = $1
ORDER BY trip_id, stop_sequence`, func(rows *sql.Rows) error {
		st := &model.StopTime{}
		stopTimes = append(stopTimes, st)
		return rows.Scan(
			&st.TripID,
			&st.StopID,
			&st.StopSequence,
			&st.Arrival,
			&st.Departure,
			&st.Headsign,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("reading stop times: %w", err)
	}
	return stopTimes, nil
}

func (r *PSQLFeedReader) Calendars() ([]*model.Calendar, error) {
	calendars := []*model.Calendar{}
	err := r.each(`
SELECT service_id, start_date, end_date, monday, tuesday, wednesday, thursday, friday, saturday, sunday
FROM calendar
WHERE feed_id = $1`, func(rows *sql.Rows) error {
		c := &model.Calendar{}
		days := [7]int{}
		err := rows.Scan(
			&c.ServiceID,
			&c.StartDate,
			&c.EndDate,
			&days[time.Monday],
			&days[time.Tuesday],
			&days[time.Wednesday],
			&days[time.Thursday],
			&days[time.Friday],
			&days[time.Saturday],
			&days[time.Sunday],
		)
		if err != nil {
			return err
		}
		for d, on := range days {
			if on == 1 {
				c.Weekday |= 1 << d
			}
		}
		calendars = append(calendars, c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading calendars: %w", err)
	}
	return calendars, nil
}

func (r *PSQLFeedReader) CalendarDates() ([]*model.CalendarDate, error) {
	cds := []*model.CalendarDate{}
	err := r.each(`
SELECT service_id, date, exception_type
FROM calendar_dates
WHERE feed_id = $1`, func(rows *sql.Rows) error {
		cd := &model.CalendarDate{}
		cds = append(cds, cd)
		return rows.Scan(&cd.ServiceID, &cd.Date, &cd.ExceptionType)
	})
	if err != nil {
		return nil, fmt.Errorf("reading calendar dates: %w", err)
	}
	return cds, nil
}

func (r *PSQLFeedReader) ShapePoints() ([]*model.ShapePoint, error) {
	points := []*model.ShapePoint{}
	err := r.each(`
SELECT shape_id, lat, lon, sequence
FROM shapes
WHERE feed_id = $1
ORDER BY shape_id, sequence`, func(rows *sql.Rows) error {
		p := &model.ShapePoint{}
		points = append(points, p)
		return rows.Scan(&p.ShapeID, &p.Lat, &p.Lon, &p.Sequence)
	})
	if err != nil {
		return nil, fmt.Errorf("reading shapes: %w", err)
	}
	return points, nil
}

func (r *PSQLFeedReader) ActiveServices(date string) ([]string, error) {
	parsedDate, err := time.Parse(model.GTFSDateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", date)
	}

	rows, err := r.db.Query(`
WITH
Exceptions AS (
        SELECT service_id, exception_type
        FROM calendar_dates
        WHERE feed_id = $1 AND
              date = $2
),
Regular AS (
        SELECT service_id
        FROM calendar
        WHERE feed_id = $1 AND
              `+weekdayColumn[parsedDate.Weekday()]+` = 1 AND
              start_date <= $2 AND
              end_date >= $2
)
SELECT service_id FROM Regular
WHERE service_id NOT IN (
	SELECT service_id FROM Exceptions WHERE exception_type = 2
)
UNION
SELECT service_id FROM Exceptions
WHERE exception_type = 1
`, r.id, date)
	if err != nil {
		return nil, fmt.Errorf("querying for active services: %w", err)
	}
	defer rows.Close()

	activeServices := []string{}
	for rows.Next() {
		var serviceID string
		if err := rows.Scan(&serviceID); err != nil {
			return nil, fmt.Errorf("scanning active services: %w", err)
		}
		activeServices = append(activeServices, serviceID)
	}
	sort.Strings(activeServices)

	return activeServices, rows.Err()
}
