package ghostbuses

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chihacknight/chn-ghost-buses/model"
	"github.com/chihacknight/chn-ghost-buses/storage"
)

// A parsed schedule version, read through storage.
type Static struct {
	Metadata *storage.FeedMetadata
	Reader   storage.FeedReader

	location *time.Location
}

func NewStatic(reader storage.FeedReader, metadata *storage.FeedMetadata) (*Static, error) {
	location := time.UTC
	if metadata.Timezone != "" {
		var err error
		location, err = time.LoadLocation(metadata.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading timezone: %w", err)
		}
	}

	return &Static{
		Metadata: metadata,
		Reader:   reader,
		location: location,
	}, nil
}

// The agency's timezone. UTC if the feed has none.
func (s *Static) Location() *time.Location {
	return s.location
}

// Service calendar of the feed. A feed lacking calendar.txt or
// calendar_dates.txt resolves from whichever table is present.
func (s *Static) Calendar() (*ServiceCalendar, error) {
	calendars, err := s.Reader.Calendars()
	if err != nil {
		return nil, fmt.Errorf("getting calendars: %w", err)
	}
	calendarDates, err := s.Reader.CalendarDates()
	if err != nil {
		return nil, fmt.Errorf("getting calendar dates: %w", err)
	}
	return NewServiceCalendar(calendars, calendarDates)
}

// Active (date, service) pairs within window. A zero window spans the
// whole feed calendar.
func (s *Static) ServiceDates(window DateRange) ([]model.ServiceDate, error) {
	calendar, err := s.Calendar()
	if err != nil {
		return nil, err
	}
	return calendar.Resolve(window)
}

// Services active on a YYYY-MM-DD date, as resolved by the storage
// backend.
func (s *Static) ActiveServices(date string) ([]string, error) {
	gtfsDate, err := model.GTFSDate(date)
	if err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}
	return s.Reader.ActiveServices(gtfsDate)
}

// Services running on a date, with the calendar bounds they were
// resolved against.
type DateServices struct {
	Date     string
	Services []string
	Bounds   DateRange
}

// Services active on a YYYY-MM-DD date. The storage backend's answer
// must match the resolved calendar's, otherwise ErrServiceMismatch is
// returned.
func (s *Static) ServicesOn(date string) (*DateServices, error) {
	calendar, err := s.Calendar()
	if err != nil {
		return nil, err
	}

	fromCalendar, err := calendar.ActiveServices(date)
	if err != nil {
		return nil, err
	}
	fromStorage, err := s.ActiveServices(date)
	if err != nil {
		return nil, fmt.Errorf("getting active services: %w", err)
	}

	sort.Strings(fromStorage)
	if strings.Join(fromStorage, ",") != strings.Join(fromCalendar, ",") {
		return nil, fmt.Errorf(
			"%w: %s: storage has %v, calendar has %v",
			ErrServiceMismatch, date, fromStorage, fromCalendar,
		)
	}

	return &DateServices{
		Date:     date,
		Services: fromCalendar,
		Bounds:   calendar.Bounds(),
	}, nil
}

// Scheduled trips per (date, route, hour) and (date, route,
// direction, hour) within window.
func (s *Static) ScheduleSummary(window DateRange) (*ScheduleSummary, error) {
	serviceDates, err := s.ServiceDates(window)
	if err != nil {
		return nil, fmt.Errorf("resolving service dates: %w", err)
	}

	trips, err := s.Reader.Trips()
	if err != nil {
		return nil, fmt.Errorf("getting trips: %w", err)
	}

	stopTimes, err := s.Reader.StopTimes()
	if err != nil {
		return nil, fmt.Errorf("getting stop times: %w", err)
	}

	return AggregateScheduledTrips(serviceDates, trips, stopTimes), nil
}
