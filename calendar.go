package ghostbuses

import (
	"fmt"
	"sort"
	"time"

	"github.com/chihacknight/chn-ghost-buses/model"
)

// An inclusive range of YYYY-MM-DD dates. An empty bound is open.
type DateRange struct {
	Start string
	End   string
}

func (r DateRange) Contains(date string) bool {
	if r.Start != "" && date < r.Start {
		return false
	}
	if r.End != "" && date > r.End {
		return false
	}
	return true
}

type serviceDate struct {
	serviceID string
	date      string
}

// Answers which services run on which dates. Built from the weekly
// patterns in calendar.txt and the exceptions in calendar_dates.txt.
// Exceptions always take precedence over the weekly pattern.
//
// All dates are YYYY-MM-DD.
type ServiceCalendar struct {
	patterns   []pattern
	exceptions map[serviceDate]model.ExceptionType

	// Services added on each date.
	added map[string][]string

	bounds DateRange
}

type pattern struct {
	serviceID string
	start     time.Time
	end       time.Time
	weekday   int8
}

func (p pattern) runsOn(t time.Time) bool {
	return p.weekday&(1<<t.Weekday()) != 0 && !t.Before(p.start) && !t.After(p.end)
}

func NewServiceCalendar(calendars []*model.Calendar, calendarDates []*model.CalendarDate) (*ServiceCalendar, error) {
	c := &ServiceCalendar{
		exceptions: map[serviceDate]model.ExceptionType{},
		added:      map[string][]string{},
	}

	widen := func(date string) {
		if c.bounds.Start == "" || date < c.bounds.Start {
			c.bounds.Start = date
		}
		if c.bounds.End == "" || date > c.bounds.End {
			c.bounds.End = date
		}
	}

	for _, cal := range calendars {
		start, err := time.Parse(model.GTFSDateLayout, cal.StartDate)
		if err != nil {
			return nil, fmt.Errorf("service %s: parsing start_date: %w", cal.ServiceID, err)
		}
		end, err := time.Parse(model.GTFSDateLayout, cal.EndDate)
		if err != nil {
			return nil, fmt.Errorf("service %s: parsing end_date: %w", cal.ServiceID, err)
		}
		c.patterns = append(c.patterns, pattern{
			serviceID: cal.ServiceID,
			start:     start,
			end:       end,
			weekday:   cal.Weekday,
		})
		widen(start.Format(model.DateLayout))
		widen(end.Format(model.DateLayout))
	}

	for _, cd := range calendarDates {
		date, err := model.ISODate(cd.Date)
		if err != nil {
			return nil, fmt.Errorf("service %s: parsing date: %w", cd.ServiceID, err)
		}
		key := serviceDate{cd.ServiceID, date}
		if _, found := c.exceptions[key]; found {
			return nil, fmt.Errorf("service %s has several exceptions on %s", cd.ServiceID, date)
		}
		c.exceptions[key] = cd.ExceptionType
		if cd.ExceptionType == model.ExceptionAdded {
			c.added[date] = append(c.added[date], cd.ServiceID)
		}
		widen(date)
	}

	return c, nil
}

// Range spanned by all calendar windows and exception dates.
func (c *ServiceCalendar) Bounds() DateRange {
	return c.bounds
}

// Reports whether serviceID runs on date.
func (c *ServiceCalendar) Active(date string, serviceID string) bool {
	if exception, found := c.exceptions[serviceDate{serviceID, date}]; found {
		return exception == model.ExceptionAdded
	}

	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return false
	}
	for _, p := range c.patterns {
		if p.serviceID == serviceID && p.runsOn(t) {
			return true
		}
	}
	return false
}

// All services running on date, sorted.
func (c *ServiceCalendar) ActiveServices(date string) ([]string, error) {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parsing date: %w", err)
	}

	active := map[string]bool{}
	for _, p := range c.patterns {
		if p.runsOn(t) && c.exceptions[serviceDate{p.serviceID, date}] != model.ExceptionRemoved {
			active[p.serviceID] = true
		}
	}
	for _, serviceID := range c.added[date] {
		active[serviceID] = true
	}

	services := make([]string, 0, len(active))
	for serviceID := range active {
		services = append(services, serviceID)
	}
	sort.Strings(services)
	return services, nil
}

// Every (date, service) pair active within window, sorted by date and
// service. Each service's pattern is walked over its own validity
// window only, and exceptions are applied on top. A zero window
// covers the calendar's full bounds.
func (c *ServiceCalendar) Resolve(window DateRange) ([]model.ServiceDate, error) {
	var lo, hi time.Time
	var err error
	if window.Start != "" {
		lo, err = time.Parse(model.DateLayout, window.Start)
		if err != nil {
			return nil, fmt.Errorf("parsing window start: %w", err)
		}
	}
	if window.End != "" {
		hi, err = time.Parse(model.DateLayout, window.End)
		if err != nil {
			return nil, fmt.Errorf("parsing window end: %w", err)
		}
	}

	active := map[serviceDate]bool{}

	for _, p := range c.patterns {
		start, end := p.start, p.end
		if !lo.IsZero() && start.Before(lo) {
			start = lo
		}
		if !hi.IsZero() && end.After(hi) {
			end = hi
		}
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if p.weekday&(1<<d.Weekday()) == 0 {
				continue
			}
			key := serviceDate{p.serviceID, d.Format(model.DateLayout)}
			if c.exceptions[key] == model.ExceptionRemoved {
				continue
			}
			active[key] = true
		}
	}

	for date, services := range c.added {
		if !window.Contains(date) {
			continue
		}
		for _, serviceID := range services {
			active[serviceDate{serviceID, date}] = true
		}
	}

	dates := make([]model.ServiceDate, 0, len(active))
	for key := range active {
		dates = append(dates, model.ServiceDate{Date: key.date, ServiceID: key.serviceID})
	}
	sort.Slice(dates, func(i, j int) bool {
		if dates[i].Date != dates[j].Date {
			return dates[i].Date < dates[j].Date
		}
		return dates[i].ServiceID < dates[j].ServiceID
	})

	return dates, nil
}

// Resolves calendar.txt and calendar_dates.txt records into the set of
// active (date, service) pairs within window.
func ResolveServiceDates(
	calendars []*model.Calendar,
	calendarDates []*model.CalendarDate,
	window DateRange,
) ([]model.ServiceDate, error) {
	c, err := NewServiceCalendar(calendars, calendarDates)
	if err != nil {
		return nil, err
	}
	return c.Resolve(window)
}
