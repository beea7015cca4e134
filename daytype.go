package ghostbuses

import (
	"fmt"
	"time"

	"github.com/chihacknight/chn-ghost-buses/model"
)

// Holidays observed with reduced (Sunday) service.
var DefaultHolidays = []string{
	"2022-05-30",
	"2022-07-04",
	"2022-09-05",
	"2022-11-24",
	"2022-12-25",
}

// Maps dates to day types. Holidays are configured, never inferred,
// and take precedence over the weekday.
type DayTypeClassifier struct {
	// YYYY-MM-DD entries apply to one date, MM-DD entries to every
	// year.
	dates     map[string]bool
	monthDays map[string]bool
}

func NewDayTypeClassifier(holidays []string) (*DayTypeClassifier, error) {
	c := &DayTypeClassifier{
		dates:     map[string]bool{},
		monthDays: map[string]bool{},
	}

	for _, h := range holidays {
		if t, err := time.Parse(model.DateLayout, h); err == nil {
			c.dates[t.Format(model.DateLayout)] = true
			continue
		}
		if t, err := time.Parse("01-02", h); err == nil {
			c.monthDays[t.Format("01-02")] = true
			continue
		}
		return nil, fmt.Errorf("holiday '%s' is neither YYYY-MM-DD nor MM-DD", h)
	}

	return c, nil
}

// Day type of a YYYY-MM-DD date.
func (c *DayTypeClassifier) Classify(date string) (model.DayType, error) {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("parsing date: %w", err)
	}
	return c.ClassifyTime(t), nil
}

func (c *DayTypeClassifier) ClassifyTime(t time.Time) model.DayType {
	if c.dates[t.Format(model.DateLayout)] || c.monthDays[t.Format("01-02")] {
		return model.DayTypeHoliday
	}

	switch t.Weekday() {
	case time.Saturday:
		return model.DayTypeSaturday
	case time.Sunday:
		return model.DayTypeSunday
	}
	return model.DayTypeWeekday
}
