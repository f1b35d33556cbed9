package markethours

import (
	"time"

	"StockPulse/internal/domain/models"
)

const (
	openHour, openMinute   = 9, 30
	closeHour, closeMinute = 16, 0
)

// Calculator derives the regular trading session of a US equity exchange.
type Calculator struct {
	loc      *time.Location
	holidays map[string]struct{}
}

type Option func(*Calculator)

// WithLocation overrides the exchange timezone.
func WithLocation(loc *time.Location) Option {
	return func(c *Calculator) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithHolidays marks full-day closures given as YYYY-MM-DD in exchange time.
func WithHolidays(days ...string) Option {
	return func(c *Calculator) {
		for _, d := range days {
			c.holidays[d] = struct{}{}
		}
	}
}

// New builds a calculator for America/New_York. It falls back to a fixed
// UTC-5 zone when the tz database is unavailable.
func New(opts ...Option) *Calculator {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	c := &Calculator{loc: loc, holidays: map[string]struct{}{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Calculator) Location() *time.Location { return c.loc }

// Window returns the open state at now plus the next open and close instants.
func (c *Calculator) Window(now time.Time) models.MarketWindow {
	t := now.In(c.loc)
	start, end := c.session(t)

	if c.isTradingDay(t) && !t.Before(start) && t.Before(end) {
		return models.MarketWindow{
			IsOpen:    true,
			NextOpen:  c.nextOpenAfter(t),
			NextClose: end,
		}
	}

	var nextOpen time.Time
	if c.isTradingDay(t) && t.Before(start) {
		nextOpen = start
	} else {
		nextOpen = c.nextOpenAfter(t)
	}
	_, nextClose := c.session(nextOpen)
	return models.MarketWindow{NextOpen: nextOpen, NextClose: nextClose}
}

func (c *Calculator) IsOpen(now time.Time) bool {
	return c.Window(now).IsOpen
}

// UntilClose is the time left in the current session, zero when closed.
func (c *Calculator) UntilClose(now time.Time) time.Duration {
	w := c.Window(now)
	if !w.IsOpen {
		return 0
	}
	return w.NextClose.Sub(now)
}

func (c *Calculator) session(t time.Time) (time.Time, time.Time) {
	y, m, d := t.Date()
	return time.Date(y, m, d, openHour, openMinute, 0, 0, c.loc),
		time.Date(y, m, d, closeHour, closeMinute, 0, 0, c.loc)
}

// nextOpenAfter returns the session open of the first trading day after t's date.
func (c *Calculator) nextOpenAfter(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 12, 0, 0, 0, c.loc)
	for i := 0; i < 14; i++ {
		day = day.AddDate(0, 0, 1)
		if c.isTradingDay(day) {
			open, _ := c.session(day)
			return open
		}
	}
	// a fortnight of holidays is a configuration error; fall back to the calendar
	open, _ := c.session(day)
	return open
}

func (c *Calculator) isTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[t.Format("2006-01-02")]
	return !holiday
}
