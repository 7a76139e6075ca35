// Package calendar answers two questions for the scheduler loop: is a
// given date a trading day, and when does the next session start.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alphahunter/monitor/internal/config"
	"github.com/alphahunter/monitor/internal/observ"
)

const dateLayout = "2006-01-02"

type session struct {
	open  int // minutes from midnight
	close int
}

// Calendar holds the holiday table and intraday session windows. An empty
// holiday table puts it in degraded weekend-only mode.
type Calendar struct {
	holidays map[string]bool
	sessions []session
	degraded bool
}

func New(cfg config.Calendar) (*Calendar, error) {
	c := &Calendar{
		holidays: make(map[string]bool, len(cfg.Holidays)),
	}
	for _, d := range cfg.Holidays {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("holiday %q: %w", d, err)
		}
		c.holidays[d] = true
	}
	// makeup workdays reopen offices, never the exchange; the weekend
	// rule in TradingDay already closes them, so only the dates are
	// validated here to surface config typos
	for _, d := range cfg.MakeupWorkdays {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("makeup workday %q: %w", d, err)
		}
	}
	for _, w := range cfg.Sessions {
		open, err := parseClock(w.Open)
		if err != nil {
			return nil, err
		}
		cl, err := parseClock(w.Close)
		if err != nil {
			return nil, err
		}
		if cl <= open {
			return nil, fmt.Errorf("session %s-%s closes before it opens", w.Open, w.Close)
		}
		c.sessions = append(c.sessions, session{open: open, close: cl})
	}
	if len(c.sessions) == 0 {
		return nil, fmt.Errorf("at least one session window required")
	}
	if len(c.holidays) == 0 {
		c.degraded = true
		observ.Warn("calendar_degraded", map[string]any{
			"reason": "no holiday table configured, weekend-only detection",
		})
	}
	return c, nil
}

// Degraded reports whether holiday detection is unavailable and only the
// weekend rule applies.
func (c *Calendar) Degraded() bool { return c.degraded }

// TradingDay reports whether the exchange is open on the given date.
// A makeup workday on a weekend does not open the market.
func (c *Calendar) TradingDay(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if c.degraded {
		return true
	}
	return !c.holidays[t.Format(dateLayout)]
}

// InSession reports whether now falls inside an active trading session on
// a trading day.
func (c *Calendar) InSession(now time.Time) bool {
	if !c.TradingDay(now) {
		return false
	}
	m := now.Hour()*60 + now.Minute()
	for _, s := range c.sessions {
		if m >= s.open && m <= s.close {
			return true
		}
	}
	return false
}

// NextBoundary returns the next point at which polling should run: now
// itself when a session is active, the next session open on the same day
// during a break, or the first session open of the next trading day found
// by scanning forward.
func (c *Calendar) NextBoundary(now time.Time) time.Time {
	if c.TradingDay(now) {
		m := now.Hour()*60 + now.Minute()
		for _, s := range c.sessions {
			if m < s.open {
				return at(now, s.open)
			}
			if m <= s.close {
				return now
			}
		}
	}
	next := now.AddDate(0, 0, 1)
	for !c.TradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return at(next, c.sessions[0].open)
}

func at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}
