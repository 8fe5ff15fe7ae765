// Package civiltime projects absolute instants onto the building's wall clock.
//
// Every availability instant is stored as an absolute timestamp, but dates and
// times are always read, entered and compared in one fixed civil timezone,
// independent of the timezone of whoever is looking at them.
package civiltime

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Parts is a wall-clock date (YYYY-MM-DD) and 24-hour time (HH:MM).
type Parts struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (p Parts) IsZero() bool {
	return p.Date == "" && p.Time == ""
}

func (p Parts) Complete() bool {
	return p.Date != "" && p.Time != ""
}

type Engine struct {
	loc   *time.Location
	label string
	clock Clock
}

func New(loc *time.Location, label string, clock Clock) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{loc: loc, label: label, clock: clock}
}

// Load builds an engine for a named IANA zone.
func Load(zone, label string, clock Clock) (*Engine, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load civil timezone %q: %w", zone, err)
	}
	return New(loc, label, clock), nil
}

func (e *Engine) Location() *time.Location { return e.loc }

func (e *Engine) Label() string { return e.label }

// Instant is the current absolute time.
func (e *Engine) Instant() time.Time { return e.clock.Now() }

func (e *Engine) ToCivilParts(t time.Time) Parts {
	if t.IsZero() {
		return Parts{}
	}
	local := t.In(e.loc)
	hour := local.Format("15")
	// Some formatters report midnight as hour 24 of the previous day.
	if hour == "24" {
		hour = "00"
	}
	return Parts{
		Date: local.Format(DateLayout),
		Time: hour + ":" + local.Format("04"),
	}
}

// Combine is the inverse of ToCivilParts. Empty or malformed input yields the
// zero time.
func (e *Engine) Combine(date, clock string) time.Time {
	if date == "" || clock == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, e.loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (e *Engine) CombineParts(p Parts) time.Time {
	return e.Combine(p.Date, p.Time)
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant reads an instant from the wire. Values carrying an offset are
// absolute; naive values are read in the civil zone. Invalid input yields the
// zero time.
func (e *Engine) ParseInstant(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, e.loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (e *Engine) Now() Parts {
	return e.ToCivilParts(e.clock.Now())
}

// Today is the current civil date.
func (e *Engine) Today() string {
	return e.Now().Date
}

// HoursBetween is signed; zero instants count as invalid and give 0.
func HoursBetween(start, end time.Time) float64 {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start).Hours()
}

// DaysBetween rounds any partial day up to a full billable day.
func DaysBetween(start, end time.Time) int {
	hours := HoursBetween(start, end)
	if hours <= 0 {
		return 0
	}
	return int(math.Ceil(hours / 24))
}

// IsInPast compares a wall-clock date and time against the civil now without
// building an instant: first by date, then by minutes since midnight.
func (e *Engine) IsInPast(date, clock string) bool {
	now := e.Now()
	if date < now.Date {
		return true
	}
	if date > now.Date {
		return false
	}
	m, ok := minutesOf(clock)
	if !ok {
		return false
	}
	nowMinutes, _ := minutesOf(now.Time)
	return m < nowMinutes
}

// IsWithinRange reports whether the civil date falls on any day touched by
// [start, end]. The check is taken at noon and the bounds are widened to whole
// days so time-of-day components cannot cause an off-by-one.
func (e *Engine) IsWithinRange(date string, start, end time.Time) bool {
	d, err := time.ParseInLocation(DateLayout, date, e.loc)
	if err != nil || start.IsZero() || end.IsZero() {
		return false
	}
	noon := time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, e.loc)

	s := start.In(e.loc)
	lo := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, e.loc)

	f := end.In(e.loc)
	hi := time.Date(f.Year(), f.Month(), f.Day(), 23, 59, 59, int(999*time.Millisecond), e.loc)

	return !noon.Before(lo) && !noon.After(hi)
}

// MinTimeForDate is the earliest selectable time on date: the current civil
// time when date is today, otherwise empty (no bound).
func (e *Engine) MinTimeForDate(date string) string {
	now := e.Now()
	if date == now.Date {
		return now.Time
	}
	return ""
}

// FormatDate renders "Jun 1, 2024".
func (e *Engine) FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(e.loc).Format("Jan 2, 2006")
}

// FormatTime renders "8:00 AM".
func (e *Engine) FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(e.loc).Format("3:04 PM")
}

// FormatDisplay renders "Jun 1, 2024 @ 8:00 AM PST".
func (e *Engine) FormatDisplay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	s := e.FormatDate(t) + " @ " + e.FormatTime(t)
	if e.label != "" {
		s += " " + e.label
	}
	return s
}

func minutesOf(clock string) (int, bool) {
	t, err := time.Parse(TimeLayout, clock)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
