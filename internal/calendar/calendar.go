// Package calendar provides business-day arithmetic for SLA deadlines.
package calendar

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const dayFormat = "2006-01-02"

// BusinessCalendar answers whether a calendar date is a configured holiday.
type BusinessCalendar interface {
	IsHoliday(t time.Time) bool
}

// HolidayCalendar is a fixed set of holiday dates.
type HolidayCalendar struct {
	days map[string]struct{}
}

// NewHolidayCalendar builds a calendar from explicit dates. Time-of-day and
// zone are ignored; only the UTC calendar date matters.
func NewHolidayCalendar(dates ...time.Time) *HolidayCalendar {
	c := &HolidayCalendar{days: make(map[string]struct{}, len(dates))}
	for _, d := range dates {
		c.days[d.UTC().Format(dayFormat)] = struct{}{}
	}
	return c
}

func (c *HolidayCalendar) IsHoliday(t time.Time) bool {
	if c == nil {
		return false
	}
	_, ok := c.days[t.UTC().Format(dayFormat)]
	return ok
}

type holidayFile struct {
	Holidays []string `yaml:"holidays"`
}

// Load parses a YAML holiday list ("holidays: [2026-01-01, ...]").
func Load(r io.Reader) (*HolidayCalendar, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read holidays: %w", err)
	}
	var spec holidayFile
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("parse holidays: %w", err)
	}
	dates := make([]time.Time, 0, len(spec.Holidays))
	for _, s := range spec.Holidays {
		d, err := time.Parse(dayFormat, s)
		if err != nil {
			return nil, fmt.Errorf("parse holiday %q: %w", s, err)
		}
		dates = append(dates, d)
	}
	return NewHolidayCalendar(dates...), nil
}

// LoadFile builds a holiday calendar from a YAML file on disk. An empty path
// returns an empty calendar (weekends only).
func LoadFile(path string) (*HolidayCalendar, error) {
	if path == "" {
		return NewHolidayCalendar(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open holidays: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Load(f)
}

// AddBusinessDays advances start by the given number of business days,
// skipping weekends and configured holidays. Zero days returns start
// unchanged.
func AddBusinessDays(cal BusinessCalendar, start time.Time, days int) time.Time {
	d := start.UTC()
	for remaining := days; remaining > 0; {
		d = d.AddDate(0, 0, 1)
		if IsBusinessDay(cal, d) {
			remaining--
		}
	}
	return d
}

// IsBusinessDay reports whether the date is neither a weekend nor a holiday.
func IsBusinessDay(cal BusinessCalendar, t time.Time) bool {
	switch t.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return cal == nil || !cal.IsHoliday(t)
}
