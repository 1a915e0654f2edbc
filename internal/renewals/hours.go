package renewals

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shire602-cyber/alainbcenter-crm-sub008/platform/config"
)

// Hours is the send window in the business timezone. Reminders landing
// outside it are skipped and picked up by a later sweep.
type Hours struct {
	loc   *time.Location
	start int
	end   int
	days  map[time.Weekday]bool
}

var weekdayByName = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func NewHours(cfg config.BusinessHoursConfig) (Hours, error) {
	loc, err := time.LoadLocation(cfg.GetBusinessTimezone())
	if err != nil {
		return Hours{}, fmt.Errorf("business timezone: %w", err)
	}
	start, err := parseClock(cfg.GetBusinessHoursStart())
	if err != nil {
		return Hours{}, fmt.Errorf("business hours start: %w", err)
	}
	end, err := parseClock(cfg.GetBusinessHoursEnd())
	if err != nil {
		return Hours{}, fmt.Errorf("business hours end: %w", err)
	}
	if end <= start {
		return Hours{}, errors.New("business hours end before they start")
	}

	days := make(map[time.Weekday]bool)
	for _, name := range cfg.GetBusinessDays() {
		wd, ok := weekdayByName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return Hours{}, fmt.Errorf("unknown business day %q", name)
		}
		days[wd] = true
	}
	if len(days) == 0 {
		return Hours{}, errors.New("no business days configured")
	}
	return Hours{loc: loc, start: start, end: end, days: days}, nil
}

// Contains reports whether t falls inside the send window.
func (h Hours) Contains(t time.Time) bool {
	local := t.In(h.loc)
	if !h.days[local.Weekday()] {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= h.start && minute < h.end
}

// Location returns the business timezone. Days-until-expiry counts calendar
// days in this zone, not 24-hour blocks.
func (h Hours) Location() *time.Location {
	return h.loc
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
