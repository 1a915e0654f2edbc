package renewals

import (
	"testing"
	"time"
)

type hoursConfig struct {
	tz    string
	start string
	end   string
	days  []string
}

func (c hoursConfig) GetBusinessTimezone() string   { return c.tz }
func (c hoursConfig) GetBusinessHoursStart() string { return c.start }
func (c hoursConfig) GetBusinessHoursEnd() string   { return c.end }
func (c hoursConfig) GetBusinessDays() []string     { return c.days }

func dubaiHours(t *testing.T) Hours {
	t.Helper()
	h, err := NewHours(hoursConfig{
		tz:    "Asia/Dubai",
		start: "09:00",
		end:   "18:00",
		days:  []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat"},
	})
	if err != nil {
		t.Fatalf("NewHours: %v", err)
	}
	return h
}

func TestHoursContains(t *testing.T) {
	h := dubaiHours(t)

	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		// Dubai is UTC+4 year-round.
		{"tuesday mid-morning", time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC), true},
		{"opening minute", time.Date(2026, 8, 25, 5, 0, 0, 0, time.UTC), true},
		{"minute before opening", time.Date(2026, 8, 25, 4, 59, 0, 0, time.UTC), false},
		{"closing minute is outside", time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC), false},
		{"late evening", time.Date(2026, 8, 25, 19, 0, 0, 0, time.UTC), false},
		{"sunday is closed", time.Date(2026, 8, 23, 6, 0, 0, 0, time.UTC), false},
		{"saturday is open", time.Date(2026, 8, 22, 6, 0, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		if got := h.Contains(tc.t); got != tc.want {
			t.Errorf("%s: Contains(%v) = %v, want %v", tc.name, tc.t, got, tc.want)
		}
	}
}

func TestHoursWeekdayCrossesDateLine(t *testing.T) {
	h := dubaiHours(t)
	// Sunday 22:00 UTC is Monday 02:00 in Dubai: right weekday, outside the
	// window. Monday 05:30 UTC is Monday 09:30 in Dubai: inside.
	if h.Contains(time.Date(2026, 8, 23, 22, 0, 0, 0, time.UTC)) {
		t.Error("pre-dawn Monday counted as open")
	}
	if !h.Contains(time.Date(2026, 8, 24, 5, 30, 0, 0, time.UTC)) {
		t.Error("Monday morning counted as closed")
	}
}

func TestNewHoursRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		cfg  hoursConfig
	}{
		{"bad timezone", hoursConfig{tz: "Mars/Olympus", start: "09:00", end: "18:00", days: []string{"Mon"}}},
		{"bad clock", hoursConfig{tz: "Asia/Dubai", start: "9am", end: "18:00", days: []string{"Mon"}}},
		{"inverted window", hoursConfig{tz: "Asia/Dubai", start: "18:00", end: "09:00", days: []string{"Mon"}}},
		{"unknown day", hoursConfig{tz: "Asia/Dubai", start: "09:00", end: "18:00", days: []string{"Funday"}}},
		{"no days", hoursConfig{tz: "Asia/Dubai", start: "09:00", end: "18:00", days: nil}},
	}
	for _, tc := range cases {
		if _, err := NewHours(tc.cfg); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestNewHoursAcceptsFullDayNames(t *testing.T) {
	h, err := NewHours(hoursConfig{
		tz:    "Asia/Dubai",
		start: "09:00",
		end:   "18:00",
		days:  []string{"monday", "Wednesday"},
	})
	if err != nil {
		t.Fatalf("NewHours: %v", err)
	}
	if !h.Contains(time.Date(2026, 8, 24, 6, 0, 0, 0, time.UTC)) {
		t.Error("monday should be open")
	}
	if h.Contains(time.Date(2026, 8, 25, 6, 0, 0, 0, time.UTC)) {
		t.Error("tuesday should be closed")
	}
}
