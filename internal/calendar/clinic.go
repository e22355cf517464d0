// Package calendar owns the clinic directory, appointment generation and
// booking persistence behind the dialogue machine's availability ports.
package calendar

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/wolfman30/clinic-voice-agent/internal/dialogue"
)

//go:embed default_clinic.json
var defaultClinicJSON []byte

// DayHours represents the opening hours for a single day.
// Nil means the clinic is closed that day.
type DayHours struct {
	Open  string `json:"open"`  // "09:00" in 24-hour format
	Close string `json:"close"` // "17:00" in 24-hour format
}

// BusinessHours maps day names to their hours.
type BusinessHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// ForDay returns the hours for a weekday, or nil when closed.
func (b BusinessHours) ForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Sunday:
		return b.Sunday
	case time.Monday:
		return b.Monday
	case time.Tuesday:
		return b.Tuesday
	case time.Wednesday:
		return b.Wednesday
	case time.Thursday:
		return b.Thursday
	case time.Friday:
		return b.Friday
	case time.Saturday:
		return b.Saturday
	}
	return nil
}

// Site describes one clinic location.
type Site struct {
	ID      dialogue.Location `json:"id"`
	Name    string            `json:"name"`
	Address string            `json:"address,omitempty"`
	Phone   string            `json:"phone,omitempty"`
}

// Doctor is a bookable provider.
type Doctor struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Specialties   []dialogue.ServiceType `json:"specialties"`
	Locations     []dialogue.Location    `json:"locations"`
	AvailableDays []string               `json:"available_days"`
	StartTime     string                 `json:"start_time"`
	EndTime       string                 `json:"end_time"`
}

// Offers reports whether the doctor performs the service.
func (d Doctor) Offers(service dialogue.ServiceType) bool {
	for _, s := range d.Specialties {
		if s == service {
			return true
		}
	}
	return false
}

// WorksAt reports whether the doctor sees patients at the location.
func (d Doctor) WorksAt(loc dialogue.Location) bool {
	for _, l := range d.Locations {
		if l == loc {
			return true
		}
	}
	return false
}

// WorksOn reports whether the doctor works on the weekday.
func (d Doctor) WorksOn(weekday time.Weekday) bool {
	name := strings.ToLower(weekday.String())
	for _, day := range d.AvailableDays {
		if strings.ToLower(strings.TrimSpace(day)) == name {
			return true
		}
	}
	return false
}

// Clinic is the static directory the scheduler works from.
type Clinic struct {
	Name                string        `json:"name"`
	Timezone            string        `json:"timezone"`
	SlotIntervalMinutes int           `json:"slot_interval_minutes"`
	AppointmentMinutes  int           `json:"appointment_minutes"`
	Locations           []Site        `json:"locations"`
	BusinessHours       BusinessHours `json:"business_hours"`
	Doctors             []Doctor      `json:"doctors"`

	loc *time.Location
}

// DefaultClinic returns the embedded clinic directory.
func DefaultClinic() (*Clinic, error) {
	return ParseClinic(defaultClinicJSON)
}

// LoadClinic reads a clinic directory from path. An empty path loads the
// embedded default.
func LoadClinic(path string) (*Clinic, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultClinic()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("calendar: read clinic data: %w", err)
	}
	return ParseClinic(raw)
}

// ParseClinic decodes and validates a clinic directory.
func ParseClinic(raw []byte) (*Clinic, error) {
	var c Clinic
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("calendar: decode clinic data: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Clinic) validate() error {
	if c.Timezone == "" {
		c.Timezone = "America/Chicago"
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("calendar: clinic timezone %q: %w", c.Timezone, err)
	}
	c.loc = loc
	if c.SlotIntervalMinutes <= 0 {
		c.SlotIntervalMinutes = 30
	}
	if c.AppointmentMinutes <= 0 {
		c.AppointmentMinutes = 60
	}
	if len(c.Doctors) == 0 {
		return errors.New("calendar: clinic data lists no doctors")
	}
	for _, d := range c.Doctors {
		if d.ID == "" || d.Name == "" {
			return errors.New("calendar: every doctor needs an id and a name")
		}
		if _, err := clockTime(d.StartTime); err != nil {
			return fmt.Errorf("calendar: doctor %s start_time: %w", d.ID, err)
		}
		if _, err := clockTime(d.EndTime); err != nil {
			return fmt.Errorf("calendar: doctor %s end_time: %w", d.ID, err)
		}
		for _, s := range d.Specialties {
			if _, ok := dialogue.ParseServiceType(string(s)); !ok {
				return fmt.Errorf("calendar: doctor %s has unknown specialty %q", d.ID, s)
			}
		}
		for _, l := range d.Locations {
			if _, ok := dialogue.ParseLocation(string(l)); !ok {
				return fmt.Errorf("calendar: doctor %s has unknown location %q", d.ID, l)
			}
		}
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		h := c.BusinessHours.ForDay(day)
		if h == nil {
			continue
		}
		if _, err := clockTime(h.Open); err != nil {
			return fmt.Errorf("calendar: %s open: %w", day, err)
		}
		if _, err := clockTime(h.Close); err != nil {
			return fmt.Errorf("calendar: %s close: %w", day, err)
		}
	}
	return nil
}

// Location returns the clinic's time zone.
func (c *Clinic) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// Doctor looks up a provider by id.
func (c *Clinic) Doctor(id string) (Doctor, bool) {
	for _, d := range c.Doctors {
		if d.ID == id {
			return d, true
		}
	}
	return Doctor{}, false
}

// Site looks up a location.
func (c *Clinic) Site(id dialogue.Location) (Site, bool) {
	for _, s := range c.Locations {
		if s.ID == id {
			return s, true
		}
	}
	return Site{}, false
}

// AppointmentLength is the fixed duration of every appointment.
func (c *Clinic) AppointmentLength() time.Duration {
	return time.Duration(c.AppointmentMinutes) * time.Minute
}

// window returns the bookable span for a doctor on the given day: the
// intersection of business hours and the doctor's hours.
func (c *Clinic) window(d Doctor, day time.Time) (time.Time, time.Time, bool) {
	hours := c.BusinessHours.ForDay(day.Weekday())
	if hours == nil || !d.WorksOn(day.Weekday()) {
		return time.Time{}, time.Time{}, false
	}
	open, _ := clockTime(hours.Open)
	closing, _ := clockTime(hours.Close)
	start, _ := clockTime(d.StartTime)
	end, _ := clockTime(d.EndTime)
	if start < open {
		start = open
	}
	if end > closing {
		end = closing
	}
	if end <= start {
		return time.Time{}, time.Time{}, false
	}
	return c.atClock(day, start), c.atClock(day, end), true
}

// atClock builds a wall-clock time on day. Adding to midnight would drift by
// an hour on DST transition days.
func (c *Clinic) atClock(day time.Time, offset time.Duration) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		int(offset/time.Hour), int(offset%time.Hour/time.Minute), 0, 0, c.Location())
}

// clockTime parses "HH:MM" into an offset from midnight.
func clockTime(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
