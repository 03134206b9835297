// Package timezone maps phone numbers to IANA zones and converts between a
// caller's local time and the reference zone used for scheduling.
package timezone

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/nyaruka/phonenumbers"
)

var ErrUnparseableTime = errors.New("timezone: unparseable time")

const (
	defaultNorthAmerica = "America/New_York"
	india               = "Asia/Kolkata"
)

// Resolver is safe for concurrent use; it holds no mutable state.
type Resolver struct {
	reference *time.Location
}

func NewResolver(referenceZone string) (*Resolver, error) {
	loc, err := time.LoadLocation(referenceZone)
	if err != nil {
		return nil, fmt.Errorf("timezone: load reference zone %q: %w", referenceZone, err)
	}
	return &Resolver{reference: loc}, nil
}

func (r *Resolver) Reference() *time.Location { return r.reference }

// Zone returns the IANA zone for number, falling back to the reference zone.
func (r *Resolver) Zone(number string) string {
	n := normalize(number)
	if n == "" {
		return r.reference.String()
	}
	num, err := phonenumbers.Parse(n, "")
	if err != nil {
		return r.reference.String()
	}

	switch num.GetCountryCode() {
	case 91:
		return india
	case 1:
		national := strconv.FormatUint(num.GetNationalNumber(), 10)
		if len(national) >= 3 {
			if z, ok := northAmericaAreaCodes[national[:3]]; ok {
				return z
			}
		}
		return defaultNorthAmerica
	}

	if z, ok := regionZones[phonenumbers.GetRegionCodeForNumber(num)]; ok {
		return z
	}
	return r.reference.String()
}

// Location is Zone resolved to a *time.Location.
func (r *Resolver) Location(number string) *time.Location {
	loc, err := time.LoadLocation(r.Zone(number))
	if err != nil {
		return r.reference
	}
	return loc
}

func normalize(number string) string {
	var b strings.Builder
	for i, c := range strings.TrimSpace(number) {
		switch {
		case c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '+' && i == 0:
			b.WriteRune(c)
		}
	}
	out := b.String()
	if out == "" || out == "+" {
		return ""
	}
	if strings.HasPrefix(out, "00") {
		out = "+" + out[2:]
	}
	if !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	return out
}

// TimeContext is the caller-facing clock injected into prompts.
type TimeContext struct {
	Zone          string
	UserTime      string
	UserDay       string
	UserDate      string
	Greeting      string
	ReferenceTime string
	ReferenceDay  string
	ReferenceDate string
}

func (r *Resolver) Context(number string, now time.Time) TimeContext {
	zone := r.Zone(number)
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = r.reference
		zone = r.reference.String()
	}
	local := now.In(loc)
	ref := now.In(r.reference)
	return TimeContext{
		Zone:          zone,
		UserTime:      local.Format("03:04 PM"),
		UserDay:       local.Weekday().String(),
		UserDate:      local.Format("January 2, 2006"),
		Greeting:      Greeting(local.Hour()),
		ReferenceTime: ref.Format("03:04 PM"),
		ReferenceDay:  ref.Weekday().String(),
		ReferenceDate: ref.Format("January 2, 2006"),
	}
}

// Greeting picks a salutation for the caller's local hour.
func Greeting(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "Good Morning"
	case hour >= 12 && hour < 17:
		return "Good Afternoon"
	case hour >= 17 && hour < 21:
		return "Good Evening"
	default:
		return "Hello"
	}
}

// FormatReference renders t in the reference zone, e.g. "Jun 11, 02:30 PM IST".
func (r *Resolver) FormatReference(t time.Time) string {
	return t.In(r.reference).Format("Jan 02, 03:04 PM MST")
}

var clockLayouts = []string{"3:04 PM", "3:04PM", "3 PM", "3PM", "15:04"}

// ToReference interprets a spoken clock time ("10:00 AM", "tomorrow 3 PM",
// "Friday 15:30") in zone and returns the next matching instant, expressed in
// the reference zone.
func (r *Resolver) ToReference(spoken, zone string, now time.Time) (time.Time, error) {
	loc := r.reference
	if zone != "" {
		l, err := time.LoadLocation(zone)
		if err != nil {
			return time.Time{}, fmt.Errorf("timezone: load %q: %w", zone, err)
		}
		loc = l
	}
	local := now.In(loc)

	text := strings.TrimSpace(spoken)
	dayShift := 0
	namedWeekday := false
	if f := strings.Fields(text); len(f) > 1 {
		head := strings.ToLower(strings.TrimSuffix(f[0], ","))
		if head == "today" || head == "tomorrow" {
			if head == "tomorrow" {
				dayShift = 1
			}
			text = strings.Join(f[1:], " ")
		} else if wd, ok := weekdays[head]; ok {
			dayShift = (int(wd) - int(local.Weekday()) + 7) % 7
			namedWeekday = true
			text = strings.Join(f[1:], " ")
		}
	}

	var clock time.Time
	var parsed bool
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(text)); err == nil {
			clock, parsed = t, true
			break
		}
	}
	if !parsed {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTime, spoken)
	}

	cand := time.Date(local.Year(), local.Month(), local.Day()+dayShift, clock.Hour(), clock.Minute(), 0, 0, loc)
	if !cand.After(now) {
		if namedWeekday {
			cand = cand.AddDate(0, 0, 7)
		} else {
			cand = cand.AddDate(0, 0, 1)
		}
	}
	return cand.In(r.reference), nil
}

var naiveLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}

// ParseInstant parses an RFC 3339 timestamp, or a zone-less ISO timestamp
// taken to be in the reference zone.
func (r *Resolver) ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(r.reference), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, r.reference); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTime, s)
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}
