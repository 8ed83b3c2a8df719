// Package timezone maps timezone identifiers to fixed UTC offsets.
//
// Offsets are constant minutes east of UTC. Daylight saving is not modelled:
// a business in Europe/Berlin is always +60.
package timezone

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// offsets is never written after init, so concurrent reads need no locking.
var offsets = map[string]int{
	"UTC":     0,
	"Etc/UTC": 0,
	"GMT":     0,

	// Central Asia
	"Asia/Tashkent":  300,
	"Asia/Samarkand": 300,
	"Asia/Almaty":    300,
	"Asia/Qostanay":  300,
	"Asia/Aqtobe":    300,
	"Asia/Aqtau":     300,
	"Asia/Oral":      300,
	"Asia/Atyrau":    300,
	"Asia/Dushanbe":  300,
	"Asia/Ashgabat":  300,
	"Asia/Bishkek":   360,

	// CIS and neighbours
	"Europe/Moscow":      180,
	"Europe/Minsk":       180,
	"Europe/Istanbul":    180,
	"Europe/Kiev":        120,
	"Europe/Kyiv":        120,
	"Europe/Kaliningrad": 120,
	"Europe/Samara":      240,
	"Asia/Baku":          240,
	"Asia/Tbilisi":       240,
	"Asia/Yerevan":       240,
	"Asia/Yekaterinburg": 300,
	"Asia/Omsk":          360,
	"Asia/Novosibirsk":   420,
	"Asia/Krasnoyarsk":   420,
	"Asia/Irkutsk":       480,
	"Asia/Vladivostok":   600,

	// Rest of Asia and Oceania
	"Asia/Dubai":       240,
	"Asia/Karachi":     300,
	"Asia/Kolkata":     330,
	"Asia/Kathmandu":   345,
	"Asia/Dhaka":       360,
	"Asia/Bangkok":     420,
	"Asia/Jakarta":     420,
	"Asia/Shanghai":    480,
	"Asia/Singapore":   480,
	"Asia/Seoul":       540,
	"Asia/Tokyo":       540,
	"Australia/Sydney": 600,

	// Europe and Africa
	"Europe/London":  0,
	"Europe/Berlin":  60,
	"Europe/Paris":   60,
	"Europe/Madrid":  60,
	"Europe/Warsaw":  60,
	"Europe/Athens":  120,
	"Africa/Cairo":   120,
	"Africa/Lagos":   60,
	"Africa/Nairobi": 180,

	// Americas
	"America/New_York":    -300,
	"America/Chicago":     -360,
	"America/Denver":      -420,
	"America/Los_Angeles": -480,
	"America/Sao_Paulo":   -180,
	"America/Mexico_City": -360,
}

// Offset returns the fixed offset in minutes for id. Identifiers of the form
// "UTC+05:00" or "UTC-3" are accepted as literals. Unknown ids report ok=false.
func Offset(id string) (minutes int, ok bool) {
	id = strings.TrimSpace(id)
	if m, found := offsets[id]; found {
		return m, true
	}
	return parseLiteral(id)
}

// Location returns a fixed-offset location for id, falling back to UTC.
func Location(id string) *time.Location {
	minutes, ok := Offset(id)
	if !ok {
		return time.UTC
	}
	name := strings.TrimSpace(id)
	return time.FixedZone(name, minutes*60)
}

// ToLocal converts t into the fixed-offset local time of id.
func ToLocal(t time.Time, id string) time.Time {
	return t.In(Location(id))
}

// LocalClockToUTC interprets hh:mm on the given local calendar date in zone id
// and returns the UTC instant.
func LocalClockToUTC(year int, month time.Month, day, hour, minute int, id string) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, Location(id)).UTC()
}

// ParseLocal parses a timestamp supplied by a user or model. Values with an
// explicit offset keep it; naive values are read as local time in zone id.
func ParseLocal(raw, id string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	loc := Location(id)
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timezone: cannot parse time %q", raw)
}

// ParseDate parses a YYYY-MM-DD calendar date. The result is midnight UTC and
// only the calendar fields are meaningful.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("timezone: cannot parse date %q", raw)
	}
	return t, nil
}

func parseLiteral(id string) (int, bool) {
	upper := strings.ToUpper(id)
	var rest string
	switch {
	case strings.HasPrefix(upper, "UTC"):
		rest = upper[3:]
	case strings.HasPrefix(upper, "GMT"):
		rest = upper[3:]
	default:
		return 0, false
	}
	if rest == "" {
		return 0, true
	}
	sign := 1
	switch rest[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, false
	}
	rest = rest[1:]
	hoursPart, minutesPart, hasMinutes := strings.Cut(rest, ":")
	hours, err := strconv.Atoi(hoursPart)
	if err != nil || hours < 0 || hours > 14 {
		return 0, false
	}
	minutes := 0
	if hasMinutes {
		minutes, err = strconv.Atoi(minutesPart)
		if err != nil || minutes < 0 || minutes > 59 {
			return 0, false
		}
	}
	return sign * (hours*60 + minutes), true
}
