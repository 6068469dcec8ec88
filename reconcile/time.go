package reconcile

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is how dates are stored, compared and exported.
const DateLayout = "2006-01-02"

// dateLayouts are the textual forms accepted from extracts and operators.
var dateLayouts = []string{
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05-07:00",
	"02/01/2006",
	"02/01/2006 15:04:05",
	"02-01-2006",
	"2006/01/02",
}

// excelEpoch is day zero of the 1900 date system once the phantom
// 29 February 1900 is accounted for.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses s with the accepted layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// ParseDayMonthYear parses the dd/mm/yyyy form used by the navy extract.
func ParseDayMonthYear(s string) (time.Time, bool) {
	t, err := time.Parse("02/01/2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SerialDate converts a spreadsheet serial day number to a date.
func SerialDate(d decimal.Decimal) (time.Time, bool) {
	days := d.IntPart()
	// Serial 1 is 1900-01-01; anything past year 9999 is not a date.
	if days < 1 || days > 2958465 {
		return time.Time{}, false
	}
	return excelEpoch.AddDate(0, 0, int(days)), true
}

// Clock returns the current time. Engines take one so tests can pin "today".
type Clock func() time.Time

// Today returns the calendar day of the clock, or of time.Now when nil.
func (c Clock) Today() time.Time {
	if c == nil {
		return Day(time.Now())
	}
	return Day(c())
}

// FixedClock returns a Clock pinned to t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
