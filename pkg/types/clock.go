package types

import (
	"fmt"
	"time"
)

// ParseClock parses an "HH:MM" wall-clock string into minutes since
// midnight. The form is strict: two zero-padded digit pairs and nothing
// else, so "9:5" and "09:00x" are rejected at the validation boundary.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' || !digits(s[:2]) || !digits(s[3:]) {
		return 0, NewValidationError(ErrCodeInvalidInput, fmt.Sprintf("invalid time %q, expected HH:MM", s), nil)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, NewValidationError(ErrCodeInvalidInput, fmt.Sprintf("time %q out of range", s), nil)
	}
	return h*60 + m, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatClock formats minutes since midnight as "HH:MM"
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Overlaps reports whether two half-open minute intervals [aStart,aEnd) and
// [bStart,bEnd) intersect. Back-to-back intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}

// Contains reports whether [outerStart,outerEnd] fully contains [start,end]
func Contains(outerStart, outerEnd, start, end int) bool {
	return outerStart <= start && outerEnd >= end
}

// Midnight truncates a timestamp to the start of its day
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two timestamps fall on the same calendar day
func SameDay(a, b time.Time) bool {
	return Midnight(a).Equal(Midnight(b))
}

// NextOccurrence returns the next date on or after from whose weekday matches
// dayOfWeek (0=Sunday .. 6=Saturday).
func NextOccurrence(from time.Time, dayOfWeek int) time.Time {
	d := Midnight(from)
	offset := (dayOfWeek - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}
