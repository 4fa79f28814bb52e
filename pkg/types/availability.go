package types

import "time"

// RecurrenceType represents how a regular slot or shift repeats
type RecurrenceType string

const (
	RecurrenceWeekly   RecurrenceType = "weekly"
	RecurrenceBiweekly RecurrenceType = "biweekly"
)

// TimeOffStatus represents the approval state of a time-off request
type TimeOffStatus string

const (
	TimeOffPending  TimeOffStatus = "pending"
	TimeOffApproved TimeOffStatus = "approved"
	TimeOffDenied   TimeOffStatus = "denied"
)

// RegularSlot represents one recurring working window in a caregiver's week
type RegularSlot struct {
	DayOfWeek  int            `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	StartTime  string         `json:"start_time"`  // "HH:MM"
	EndTime    string         `json:"end_time"`    // "HH:MM"
	Recurrence RecurrenceType `json:"recurrence"`
}

// TimeOff represents a caregiver's time-off request
type TimeOff struct {
	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	Reason    string        `json:"reason,omitempty"`
	Status    TimeOffStatus `json:"status"`
}

// Covers reports whether the time-off interval contains the given date.
// Both bounds are inclusive at day granularity.
func (t TimeOff) Covers(date time.Time) bool {
	d := Midnight(date)
	return !d.Before(Midnight(t.StartDate)) && !d.After(Midnight(t.EndDate))
}

// Availability is the 1:1 availability record owned by a caregiver
type Availability struct {
	CaregiverID     string        `json:"caregiver_id" db:"caregiver_id"`
	RegularSchedule []RegularSlot `json:"regular_schedule"`
	TimeOff         []TimeOff     `json:"time_off"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// SlotsForDay returns regular slots matching the weekday of the given date
func (a *Availability) SlotsForDay(date time.Time) []RegularSlot {
	var slots []RegularSlot
	day := int(date.Weekday())
	for _, s := range a.RegularSchedule {
		if s.DayOfWeek == day {
			slots = append(slots, s)
		}
	}
	return slots
}

// ApprovedTimeOffCovering returns the first approved time-off interval that
// contains the given date, if any.
func (a *Availability) ApprovedTimeOffCovering(date time.Time) (TimeOff, bool) {
	for _, t := range a.TimeOff {
		if t.Status == TimeOffApproved && t.Covers(date) {
			return t, true
		}
	}
	return TimeOff{}, false
}

// Validate checks availability invariants before persistence
func (a *Availability) Validate() error {
	for _, s := range a.RegularSchedule {
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			return NewValidationError(ErrCodeInvalidInput, "day of week must be in [0..6]", map[string]interface{}{
				"day_of_week": s.DayOfWeek,
			})
		}
		start, err := ParseClock(s.StartTime)
		if err != nil {
			return err
		}
		end, err := ParseClock(s.EndTime)
		if err != nil {
			return err
		}
		if end <= start {
			return NewValidationError(ErrCodeInvalidInput, "slot end time must be after start time", nil)
		}
	}
	for _, t := range a.TimeOff {
		if t.EndDate.Before(t.StartDate) {
			return NewValidationError(ErrCodeInvalidInput, "time off end date must not precede start date", nil)
		}
	}
	return nil
}
