package types

import "time"

// ShiftStatus represents the lifecycle state of a shift
type ShiftStatus string

const (
	ShiftNeedsAssignment ShiftStatus = "needs_assignment"
	ShiftAssigned        ShiftStatus = "assigned"
	ShiftConfirmed       ShiftStatus = "confirmed"
	ShiftCancelled       ShiftStatus = "cancelled"
)

// Shift represents a single caregiver-client appointment occurrence.
// CaregiverID is empty until the shift is assigned. Version supports
// optimistic concurrency on mutation.
type Shift struct {
	ID              string         `json:"id" db:"id"`
	ClientID        string         `json:"client_id" db:"client_id"`
	CaregiverID     string         `json:"caregiver_id,omitempty" db:"caregiver_id"`
	Date            time.Time      `json:"date" db:"date"`
	StartTime       string         `json:"start_time" db:"start_time"` // "HH:MM"
	EndTime         string         `json:"end_time" db:"end_time"`     // "HH:MM"
	Status          ShiftStatus    `json:"status" db:"status"`
	IsRecurring     bool           `json:"is_recurring" db:"is_recurring"`
	DayOfWeek       *int           `json:"day_of_week,omitempty" db:"day_of_week"`
	Recurrence      RecurrenceType `json:"recurrence,omitempty" db:"recurrence"`
	RecurrenceStart *time.Time     `json:"recurrence_start,omitempty" db:"recurrence_start"`
	Version         int            `json:"version" db:"version"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// Window returns the shift's time window in minutes since midnight
func (s *Shift) Window() (start, end int, err error) {
	start, err = ParseClock(s.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err = ParseClock(s.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Committed reports whether the shift counts against a caregiver's time
func (s *Shift) Committed() bool {
	return s.CaregiverID != "" && (s.Status == ShiftAssigned || s.Status == ShiftConfirmed)
}

// Validate checks shift invariants and, for recurring shifts, materializes
// the date as the next occurrence of DayOfWeek on or after RecurrenceStart.
func (s *Shift) Validate() error {
	if s.ClientID == "" {
		return NewValidationError(ErrCodeInvalidInput, "client id is required", nil)
	}
	start, end, err := s.Window()
	if err != nil {
		return err
	}
	if end <= start {
		return NewValidationError(ErrCodeInvalidInput, "end time must be after start time", nil)
	}
	if s.IsRecurring {
		if s.DayOfWeek == nil || s.Recurrence == "" || s.RecurrenceStart == nil {
			return NewValidationError(ErrCodeInvalidInput, "recurring shifts require day_of_week, recurrence and recurrence_start", nil)
		}
		if *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
			return NewValidationError(ErrCodeInvalidInput, "day of week must be in [0..6]", nil)
		}
		s.Date = NextOccurrence(*s.RecurrenceStart, *s.DayOfWeek)
	}
	if s.Date.IsZero() {
		return NewValidationError(ErrCodeInvalidInput, "shift date is required", nil)
	}
	s.Date = Midnight(s.Date)
	return nil
}

// ShiftUpdates represents a partial update to a shift
type ShiftUpdates struct {
	CaregiverID *string      `json:"caregiver_id,omitempty"`
	Date        *time.Time   `json:"date,omitempty"`
	StartTime   *string      `json:"start_time,omitempty"`
	EndTime     *string      `json:"end_time,omitempty"`
	Status      *ShiftStatus `json:"status,omitempty"`
}

// ShiftFilters represents filters for shift queries
type ShiftFilters struct {
	ClientID    string      `json:"client_id,omitempty"`
	CaregiverID string      `json:"caregiver_id,omitempty"`
	Status      ShiftStatus `json:"status,omitempty"`
	FromDate    time.Time   `json:"from_date,omitempty"`
	ToDate      time.Time   `json:"to_date,omitempty"`
	Limit       int         `json:"limit,omitempty"`
	Offset      int         `json:"offset,omitempty"`
}
