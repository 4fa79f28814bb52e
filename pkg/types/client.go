package types

import "time"

// ServiceStatus represents whether a client is actively receiving care
type ServiceStatus string

const (
	ServiceStatusActive   ServiceStatus = "active"
	ServiceStatusInactive ServiceStatus = "inactive"
)

// CareNeed represents a single care requirement for a client
type CareNeed struct {
	Type        string `json:"type" db:"type"`
	Description string `json:"description,omitempty" db:"description"`
	Priority    int    `json:"priority" db:"priority"`
}

// Address represents a street address with optional geocoded coordinates
type Address struct {
	Line1     string   `json:"line1"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	Zip       string   `json:"zip"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// IsEmpty reports whether no address fields are set
func (a Address) IsEmpty() bool {
	return a.Line1 == "" && a.City == "" && a.State == "" && a.Zip == ""
}

// TransportationNeeds represents a client's transportation requirements
type TransportationNeeds struct {
	RequiresDriverCaregiver bool   `json:"requires_driver_caregiver"`
	Notes                   string `json:"notes,omitempty"`
}

// ServiceWindow represents a preferred service time range on a weekday
type ServiceWindow struct {
	DayOfWeek int    `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	StartTime string `json:"start_time"`  // "HH:MM"
	EndTime   string `json:"end_time"`    // "HH:MM"
}

// Client represents a home-care client
type Client struct {
	ID                string              `json:"id" db:"id"`
	Name              string              `json:"name" db:"name"`
	Address           Address             `json:"address" db:"address"`
	CareNeeds         []CareNeed          `json:"care_needs" db:"care_needs"`
	Transportation    TransportationNeeds `json:"transportation" db:"transportation"`
	PreferredHours    []ServiceWindow     `json:"preferred_hours,omitempty" db:"preferred_hours"`
	PreferredLanguage string              `json:"preferred_language,omitempty" db:"preferred_language"`
	PreferredGender   string              `json:"preferred_gender,omitempty" db:"preferred_gender"`
	ServiceStatus     ServiceStatus       `json:"service_status" db:"service_status"`
	CreatedAt         time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" db:"updated_at"`
}

// Validate checks client invariants before persistence
func (c *Client) Validate() error {
	if c.Name == "" {
		return NewValidationError(ErrCodeInvalidInput, "client name is required", nil)
	}
	for _, need := range c.CareNeeds {
		if need.Type == "" {
			return NewValidationError(ErrCodeInvalidInput, "care need type is required", nil)
		}
		if need.Priority <= 0 {
			return NewValidationError(ErrCodeInvalidInput, "care need priority must be a positive integer", map[string]interface{}{
				"care_need": need.Type,
				"priority":  need.Priority,
			})
		}
	}
	if c.Transportation.RequiresDriverCaregiver && c.Address.IsEmpty() {
		return NewValidationError(ErrCodeInvalidInput, "address is required when a driver caregiver is required", nil)
	}
	return nil
}
