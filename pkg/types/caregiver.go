package types

import "time"

// TransportationCapability represents how a caregiver gets to clients
type TransportationCapability struct {
	HasCar              bool `json:"has_car"`
	HasLicense          bool `json:"has_license"`
	UsesPublicTransport bool `json:"uses_public_transport"`
}

// Certification represents a professional certification held by a caregiver
type Certification struct {
	Name       string     `json:"name"`
	Issuer     string     `json:"issuer"`
	IssueDate  time.Time  `json:"issue_date"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}

// Caregiver represents a home-care worker
type Caregiver struct {
	ID              string                   `json:"id" db:"id"`
	Name            string                   `json:"name" db:"name"`
	Email           string                   `json:"email,omitempty" db:"email"`
	Phone           string                   `json:"phone,omitempty" db:"phone"`
	Address         Address                  `json:"address" db:"address"`
	Skills          []string                 `json:"skills" db:"skills"`
	Transportation  TransportationCapability `json:"transportation" db:"transportation"`
	YearsExperience int                      `json:"years_experience" db:"years_experience"`
	Certifications  []Certification          `json:"certifications,omitempty" db:"certifications"`
	Languages       []string                 `json:"languages,omitempty" db:"languages"`
	Gender          string                   `json:"gender,omitempty" db:"gender"`
	IsActive        bool                     `json:"is_active" db:"is_active"`
	CreatedAt       time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at" db:"updated_at"`
}

// HasSkill reports whether the caregiver lists the given skill
func (c *Caregiver) HasSkill(skill string) bool {
	for _, s := range c.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// SpeaksLanguage reports whether the caregiver lists the given language
func (c *Caregiver) SpeaksLanguage(lang string) bool {
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Validate checks caregiver invariants before persistence
func (c *Caregiver) Validate() error {
	if c.Name == "" {
		return NewValidationError(ErrCodeInvalidInput, "caregiver name is required", nil)
	}
	if c.YearsExperience < 0 {
		return NewValidationError(ErrCodeInvalidInput, "years of experience cannot be negative", nil)
	}
	return nil
}
