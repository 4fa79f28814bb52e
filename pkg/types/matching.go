package types

import (
	"encoding/json"
	"time"
)

// ManualScore is the JSON sentinel used for operator-chosen matches
const ManualScore = "manual"

// MatchCriteria configures a matching run. Weights are 1-5 integers;
// factor scores are compared on a 0-5 scale before weighting.
type MatchCriteria struct {
	DistanceWeight            int     `json:"distance_weight" mapstructure:"distance_weight"`
	SpecialtyWeight           int     `json:"specialty_weight" mapstructure:"specialty_weight"`
	ClientPreferenceWeight    int     `json:"client_preference_weight" mapstructure:"client_preference_weight"`
	CaregiverPreferenceWeight int     `json:"caregiver_preference_weight" mapstructure:"caregiver_preference_weight"`
	ExperienceWeight          int     `json:"experience_weight" mapstructure:"experience_weight"`
	AvailabilityWeight        int     `json:"availability_weight" mapstructure:"availability_weight"`
	ConsiderLanguage          bool    `json:"consider_language" mapstructure:"consider_language"`
	ConsiderGender            bool    `json:"consider_gender" mapstructure:"consider_gender"`
	ConsiderPastMatches       bool    `json:"consider_past_matches" mapstructure:"consider_past_matches"`
	MaxDistanceMiles          float64 `json:"max_distance_miles" mapstructure:"max_distance_miles"`
	MinCompatibilityScore     float64 `json:"min_compatibility_score" mapstructure:"min_compatibility_score"`
}

// Validate checks criteria bounds
func (c *MatchCriteria) Validate() error {
	weights := map[string]int{
		"distance_weight":             c.DistanceWeight,
		"specialty_weight":            c.SpecialtyWeight,
		"client_preference_weight":    c.ClientPreferenceWeight,
		"caregiver_preference_weight": c.CaregiverPreferenceWeight,
		"experience_weight":           c.ExperienceWeight,
		"availability_weight":         c.AvailabilityWeight,
	}
	for name, w := range weights {
		if w < 1 || w > 5 {
			return NewValidationError(ErrCodeInvalidInput, "criteria weights must be integers in [1..5]", map[string]interface{}{
				"weight": name,
				"value":  w,
			})
		}
	}
	if c.MaxDistanceMiles <= 0 {
		return NewValidationError(ErrCodeInvalidInput, "max distance must be positive", nil)
	}
	if c.MinCompatibilityScore < 0 || c.MinCompatibilityScore > 100 {
		return NewValidationError(ErrCodeInvalidInput, "min compatibility score must be in [0..100]", nil)
	}
	return nil
}

// MatchFactor is one scored compatibility dimension on a 0-5 scale
type MatchFactor struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Weight int     `json:"weight"`
}

// MatchResult represents a proposed (client, caregiver) pairing for a shift.
// Score is a 0-100 weighted aggregate, or the manual sentinel when the
// pairing was hand-picked by an operator.
type MatchResult struct {
	ClientID    string        `json:"client_id"`
	CaregiverID string        `json:"caregiver_id"`
	ShiftID     string        `json:"shift_id"`
	Score       float64       `json:"-"`
	Manual      bool          `json:"-"`
	Factors     []MatchFactor `json:"factors,omitempty"`
	MatchDate   time.Time     `json:"match_date"`
}

// FactorScore returns the score of the named factor, or 0 if absent
func (m *MatchResult) FactorScore(name string) float64 {
	for _, f := range m.Factors {
		if f.Name == name {
			return f.Score
		}
	}
	return 0
}

type matchResultJSON struct {
	ClientID    string          `json:"client_id"`
	CaregiverID string          `json:"caregiver_id"`
	ShiftID     string          `json:"shift_id"`
	Score       json.RawMessage `json:"score"`
	Factors     []MatchFactor   `json:"factors,omitempty"`
	MatchDate   time.Time       `json:"match_date"`
}

// MarshalJSON emits the numeric score, or "manual" for operator overrides
func (m MatchResult) MarshalJSON() ([]byte, error) {
	out := matchResultJSON{
		ClientID:    m.ClientID,
		CaregiverID: m.CaregiverID,
		ShiftID:     m.ShiftID,
		Factors:     m.Factors,
		MatchDate:   m.MatchDate,
	}
	var err error
	if m.Manual {
		out.Score, err = json.Marshal(ManualScore)
	} else {
		out.Score, err = json.Marshal(m.Score)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either a numeric score or the manual sentinel
func (m *MatchResult) UnmarshalJSON(data []byte) error {
	var in matchResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.ClientID = in.ClientID
	m.CaregiverID = in.CaregiverID
	m.ShiftID = in.ShiftID
	m.Factors = in.Factors
	m.MatchDate = in.MatchDate
	m.Manual = false
	m.Score = 0
	if len(in.Score) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(in.Score, &s); err == nil {
		if s != ManualScore {
			return NewValidationError(ErrCodeInvalidInput, "score must be numeric or \"manual\"", nil)
		}
		m.Manual = true
		return nil
	}
	return json.Unmarshal(in.Score, &m.Score)
}

// MatchFailure describes a candidate or shift excluded from a batch run
type MatchFailure struct {
	ShiftID     string `json:"shift_id,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	CaregiverID string `json:"caregiver_id,omitempty"`
	Reason      string `json:"reason"`
}

// MatchingHistoryEntry records a committed assignment so it can be reverted.
// Distinct from conflict resolution history.
type MatchingHistoryEntry struct {
	ID             string      `json:"id" db:"id"`
	ShiftID        string      `json:"shift_id" db:"shift_id"`
	ClientID       string      `json:"client_id" db:"client_id"`
	OldCaregiverID string      `json:"old_caregiver_id" db:"old_caregiver_id"`
	NewCaregiverID string      `json:"new_caregiver_id" db:"new_caregiver_id"`
	OldStatus      ShiftStatus `json:"old_status" db:"old_status"`
	Manual         bool        `json:"manual" db:"manual"`
	AppliedBy      string      `json:"applied_by" db:"applied_by"`
	AppliedAt      time.Time   `json:"applied_at" db:"applied_at"`
	Reverted       bool        `json:"reverted" db:"reverted"`
	RevertedAt     *time.Time  `json:"reverted_at,omitempty" db:"reverted_at"`
	RevertedBy     string      `json:"reverted_by,omitempty" db:"reverted_by"`
}
