package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchResult_MarshalNumericScore(t *testing.T) {
	result := MatchResult{
		ClientID:    "client-1",
		CaregiverID: "cg-1",
		ShiftID:     "shift-1",
		Score:       87.5,
		MatchDate:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, 87.5, raw["score"])
}

func TestMatchResult_MarshalManualSentinel(t *testing.T) {
	result := MatchResult{
		ClientID:    "client-1",
		CaregiverID: "cg-1",
		ShiftID:     "shift-1",
		Manual:      true,
		MatchDate:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "manual", raw["score"])
}

func TestMatchResult_UnmarshalRoundTrip(t *testing.T) {
	original := MatchResult{
		ClientID:    "client-1",
		CaregiverID: "cg-2",
		ShiftID:     "shift-3",
		Manual:      true,
		MatchDate:   time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded MatchResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Manual)
	assert.Equal(t, original.CaregiverID, decoded.CaregiverID)

	// Numeric scores survive too
	original.Manual = false
	original.Score = 62.5
	data, err = json.Marshal(original)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.False(t, decoded.Manual)
	assert.Equal(t, 62.5, decoded.Score)
}

func TestMatchResult_UnmarshalRejectsUnknownString(t *testing.T) {
	var decoded MatchResult
	err := json.Unmarshal([]byte(`{"client_id":"c","caregiver_id":"g","shift_id":"s","score":"great"}`), &decoded)
	assert.Error(t, err)
}

func TestMatchCriteria_Validate(t *testing.T) {
	criteria := MatchCriteria{
		DistanceWeight:            3,
		SpecialtyWeight:           5,
		ClientPreferenceWeight:    3,
		CaregiverPreferenceWeight: 2,
		ExperienceWeight:          3,
		AvailabilityWeight:        5,
		MaxDistanceMiles:          25,
		MinCompatibilityScore:     60,
	}
	assert.NoError(t, criteria.Validate())

	bad := criteria
	bad.SpecialtyWeight = 0
	assert.Error(t, bad.Validate())

	bad = criteria
	bad.DistanceWeight = 6
	assert.Error(t, bad.Validate())

	bad = criteria
	bad.MaxDistanceMiles = 0
	assert.Error(t, bad.Validate())

	bad = criteria
	bad.MinCompatibilityScore = 101
	assert.Error(t, bad.Validate())
}

func TestMatchResult_FactorScore(t *testing.T) {
	result := MatchResult{
		Factors: []MatchFactor{
			{Name: "specialty", Score: 4, Weight: 5},
			{Name: "distance", Score: 2.5, Weight: 3},
		},
	}
	assert.Equal(t, 4.0, result.FactorScore("specialty"))
	assert.Equal(t, 2.5, result.FactorScore("distance"))
	assert.Equal(t, 0.0, result.FactorScore("missing"))
}
