package matching

import (
	"context"
	"math"
	"sort"

	"github.com/carelink/homecare-scheduler/pkg/interfaces"
	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

// Factor names reported on match results
const (
	FactorSpecialty           = "specialty"
	FactorDistance            = "distance"
	FactorExperience          = "experience"
	FactorAvailability        = "availability"
	FactorClientPreference    = "client_preference"
	FactorCaregiverPreference = "caregiver_preference"
)

// Scorer computes weighted compatibility scores between clients and
// caregivers. Each factor is scored 0-5, then combined as
// 100 * sum(factor/5 * weight) / sum(weights), clamped to [0,100].
type Scorer struct {
	resolver interfaces.AvailabilityResolver
	clock    interfaces.Clock
	logger   *logger.Logger
}

// NewScorer creates a new match scorer
func NewScorer(resolver interfaces.AvailabilityResolver, clock interfaces.Clock, log *logger.Logger) *Scorer {
	return &Scorer{resolver: resolver, clock: clock, logger: log}
}

// Score computes the compatibility of one caregiver for a client's shift.
// The second return value is false when the caregiver must be excluded from
// the candidate set entirely: failing availability (a hard factor) or
// scoring below the minimum compatibility threshold.
func (s *Scorer) Score(ctx context.Context, client *types.Client, caregiver *types.Caregiver, shift *types.Shift, criteria types.MatchCriteria) (types.MatchResult, bool, error) {
	opts := interfaces.AvailabilityOptions{RequiresCar: client.Transportation.RequiresDriverCaregiver}
	available, _, err := s.resolver.IsAvailable(ctx, caregiver.ID, shift.Date, shift.StartTime, shift.EndTime, opts)
	if err != nil {
		return types.MatchResult{}, false, err
	}

	availabilityScore := 0.0
	if available {
		availabilityScore = 5
	}

	factors := []types.MatchFactor{
		{Name: FactorSpecialty, Score: specialtyFactor(client, caregiver), Weight: criteria.SpecialtyWeight},
		{Name: FactorDistance, Score: distanceFactor(client, caregiver, criteria.MaxDistanceMiles), Weight: criteria.DistanceWeight},
		{Name: FactorExperience, Score: experienceFactor(caregiver.YearsExperience), Weight: criteria.ExperienceWeight},
		{Name: FactorAvailability, Score: availabilityScore, Weight: criteria.AvailabilityWeight},
		{Name: FactorClientPreference, Score: clientPreferenceFactor(client, caregiver, criteria), Weight: criteria.ClientPreferenceWeight},
		{Name: FactorCaregiverPreference, Score: caregiverPreferenceFactor(client, caregiver, criteria), Weight: criteria.CaregiverPreferenceWeight},
	}

	result := types.MatchResult{
		ClientID:    client.ID,
		CaregiverID: caregiver.ID,
		ShiftID:     shift.ID,
		Score:       overallScore(factors),
		Factors:     factors,
		MatchDate:   s.clock.Now(),
	}

	// Availability is a hard factor: an unavailable caregiver is not a
	// candidate at all, the factor exists for transparency only.
	if !available {
		return result, false, nil
	}
	if result.Score < criteria.MinCompatibilityScore {
		return result, false, nil
	}
	return result, true, nil
}

// overallScore combines 0-5 factor scores into a 0-100 weighted aggregate
func overallScore(factors []types.MatchFactor) float64 {
	var weighted, totalWeight float64
	for _, f := range factors {
		weighted += f.Score / 5 * float64(f.Weight)
		totalWeight += float64(f.Weight)
	}
	if totalWeight == 0 {
		return 0
	}
	score := 100 * weighted / totalWeight
	return math.Max(0, math.Min(100, score))
}

// specialtyFactor scores the fraction of care needs covered by the
// caregiver's skills, scaled to 0-5. No care needs counts as a full match.
func specialtyFactor(client *types.Client, caregiver *types.Caregiver) float64 {
	if len(client.CareNeeds) == 0 {
		return 5
	}
	matched := 0
	for _, need := range client.CareNeeds {
		if caregiver.HasSkill(need.Type) {
			matched++
		}
	}
	fraction := float64(matched) / float64(len(client.CareNeeds))
	return math.Round(fraction * 5)
}

// distanceFactor scales distance linearly from 5 (close) to 1 (at the max
// distance threshold); beyond the threshold scores 0.
func distanceFactor(client *types.Client, caregiver *types.Caregiver, maxDistance float64) float64 {
	distance := ApproxDistanceMiles(client.Address, caregiver.Address)
	if distance > maxDistance {
		return 0
	}
	return 5 - 4*(distance/maxDistance)
}

// experienceFactor maps years of experience onto the 0-5 scale:
// under 2 years scores 1, 10+ years scores 5, linear between.
func experienceFactor(years int) float64 {
	switch {
	case years >= 10:
		return 5
	case years < 2:
		return 1
	default:
		return 1 + 4*float64(years-2)/8
	}
}

// clientPreferenceFactor scores how well the caregiver fits the client's
// stated preferences. Match scores 5, mismatch 1, unspecified a neutral 3.
func clientPreferenceFactor(client *types.Client, caregiver *types.Caregiver, criteria types.MatchCriteria) float64 {
	var scores []float64

	if criteria.ConsiderLanguage && client.PreferredLanguage != "" {
		if caregiver.SpeaksLanguage(client.PreferredLanguage) {
			scores = append(scores, 5)
		} else {
			scores = append(scores, 1)
		}
	}
	if criteria.ConsiderGender && client.PreferredGender != "" {
		if caregiver.Gender == client.PreferredGender {
			scores = append(scores, 5)
		} else {
			scores = append(scores, 1)
		}
	}

	if len(scores) == 0 {
		return 3
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	return sum / float64(len(scores))
}

// caregiverPreferenceFactor is neutral unless the caregiver's transport
// situation clashes with the client's transportation needs.
func caregiverPreferenceFactor(client *types.Client, caregiver *types.Caregiver, criteria types.MatchCriteria) float64 {
	if client.Transportation.RequiresDriverCaregiver && !caregiver.Transportation.HasLicense {
		return 1
	}
	return 3
}

// SortResults orders results by score descending, then experience factor
// descending, then caregiver id ascending, for stable reproducible output.
func SortResults(results []types.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ei, ej := results[i].FactorScore(FactorExperience), results[j].FactorScore(FactorExperience)
		if ei != ej {
			return ei > ej
		}
		return results[i].CaregiverID < results[j].CaregiverID
	})
}
