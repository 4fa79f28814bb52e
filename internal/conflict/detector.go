package conflict

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/carelink/homecare-scheduler/internal/matching"
	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

// DetectorConfig holds the tunable thresholds for conflict detection
type DetectorConfig struct {
	// TravelBufferMinutes is the minimum gap between back-to-back shifts
	TravelBufferMinutes int
	// MinutesPerMile scales the required buffer by approximate distance
	MinutesPerMile int
}

// Detector scans a schedule snapshot for structurally invalid states. The
// scan is deterministic and side-effect free: the same snapshot always
// yields the same conflict id set, enabling deduplication against
// already-open conflicts.
type Detector struct {
	cfg    DetectorConfig
	clock  func() time.Time
	logger *logger.Logger
}

// NewDetector creates a new conflict detector
func NewDetector(cfg DetectorConfig, now func() time.Time, log *logger.Logger) *Detector {
	return &Detector{cfg: cfg, clock: now, logger: log}
}

// Detect checks every shift pair once and emits conflicts with severity.
// Cancellation is honored between pairs; a cancelled scan returns no
// partial results.
func (d *Detector) Detect(ctx context.Context, shifts []*types.Shift, clients map[string]*types.Client, caregivers map[string]*types.Caregiver) ([]*types.Conflict, error) {
	var conflicts []*types.Conflict
	seen := make(map[string]bool)

	for i := 0; i < len(shifts); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(shifts); j++ {
			conflict, err := d.checkPair(shifts[i], shifts[j], clients)
			if err != nil {
				d.logger.WithError(err).Warnf("Skipping pair %s/%s with malformed times", shifts[i].ID, shifts[j].ID)
				continue
			}
			if conflict != nil && !seen[conflict.ID] {
				seen[conflict.ID] = true
				conflicts = append(conflicts, conflict)
			}
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ID < conflicts[j].ID })
	return conflicts, nil
}

// FindForShift scopes detection to pairs involving one shift
func (d *Detector) FindForShift(ctx context.Context, shiftID string, shifts []*types.Shift, clients map[string]*types.Client, caregivers map[string]*types.Caregiver) ([]*types.Conflict, error) {
	all, err := d.Detect(ctx, shifts, clients, caregivers)
	if err != nil {
		return nil, err
	}
	var scoped []*types.Conflict
	for _, c := range all {
		for _, id := range c.ShiftIDs {
			if id == shiftID {
				scoped = append(scoped, c)
				break
			}
		}
	}
	return scoped, nil
}

// checkPair applies the detection rules to one unordered shift pair
func (d *Detector) checkPair(a, b *types.Shift, clients map[string]*types.Client) (*types.Conflict, error) {
	if !a.Committed() && !b.Committed() {
		return nil, nil
	}
	if a.Status == types.ShiftCancelled || b.Status == types.ShiftCancelled {
		return nil, nil
	}
	if !types.SameDay(a.Date, b.Date) {
		return nil, nil
	}

	aStart, aEnd, err := a.Window()
	if err != nil {
		return nil, err
	}
	bStart, bEnd, err := b.Window()
	if err != nil {
		return nil, err
	}

	overlap := types.Overlaps(aStart, aEnd, bStart, bEnd)

	if overlap && a.Committed() && b.Committed() && a.CaregiverID == b.CaregiverID {
		return d.doubleBooking(a, b, aStart, aEnd, bStart, bEnd), nil
	}

	if overlap && a.ClientID == b.ClientID && a.Committed() && b.Committed() && a.CaregiverID != b.CaregiverID {
		return d.clientDoubleCoverage(a, b, aStart, aEnd, bStart, bEnd), nil
	}

	if !overlap && a.Committed() && b.Committed() && a.CaregiverID == b.CaregiverID {
		return d.travelTime(a, b, aStart, aEnd, bStart, bEnd, clients), nil
	}

	return nil, nil
}

// doubleBooking emits a high-severity conflict for one caregiver booked on
// two overlapping shifts. Severity scales 8-10 with the overlap fraction.
func (d *Detector) doubleBooking(a, b *types.Shift, aStart, aEnd, bStart, bEnd int) *types.Conflict {
	overlapMinutes := min(aEnd, bEnd) - max(aStart, bStart)
	shorter := min(aEnd-aStart, bEnd-bStart)
	fraction := float64(overlapMinutes) / float64(shorter)
	severity := 8 + int(math.Round(2*fraction))
	if severity > 10 {
		severity = 10
	}

	return &types.Conflict{
		ID:           types.ConflictID(types.ConflictDoubleBooking, a.ID, b.ID),
		ShiftIDs:     orderedPair(a, b),
		Type:         types.ConflictDoubleBooking,
		Severity:     severity,
		CaregiverIDs: []string{a.CaregiverID},
		Description: fmt.Sprintf("Caregiver %s is booked on overlapping shifts %s-%s and %s-%s on %s",
			a.CaregiverID, a.StartTime, a.EndTime, b.StartTime, b.EndTime, a.Date.Format("2006-01-02")),
		DetectedAt: d.clock(),
		Status:     types.ConflictPending,
	}
}

// clientDoubleCoverage emits a conflict for one client covered by two
// caregivers at once. Severity scales 6-8 with the overlap fraction.
func (d *Detector) clientDoubleCoverage(a, b *types.Shift, aStart, aEnd, bStart, bEnd int) *types.Conflict {
	overlapMinutes := min(aEnd, bEnd) - max(aStart, bStart)
	shorter := min(aEnd-aStart, bEnd-bStart)
	fraction := float64(overlapMinutes) / float64(shorter)
	severity := 6 + int(math.Round(2*fraction))
	if severity > 8 {
		severity = 8
	}

	return &types.Conflict{
		ID:           types.ConflictID(types.ConflictClientDoubleCoverage, a.ID, b.ID),
		ShiftIDs:     orderedPair(a, b),
		Type:         types.ConflictClientDoubleCoverage,
		Severity:     severity,
		ClientID:     a.ClientID,
		CaregiverIDs: []string{a.CaregiverID, b.CaregiverID},
		Description: fmt.Sprintf("Client %s has overlapping coverage from caregivers %s and %s on %s",
			a.ClientID, a.CaregiverID, b.CaregiverID, a.Date.Format("2006-01-02")),
		DetectedAt: d.clock(),
		Status:     types.ConflictPending,
	}
}

// travelTime emits a conflict when the gap between two same-caregiver
// shifts is below the travel buffer required by the client addresses'
// approximate distance. Severity scales 3-5 with the buffer deficit.
func (d *Detector) travelTime(a, b *types.Shift, aStart, aEnd, bStart, bEnd int, clients map[string]*types.Client) *types.Conflict {
	first, second := a, b
	gap := bStart - aEnd
	if aStart > bStart {
		first, second = b, a
		gap = aStart - bEnd
	}

	required := d.requiredTravelGap(clients[first.ClientID], clients[second.ClientID])

	if gap >= required {
		return nil
	}

	deficit := required - gap
	severity := 3 + int(math.Round(2*float64(deficit)/float64(required)))
	if severity > 5 {
		severity = 5
	}

	return &types.Conflict{
		ID:           types.ConflictID(types.ConflictTravelTimeInsufficient, a.ID, b.ID),
		ShiftIDs:     []string{first.ID, second.ID},
		Type:         types.ConflictTravelTimeInsufficient,
		Severity:     severity,
		CaregiverIDs: []string{a.CaregiverID},
		Description: fmt.Sprintf("Caregiver %s has only %d minutes between shifts %s and %s, %d required",
			a.CaregiverID, gap, first.ID, second.ID, required),
		DetectedAt: d.clock(),
		Status:     types.ConflictPending,
	}
}

// requiredTravelGap returns the minimum gap in minutes between consecutive
// shifts serving the two clients: the base travel buffer, raised by the
// approximate distance between their addresses. Resolution options must
// use the same requirement so a proposed shift actually clears the gap.
func (d *Detector) requiredTravelGap(first, second *types.Client) int {
	required := d.cfg.TravelBufferMinutes
	if first != nil && second != nil && first.ID != second.ID {
		distance := matching.ApproxDistanceMiles(first.Address, second.Address)
		byDistance := int(math.Ceil(distance * float64(d.cfg.MinutesPerMile)))
		if byDistance > required {
			required = byDistance
		}
	}
	return required
}

// orderedPair returns shift ids ordered by start time, then id
func orderedPair(a, b *types.Shift) []string {
	if a.StartTime < b.StartTime || (a.StartTime == b.StartTime && a.ID < b.ID) {
		return []string{a.ID, b.ID}
	}
	return []string{b.ID, a.ID}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
