package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/homecare-scheduler/internal/availability"
	"github.com/carelink/homecare-scheduler/internal/matching"
	"github.com/carelink/homecare-scheduler/internal/store"
	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type sinkStub struct{ sent []types.Notification }

func (s *sinkStub) Notify(n types.Notification) { s.sent = append(s.sent, n) }

func testServiceCriteria() types.MatchCriteria {
	return types.MatchCriteria{
		DistanceWeight:            3,
		SpecialtyWeight:           5,
		ClientPreferenceWeight:    3,
		CaregiverPreferenceWeight: 2,
		ExperienceWeight:          3,
		AvailabilityWeight:        5,
		MaxDistanceMiles:          25,
		MinCompatibilityScore:     60,
	}
}

func setupService(t *testing.T) (*Service, *store.Memory, *sinkStub) {
	t.Helper()
	repo := store.NewMemory()
	log := logger.New("error")
	resolver := availability.NewResolver(repo, log)
	clock := fixedClock{t: monday.Add(7 * time.Hour)}
	scorer := matching.NewScorer(resolver, clock, log)
	sink := &sinkStub{}
	svc := NewService(repo, testDetector(), resolver, scorer, testServiceCriteria(), sink, clock, log)
	return svc, repo, sink
}

func seedServiceCaregiver(t *testing.T, repo *store.Memory, id string, skills []string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateCaregiver(ctx, &types.Caregiver{
		ID:              id,
		Name:            "Caregiver " + id,
		Address:         types.Address{Line1: "1 Main St", City: "Dayton", State: "OH", Zip: "45402"},
		Skills:          skills,
		YearsExperience: 8,
		Languages:       []string{"English"},
		IsActive:        true,
	}))
	require.NoError(t, repo.PutAvailability(ctx, &types.Availability{
		CaregiverID: id,
		RegularSchedule: []types.RegularSlot{
			{DayOfWeek: 1, StartTime: "08:00", EndTime: "18:00", Recurrence: types.RecurrenceWeekly},
		},
	}))
}

func seedServiceClient(t *testing.T, repo *store.Memory, id string, needs ...string) {
	t.Helper()
	client := &types.Client{
		ID:            id,
		Name:          "Client " + id,
		Address:       types.Address{Line1: "2 Oak St", City: "Dayton", State: "OH", Zip: "45402"},
		ServiceStatus: types.ServiceStatusActive,
	}
	for _, need := range needs {
		client.CareNeeds = append(client.CareNeeds, types.CareNeed{Type: need, Priority: 1})
	}
	require.NoError(t, repo.CreateClient(context.Background(), client))
}

func seedShift(t *testing.T, repo *store.Memory, id, clientID, caregiverID, start, end string) {
	t.Helper()
	require.NoError(t, repo.CreateShift(context.Background(), committedShift(id, clientID, caregiverID, start, end)))
}

// seedDoubleBooking produces one caregiver booked on two overlapping shifts
// with a qualified alternate caregiver on the bench.
func seedDoubleBooking(t *testing.T, repo *store.Memory) {
	t.Helper()
	seedServiceClient(t, repo, "client-1", "personal_care")
	seedServiceClient(t, repo, "client-2", "personal_care")
	seedServiceCaregiver(t, repo, "cg-1", []string{"personal_care"})
	seedServiceCaregiver(t, repo, "cg-2", []string{"personal_care"})
	seedShift(t, repo, "shift-a", "client-1", "cg-1", "09:00", "11:00")
	seedShift(t, repo, "shift-b", "client-2", "cg-1", "10:00", "12:00")
}

func TestScan_PersistsAndDedupes(t *testing.T) {
	svc, repo, sink := setupService(t)
	ctx := context.Background()
	seedDoubleBooking(t, repo)

	created, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, types.ConflictDoubleBooking, created[0].Type)

	stored, err := repo.GetConflicts(ctx, types.ConflictPending)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	require.Len(t, sink.sent, 1)
	assert.Equal(t, "conflict_detected", sink.sent[0].Type)

	// Unchanged schedule: nothing new on rescan
	again, err := svc.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	stored, err = repo.GetConflicts(ctx, types.ConflictPending)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestScan_AfterOverrideReissuesConflict(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	seedDoubleBooking(t, repo)

	created, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)
	baseID := created[0].ID

	_, err = svc.OverrideResolve(ctx, types.OverrideRequest{
		ConflictID: baseID,
		UserID:     "supervisor-1",
		Reason:     "accepted for this week",
	})
	require.NoError(t, err)

	// The schedule is unchanged, so the condition still holds: the next
	// scan surfaces it again as a fresh pending conflict.
	reissued, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, reissued, 1)
	assert.Equal(t, baseID+".2", reissued[0].ID)
	assert.Equal(t, types.ConflictDoubleBooking, reissued[0].Type)
	assert.Equal(t, types.ConflictPending, reissued[0].Status)

	pending, err := repo.GetConflicts(ctx, types.ConflictPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, baseID+".2", pending[0].ID)

	// While the reissue is open, rescans stay quiet
	again, err := svc.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	// Overriding the reissue bumps the generation on the next scan
	_, err = svc.OverrideResolve(ctx, types.OverrideRequest{
		ConflictID: reissued[0].ID,
		UserID:     "supervisor-1",
		Reason:     "still accepted",
	})
	require.NoError(t, err)

	third, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, baseID+".3", third[0].ID)
}

func TestOptions_DoubleBooking(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	seedDoubleBooking(t, repo)

	created, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)

	options, err := svc.Options(ctx, created[0].ID)
	require.NoError(t, err)
	require.Len(t, options, 2)

	reassign := options[0]
	assert.Equal(t, types.ResolutionReassign, reassign.Kind)
	assert.Equal(t, types.ImpactLow, reassign.Impact)
	assert.Equal(t, "shift-b", reassign.TargetShiftID)
	assert.Equal(t, "cg-2", reassign.NewCaregiverID)

	reschedule := options[1]
	assert.Equal(t, types.ResolutionReschedule, reschedule.Kind)
	assert.Equal(t, types.ImpactMedium, reschedule.Impact)
	assert.Equal(t, "shift-b", reschedule.TargetShiftID)
	require.NotNil(t, reschedule.NewDate)
	// Monday-only schedule: the next free slot is a week out
	assert.Equal(t, monday.AddDate(0, 0, 7), *reschedule.NewDate)
	assert.Equal(t, "10:00", reschedule.NewStartTime)
	assert.Equal(t, "12:00", reschedule.NewEndTime)
}

func TestOptions_TravelTimeShiftStart(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	seedServiceClient(t, repo, "client-1", "personal_care")
	seedServiceClient(t, repo, "client-2", "personal_care")
	seedServiceCaregiver(t, repo, "cg-1", []string{"personal_care"})
	seedShift(t, repo, "shift-a", "client-1", "cg-1", "09:00", "11:00")
	seedShift(t, repo, "shift-b", "client-2", "cg-1", "11:10", "13:00")

	created, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, types.ConflictTravelTimeInsufficient, created[0].Type)

	options, err := svc.Options(ctx, created[0].ID)
	require.NoError(t, err)
	require.Len(t, options, 1)

	opt := options[0]
	assert.Equal(t, types.ResolutionShiftStart, opt.Kind)
	assert.Equal(t, "shift-b", opt.TargetShiftID)
	assert.Equal(t, "11:30", opt.NewStartTime)
	assert.Equal(t, "13:20", opt.NewEndTime)
}

func TestOptions_TravelTimeDistanceScaled(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	seedServiceClient(t, repo, "client-1", "personal_care")
	require.NoError(t, repo.CreateClient(ctx, &types.Client{
		ID:            "client-far",
		Name:          "Client client-far",
		Address:       types.Address{Line1: "9 Elm St", City: "Columbus", State: "OH", Zip: "43004"},
		ServiceStatus: types.ServiceStatusActive,
		CareNeeds:     []types.CareNeed{{Type: "personal_care", Priority: 1}},
	}))
	seedServiceCaregiver(t, repo, "cg-1", []string{"personal_care"})
	seedShift(t, repo, "shift-a", "client-1", "cg-1", "09:00", "11:00")
	seedShift(t, repo, "shift-b", "client-far", "cg-1", "12:00", "14:00")

	// Same-state heuristic distance is 40 miles at 2 min/mile: 80 minutes
	// required, only 60 in the gap, even though the base buffer is met.
	created, err := svc.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Equal(t, types.ConflictTravelTimeInsufficient, created[0].Type)

	options, err := svc.Options(ctx, created[0].ID)
	require.NoError(t, err)
	require.Len(t, options, 1)

	opt := options[0]
	assert.Equal(t, types.ResolutionShiftStart, opt.Kind)
	assert.Equal(t, "shift-b", opt.TargetShiftID)
	assert.Equal(t, "12:20", opt.NewStartTime)
	assert.Equal(t, "14:20", opt.NewEndTime)
}

func TestOptions_UnknownConflict(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Options(context.Background(), "missing")
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}

func TestResolve_ReassignHappyPath(t *testing.T) {
	svc, repo, sink := setupService(t)
	ctx := context.Background()
	seedDoubleBooking(t, repo)

	created, err := svc.Scan(ctx)
	require.NoError(t, err)
	options, err := svc.Options(ctx, created[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, options)
	require.Equal(t, types.ResolutionReassign, options[0].Kind)

	entry, err := svc.Resolve(ctx, types.ResolveRequest{
		ConflictID: created[0].ID,
		OptionID:   options[0].ID,
		ResolvedBy: "coordinator-1",
		Notes:      "swapping in the backup",
	})
	require.NoError(t, err)
	assert.Equal(t, types.MethodResolution, entry.Method)
	assert.Equal(t, "coordinator-1", entry.ResolvedBy)
	assert.Equal(t, options[0].ID, entry.OptionID)

	shift, err := repo.GetShiftByID(ctx, "shift-b")
	require.NoError(t, err)
	assert.Equal(t, "cg-2", shift.CaregiverID)
	assert.Equal(t, 2, shift.Version)

	conflict, err := repo.GetConflictByID(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ConflictResolved, conflict.Status)

	history, err := svc.History(ctx, created[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	// The snapshot records the state after the change
	var snapped *types.Shift
	for i := range history[0].ShiftSnapshot {
		if history[0].ShiftSnapshot[i].ID == "shift-b" {
			snapped = &history[0].ShiftSnapshot[i]
		}
	}
	require.NotNil(t, snapped)
	assert.Equal(t, "cg-2", snapped.CaregiverID)
	assert.Equal(t, 2, snapped.Version)

	// conflict_detected from the scan, then conflict_resolved
	require.Len(t, sink.sent, 2)
	assert.Equal(t, "conflict_resolved", sink.sent[1].Type)
}

func TestResolve_RequiresActor(t *testing.T) {
	svc, _, _ := setupService(t)

	_, err := svc.Resolve(context.Background(), types.ResolveRequest{ConflictID: "c1", OptionID: "o1"})
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestResolve_StaleOptionRejected(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	seedDoubleBooking(t, repo)

	created, err := svc.Scan(ctx)
	require.NoError(t, err)
	options, err := svc.Options(ctx, created[0].ID)
	require.NoError(t, err)
	require.Equal(t, types.ResolutionReassign, options[0].Kind)

	// The alternate takes the shift through another path; the offered
	// option can no longer be executed as stated.
	caregiverID := "cg-2"
	require.NoError(t, repo.UpdateShift(ctx, "shift-b", 1, &types.ShiftUpdates{CaregiverID: &caregiverID}))

	_, err = svc.Resolve(ctx, types.ResolveRequest{
		ConflictID: created[0].ID,
		OptionID:   options[0].ID,
		ResolvedBy: "coordinator-1",
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
	assert.Contains(t, err.Error(), "no longer executable")

	// Nothing was recorded
	history, err := svc.History(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestOverrideResolve_LeavesShiftsUntouched(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	seedDoubleBooking(t, repo)

	created, err := svc.Scan(ctx)
	require.NoError(t, err)

	entry, err := svc.OverrideResolve(ctx, types.OverrideRequest{
		ConflictID: created[0].ID,
		UserID:     "supervisor-1",
		Reason:     "client families agreed to the overlap",
	})
	require.NoError(t, err)
	assert.Equal(t, types.MethodOverride, entry.Method)
	assert.Equal(t, "supervisor-1", entry.ResolvedBy)
	assert.Equal(t, "client families agreed to the overlap", entry.Notes)

	for _, id := range []string{"shift-a", "shift-b"} {
		shift, err := repo.GetShiftByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, shift.Version)
		assert.Equal(t, "cg-1", shift.CaregiverID)
	}

	conflict, err := repo.GetConflictByID(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, types.ConflictResolved, conflict.Status)
}

func TestOverrideResolve_RequiresUserAndReason(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.OverrideResolve(ctx, types.OverrideRequest{ConflictID: "c1", Reason: "because"})
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))

	_, err = svc.OverrideResolve(ctx, types.OverrideRequest{ConflictID: "c1", UserID: "supervisor-1"})
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestResolvedConflictIsTerminal(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()
	seedDoubleBooking(t, repo)

	created, err := svc.Scan(ctx)
	require.NoError(t, err)

	_, err = svc.OverrideResolve(ctx, types.OverrideRequest{
		ConflictID: created[0].ID,
		UserID:     "supervisor-1",
		Reason:     "accepted as-is",
	})
	require.NoError(t, err)

	_, err = svc.Options(ctx, created[0].ID)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))

	_, err = svc.Resolve(ctx, types.ResolveRequest{
		ConflictID: created[0].ID,
		OptionID:   "anything",
		ResolvedBy: "coordinator-1",
	})
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))

	_, err = svc.OverrideResolve(ctx, types.OverrideRequest{
		ConflictID: created[0].ID,
		UserID:     "supervisor-1",
		Reason:     "again",
	})
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))

	// Exactly one history entry survives
	history, err := svc.History(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
