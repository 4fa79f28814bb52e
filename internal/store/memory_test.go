package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/homecare-scheduler/pkg/types"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func storedShift(id, clientID, caregiverID string, date time.Time, start, end string) *types.Shift {
	return &types.Shift{
		ID:          id,
		ClientID:    clientID,
		CaregiverID: caregiverID,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		Status:      types.ShiftAssigned,
	}
}

func TestMemory_ClientRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	client := &types.Client{ID: "client-1", Name: "Ada", ServiceStatus: types.ServiceStatusActive}
	require.NoError(t, m.CreateClient(ctx, client))

	err := m.CreateClient(ctx, client)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))

	got, err := m.GetClientByID(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)

	// Reads hand out copies, not store internals
	got.Name = "changed"
	again, err := m.GetClientByID(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Name)

	inactive := &types.Client{ID: "client-2", Name: "Ben", ServiceStatus: types.ServiceStatusInactive}
	require.NoError(t, m.CreateClient(ctx, inactive))

	active, err := m.GetClients(ctx, types.ServiceStatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "client-1", active[0].ID)

	all, err := m.GetClients(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, m.DeleteClient(ctx, "client-1"))
	_, err = m.GetClientByID(ctx, "client-1")
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}

func TestMemory_AvailabilityDefaultsEmpty(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.GetAvailability(ctx, "nobody")
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))

	require.NoError(t, m.CreateCaregiver(ctx, &types.Caregiver{ID: "cg-1", Name: "Cae", IsActive: true}))

	avail, err := m.GetAvailability(ctx, "cg-1")
	require.NoError(t, err)
	assert.Equal(t, "cg-1", avail.CaregiverID)
	assert.Empty(t, avail.RegularSchedule)

	require.NoError(t, m.PutAvailability(ctx, &types.Availability{
		CaregiverID: "cg-1",
		RegularSchedule: []types.RegularSlot{
			{DayOfWeek: 1, StartTime: "08:00", EndTime: "16:00", Recurrence: types.RecurrenceWeekly},
		},
	}))
	avail, err = m.GetAvailability(ctx, "cg-1")
	require.NoError(t, err)
	assert.Len(t, avail.RegularSchedule, 1)

	// Deleting the caregiver takes the availability record with it
	require.NoError(t, m.DeleteCaregiver(ctx, "cg-1"))
	_, err = m.GetAvailability(ctx, "cg-1")
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}

func TestMemory_CreateShiftDefaultsVersion(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateShift(ctx, storedShift("shift-1", "client-1", "cg-1", monday, "09:00", "11:00")))

	shift, err := m.GetShiftByID(ctx, "shift-1")
	require.NoError(t, err)
	assert.Equal(t, 1, shift.Version)
}

func TestMemory_UpdateShiftVersioned(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateShift(ctx, storedShift("shift-1", "client-1", "cg-1", monday, "09:00", "11:00")))

	caregiverID := "cg-2"
	require.NoError(t, m.UpdateShift(ctx, "shift-1", 1, &types.ShiftUpdates{CaregiverID: &caregiverID}))

	shift, err := m.GetShiftByID(ctx, "shift-1")
	require.NoError(t, err)
	assert.Equal(t, "cg-2", shift.CaregiverID)
	assert.Equal(t, 2, shift.Version)

	// Repeating the same expected version is now stale
	err = m.UpdateShift(ctx, "shift-1", 1, &types.ShiftUpdates{CaregiverID: &caregiverID})
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConcurrency))

	unchanged, err := m.GetShiftByID(ctx, "shift-1")
	require.NoError(t, err)
	assert.Equal(t, 2, unchanged.Version)

	err = m.UpdateShift(ctx, "missing", 1, &types.ShiftUpdates{CaregiverID: &caregiverID})
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}

func TestMemory_GetShiftsFiltersAndOrders(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tuesday := monday.AddDate(0, 0, 1)

	require.NoError(t, m.CreateShift(ctx, storedShift("shift-c", "client-1", "cg-1", tuesday, "09:00", "11:00")))
	require.NoError(t, m.CreateShift(ctx, storedShift("shift-b", "client-1", "cg-2", monday, "13:00", "15:00")))
	require.NoError(t, m.CreateShift(ctx, storedShift("shift-a", "client-2", "cg-1", monday, "09:00", "11:00")))

	all, err := m.GetShifts(ctx, &types.ShiftFilters{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "shift-a", all[0].ID)
	assert.Equal(t, "shift-b", all[1].ID)
	assert.Equal(t, "shift-c", all[2].ID)

	byCaregiver, err := m.GetShifts(ctx, &types.ShiftFilters{CaregiverID: "cg-1"})
	require.NoError(t, err)
	require.Len(t, byCaregiver, 2)
	assert.Equal(t, "shift-a", byCaregiver[0].ID)
	assert.Equal(t, "shift-c", byCaregiver[1].ID)

	byDay, err := m.GetShifts(ctx, &types.ShiftFilters{FromDate: monday, ToDate: monday})
	require.NoError(t, err)
	assert.Len(t, byDay, 2)

	paged, err := m.GetShifts(ctx, &types.ShiftFilters{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "shift-b", paged[0].ID)

	past, err := m.GetShifts(ctx, &types.ShiftFilters{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestMemory_GetCaregiverShifts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.CreateShift(ctx, storedShift("shift-a", "client-1", "cg-1", monday, "09:00", "11:00")))
	require.NoError(t, m.CreateShift(ctx, storedShift("shift-b", "client-1", "cg-1", monday.AddDate(0, 0, 1), "09:00", "11:00")))

	shifts, err := m.GetCaregiverShifts(ctx, "cg-1", monday)
	require.NoError(t, err)
	require.Len(t, shifts, 1)
	assert.Equal(t, "shift-a", shifts[0].ID)
}

func seedPendingConflict(t *testing.T, m *Memory) *types.Conflict {
	t.Helper()
	conflict := &types.Conflict{
		ID:       "conf-1",
		Type:     types.ConflictDoubleBooking,
		ShiftIDs: []string{"shift-a", "shift-b"},
		Severity: 9,
		Status:   types.ConflictPending,
	}
	require.NoError(t, m.CreateConflict(context.Background(), conflict))
	return conflict
}

func TestMemory_ApplyResolution(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateShift(ctx, storedShift("shift-a", "client-1", "cg-1", monday, "09:00", "11:00")))
	require.NoError(t, m.CreateShift(ctx, storedShift("shift-b", "client-2", "cg-1", monday, "10:00", "12:00")))
	seedPendingConflict(t, m)

	caregiverID := "cg-2"
	entry := &types.ResolutionHistoryEntry{
		ID:         "hist-1",
		ConflictID: "conf-1",
		Method:     types.MethodResolution,
		ResolvedBy: "coordinator-1",
		ResolvedAt: monday.Add(9 * time.Hour),
	}
	changes := []types.ShiftChange{{
		ShiftID:         "shift-b",
		ExpectedVersion: 1,
		Updates:         types.ShiftUpdates{CaregiverID: &caregiverID},
	}}
	require.NoError(t, m.ApplyResolution(ctx, "conf-1", changes, entry))

	shift, err := m.GetShiftByID(ctx, "shift-b")
	require.NoError(t, err)
	assert.Equal(t, "cg-2", shift.CaregiverID)
	assert.Equal(t, 2, shift.Version)

	conflict, err := m.GetConflictByID(ctx, "conf-1")
	require.NoError(t, err)
	assert.Equal(t, types.ConflictResolved, conflict.Status)
	require.NotNil(t, conflict.ResolvedAt)
	assert.Equal(t, entry.ResolvedAt, *conflict.ResolvedAt)

	history, err := m.GetResolutionHistory(ctx, "conf-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hist-1", history[0].ID)

	// Terminal state rejects any further resolution
	err = m.ApplyResolution(ctx, "conf-1", nil, entry)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))
}

func TestMemory_ApplyResolutionRollsBack(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.CreateShift(ctx, storedShift("shift-a", "client-1", "cg-1", monday, "09:00", "11:00")))
	require.NoError(t, m.CreateShift(ctx, storedShift("shift-b", "client-2", "cg-1", monday, "10:00", "12:00")))
	seedPendingConflict(t, m)

	caregiverID := "cg-2"
	entry := &types.ResolutionHistoryEntry{ID: "hist-1", ConflictID: "conf-1", ResolvedAt: monday}
	changes := []types.ShiftChange{
		{ShiftID: "shift-a", ExpectedVersion: 1, Updates: types.ShiftUpdates{CaregiverID: &caregiverID}},
		{ShiftID: "shift-b", ExpectedVersion: 7, Updates: types.ShiftUpdates{CaregiverID: &caregiverID}},
	}

	err := m.ApplyResolution(ctx, "conf-1", changes, entry)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConcurrency))

	// The first change was rolled back with the failure of the second
	shiftA, err := m.GetShiftByID(ctx, "shift-a")
	require.NoError(t, err)
	assert.Equal(t, "cg-1", shiftA.CaregiverID)
	assert.Equal(t, 1, shiftA.Version)

	conflict, err := m.GetConflictByID(ctx, "conf-1")
	require.NoError(t, err)
	assert.Equal(t, types.ConflictPending, conflict.Status)

	history, err := m.GetResolutionHistory(ctx, "conf-1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemory_MatchingHistoryRevert(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	entry := &types.MatchingHistoryEntry{ID: "mh-1", ShiftID: "shift-1", NewCaregiverID: "cg-1"}
	require.NoError(t, m.CreateMatchingHistory(ctx, entry))

	err := m.CreateMatchingHistory(ctx, entry)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeConflict))

	revertedAt := monday.Add(10 * time.Hour)
	require.NoError(t, m.MarkMatchingHistoryReverted(ctx, "mh-1", "coordinator-1", revertedAt))

	got, err := m.GetMatchingHistoryByID(ctx, "mh-1")
	require.NoError(t, err)
	assert.True(t, got.Reverted)
	assert.Equal(t, "coordinator-1", got.RevertedBy)
	require.NotNil(t, got.RevertedAt)
	assert.Equal(t, revertedAt, *got.RevertedAt)

	err = m.MarkMatchingHistoryReverted(ctx, "missing", "coordinator-1", revertedAt)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}
