package matching

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/homecare-scheduler/internal/availability"
	"github.com/carelink/homecare-scheduler/internal/store"
	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

type sinkStub struct {
	notifications []types.Notification
}

func (s *sinkStub) Notify(n types.Notification) {
	s.notifications = append(s.notifications, n)
}

// gatedRepo blocks the first GetShifts until released, to hold a matching
// run open while a second one is attempted
type gatedRepo struct {
	*store.Memory
	entered  chan struct{}
	released chan struct{}
	once     sync.Once
}

func (g *gatedRepo) GetShifts(ctx context.Context, filters *types.ShiftFilters) ([]*types.Shift, error) {
	g.once.Do(func() {
		g.entered <- struct{}{}
		<-g.released
	})
	return g.Memory.GetShifts(ctx, filters)
}

func setupOrchestrator(t *testing.T) (*Orchestrator, *store.Memory, *sinkStub) {
	t.Helper()
	repo := store.NewMemory()
	log := logger.New("error")
	resolver := availability.NewResolver(repo, log)
	scorer := NewScorer(resolver, fixedClock{monday}, log)
	sink := &sinkStub{}
	return NewOrchestrator(repo, scorer, sink, fixedClock{monday}, log), repo, sink
}

func seedMatchableShift(t *testing.T, repo *store.Memory) *types.Shift {
	t.Helper()
	seedMatchClient(t, repo, "client-1", "dementia_care")
	seedMatchCaregiver(t, repo, "cg-1", []string{"dementia_care"}, 8)
	shift := testShift("client-1")
	require.NoError(t, repo.CreateShift(context.Background(), shift))
	return shift
}

func TestRun_AssignsBestCaregiver(t *testing.T) {
	orchestrator, repo, _ := setupOrchestrator(t)
	seedMatchableShift(t, repo)
	seedMatchCaregiver(t, repo, "cg-2", []string{"dementia_care"}, 2)

	results, failures, err := orchestrator.Run(context.Background(), testCriteria())
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, results, 1)
	// cg-1 has more experience and wins
	assert.Equal(t, "cg-1", results[0].CaregiverID)
	assert.Equal(t, "shift-1", results[0].ShiftID)
}

func TestRun_NoQualifyingCaregiverOmitsShift(t *testing.T) {
	orchestrator, repo, _ := setupOrchestrator(t)
	seedMatchClient(t, repo, "client-1", "dementia_care")
	shift := testShift("client-1")
	require.NoError(t, repo.CreateShift(context.Background(), shift))

	results, failures, err := orchestrator.Run(context.Background(), testCriteria())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, failures)
}

func TestRun_InactiveClientSkipped(t *testing.T) {
	orchestrator, repo, _ := setupOrchestrator(t)
	shift := seedMatchableShift(t, repo)

	client, err := repo.GetClientByID(context.Background(), shift.ClientID)
	require.NoError(t, err)
	client.ServiceStatus = types.ServiceStatusInactive
	require.NoError(t, repo.UpdateClient(context.Background(), client))

	results, failures, err := orchestrator.Run(context.Background(), testCriteria())
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, failures)
}

func TestRun_MissingClientItemizedAsFailure(t *testing.T) {
	orchestrator, repo, _ := setupOrchestrator(t)
	seedMatchableShift(t, repo)
	// Second shift references a client that does not exist
	require.NoError(t, repo.CreateShift(context.Background(), &types.Shift{
		ID: "shift-orphan", ClientID: "client-missing",
		Date: monday, StartTime: "13:00", EndTime: "15:00",
		Status: types.ShiftNeedsAssignment,
	}))

	results, failures, err := orchestrator.Run(context.Background(), testCriteria())
	require.NoError(t, err)
	assert.Len(t, results, 1)
	require.Len(t, failures, 1)
	assert.Equal(t, "shift-orphan", failures[0].ShiftID)
}

func TestRun_InvalidCriteria(t *testing.T) {
	orchestrator, _, _ := setupOrchestrator(t)
	criteria := testCriteria()
	criteria.SpecialtyWeight = 0

	_, _, err := orchestrator.Run(context.Background(), criteria)
	assert.Error(t, err)
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestRun_SingleFlight(t *testing.T) {
	repo := store.NewMemory()
	log := logger.New("error")
	resolver := availability.NewResolver(repo, log)
	scorer := NewScorer(resolver, fixedClock{monday}, log)
	gated := &gatedRepo{
		Memory:   repo,
		entered:  make(chan struct{}),
		released: make(chan struct{}),
	}
	orchestrator := NewOrchestrator(gated, scorer, &sinkStub{}, fixedClock{monday}, log)

	done := make(chan error, 1)
	go func() {
		_, _, err := orchestrator.Run(context.Background(), testCriteria())
		done <- err
	}()

	// Wait until the first run is inside the repository read
	<-gated.entered

	_, _, err := orchestrator.Run(context.Background(), testCriteria())
	assert.True(t, types.IsErrorType(err, types.ErrorTypeMatchingInProgress))

	close(gated.released)
	require.NoError(t, <-done)

	// The slot frees up once the first run finishes
	_, _, err = orchestrator.Run(context.Background(), testCriteria())
	assert.NoError(t, err)
}

func TestOverride_ManualMatch(t *testing.T) {
	orchestrator, repo, _ := setupOrchestrator(t)
	seedMatchableShift(t, repo)

	match, err := orchestrator.Override(context.Background(), "shift-1", "cg-1")
	require.NoError(t, err)
	assert.True(t, match.Manual)
	assert.Equal(t, "cg-1", match.CaregiverID)
	assert.Equal(t, "client-1", match.ClientID)
}

func TestOverride_UnknownShift(t *testing.T) {
	orchestrator, _, _ := setupOrchestrator(t)
	_, err := orchestrator.Override(context.Background(), "no-such-shift", "cg-1")
	assert.True(t, types.IsErrorType(err, types.ErrorTypeNotFound))
}

func TestApply_CommitsAssignmentWithHistory(t *testing.T) {
	orchestrator, repo, sink := setupOrchestrator(t)
	seedMatchableShift(t, repo)

	match := types.MatchResult{ClientID: "client-1", CaregiverID: "cg-1", ShiftID: "shift-1", Score: 80}
	historyIDs, failures, err := orchestrator.Apply(context.Background(), []types.MatchResult{match}, "coordinator-1")
	require.NoError(t, err)
	assert.Empty(t, failures)
	require.Len(t, historyIDs, 1)

	shift, err := repo.GetShiftByID(context.Background(), "shift-1")
	require.NoError(t, err)
	assert.Equal(t, "cg-1", shift.CaregiverID)
	assert.Equal(t, types.ShiftAssigned, shift.Status)
	assert.Equal(t, 2, shift.Version)

	entry, err := repo.GetMatchingHistoryByID(context.Background(), historyIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "", entry.OldCaregiverID)
	assert.Equal(t, types.ShiftNeedsAssignment, entry.OldStatus)
	assert.False(t, entry.Reverted)

	assert.NotEmpty(t, sink.notifications)
}

func TestApply_RequiresActor(t *testing.T) {
	orchestrator, _, _ := setupOrchestrator(t)
	_, _, err := orchestrator.Apply(context.Background(), []types.MatchResult{{ShiftID: "s", CaregiverID: "c"}}, "")
	assert.True(t, types.IsErrorType(err, types.ErrorTypeValidation))
}

func TestApply_ItemizesPartialFailures(t *testing.T) {
	orchestrator, repo, _ := setupOrchestrator(t)
	seedMatchableShift(t, repo)

	matches := []types.MatchResult{
		{ClientID: "client-1", CaregiverID: "cg-1", ShiftID: "shift-1", Score: 80},
		{CaregiverID: "cg-1", ShiftID: "no-such-shift"},
		{ShiftID: ""},
	}
	historyIDs, failures, err := orchestrator.Apply(context.Background(), matches, "coordinator-1")
	require.NoError(t, err)
	assert.Len(t, historyIDs, 1)
	assert.Len(t, failures, 2)
}

func TestRevert_RestoresPriorState(t *testing.T) {
	orchestrator, repo, _ := setupOrchestrator(t)
	seedMatchableShift(t, repo)

	match := types.MatchResult{ClientID: "client-1", CaregiverID: "cg-1", ShiftID: "shift-1", Score: 80}
	historyIDs, _, err := orchestrator.Apply(context.Background(), []types.MatchResult{match}, "coordinator-1")
	require.NoError(t, err)
	require.Len(t, historyIDs, 1)

	require.NoError(t, orchestrator.Revert(context.Background(), historyIDs[0], "coordinator-2"))

	shift, err := repo.GetShiftByID(context.Background(), "shift-1")
	require.NoError(t, err)
	assert.Equal(t, "", shift.CaregiverID)
	assert.Equal(t, types.ShiftNeedsAssignment, shift.Status)

	entry, err := repo.GetMatchingHistoryByID(context.Background(), historyIDs[0])
	require.NoError(t, err)
	assert.True(t, entry.Reverted)
	assert.Equal(t, "coordinator-2", entry.RevertedBy)
}

func TestRevert_Idempotent(t *testing.T) {
	orchestrator, repo, _ := setupOrchestrator(t)
	seedMatchableShift(t, repo)

	match := types.MatchResult{ClientID: "client-1", CaregiverID: "cg-1", ShiftID: "shift-1", Score: 80}
	historyIDs, _, err := orchestrator.Apply(context.Background(), []types.MatchResult{match}, "coordinator-1")
	require.NoError(t, err)

	require.NoError(t, orchestrator.Revert(context.Background(), historyIDs[0], "coordinator-2"))

	shiftAfterFirst, err := repo.GetShiftByID(context.Background(), "shift-1")
	require.NoError(t, err)

	// Second revert is a reported success with no further effect
	require.NoError(t, orchestrator.Revert(context.Background(), historyIDs[0], "coordinator-2"))

	shiftAfterSecond, err := repo.GetShiftByID(context.Background(), "shift-1")
	require.NoError(t, err)
	assert.Equal(t, shiftAfterFirst.Version, shiftAfterSecond.Version)
}
