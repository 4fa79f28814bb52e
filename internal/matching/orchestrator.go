package matching

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/homecare-scheduler/pkg/interfaces"
	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/monitoring"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

// Orchestrator runs batch matching sessions across unassigned shifts and
// commits accepted matches with reversible history. Sessions are
// single-flight: a second Run while one is in progress fails fast.
type Orchestrator struct {
	repo     interfaces.CareRepository
	scorer   *Scorer
	notifier interfaces.NotificationSink
	clock    interfaces.Clock
	logger   *logger.Logger
	running  atomic.Bool
}

// NewOrchestrator creates a new matching orchestrator
func NewOrchestrator(repo interfaces.CareRepository, scorer *Scorer, notifier interfaces.NotificationSink, clock interfaces.Clock, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		scorer:   scorer,
		notifier: notifier,
		clock:    clock,
		logger:   log,
	}
}

// Run scores all eligible (client, caregiver) pairs for the current batch of
// unassigned shifts and returns the best qualifying match per shift. Shifts
// with no qualifying caregiver are omitted, not errored. Individual scoring
// failures skip that candidate and are reported in the failure list.
func (o *Orchestrator) Run(ctx context.Context, criteria types.MatchCriteria) ([]types.MatchResult, []types.MatchFailure, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, nil, types.NewMatchingInProgressError()
	}
	defer o.running.Store(false)

	start := o.clock.Now()

	if err := criteria.Validate(); err != nil {
		monitoring.RecordMatchingRun("invalid", time.Since(start))
		return nil, nil, err
	}

	shifts, err := o.repo.GetShifts(ctx, &types.ShiftFilters{Status: types.ShiftNeedsAssignment})
	if err != nil {
		monitoring.RecordMatchingRun("failed", time.Since(start))
		return nil, nil, err
	}

	caregivers, err := o.repo.GetCaregivers(ctx, true)
	if err != nil {
		monitoring.RecordMatchingRun("failed", time.Since(start))
		return nil, nil, err
	}

	o.logger.Infof("Matching run started: %d unassigned shifts, %d caregivers", len(shifts), len(caregivers))

	var results []types.MatchResult
	var failures []types.MatchFailure

	for _, shift := range shifts {
		if err := ctx.Err(); err != nil {
			monitoring.RecordMatchingRun("cancelled", time.Since(start))
			return nil, nil, err
		}

		client, err := o.repo.GetClientByID(ctx, shift.ClientID)
		if err != nil {
			o.logger.WithError(err).Warnf("Skipping shift %s: client %s unavailable", shift.ID, shift.ClientID)
			failures = append(failures, types.MatchFailure{
				ShiftID:  shift.ID,
				ClientID: shift.ClientID,
				Reason:   fmt.Sprintf("client lookup failed: %v", err),
			})
			continue
		}
		if client.ServiceStatus != types.ServiceStatusActive {
			continue
		}

		var candidates []types.MatchResult
		for _, caregiver := range caregivers {
			result, qualified, err := o.scorer.Score(ctx, client, caregiver, shift, criteria)
			if err != nil {
				// Per-candidate failures never abort the batch run.
				o.logger.WithError(err).Warnf("Scoring failed for caregiver %s on shift %s, skipping candidate", caregiver.ID, shift.ID)
				failures = append(failures, types.MatchFailure{
					ShiftID:     shift.ID,
					ClientID:    client.ID,
					CaregiverID: caregiver.ID,
					Reason:      fmt.Sprintf("scoring failed: %v", err),
				})
				continue
			}
			if qualified {
				candidates = append(candidates, result)
			}
		}

		if len(candidates) == 0 {
			continue
		}
		SortResults(candidates)
		results = append(results, candidates[0])
	}

	monitoring.RecordMatchingRun("completed", time.Since(start))
	o.logger.Infof("Matching run completed: %d matches, %d failures", len(results), len(failures))
	return results, failures, nil
}

// Override builds a manual match replacing the automated pick for a shift.
// The result carries the manual score sentinel and is committed like any
// other match via Apply.
func (o *Orchestrator) Override(ctx context.Context, shiftID, caregiverID string) (*types.MatchResult, error) {
	shift, err := o.repo.GetShiftByID(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	caregiver, err := o.repo.GetCaregiverByID(ctx, caregiverID)
	if err != nil {
		return nil, err
	}

	return &types.MatchResult{
		ClientID:    shift.ClientID,
		CaregiverID: caregiver.ID,
		ShiftID:     shift.ID,
		Manual:      true,
		MatchDate:   o.clock.Now(),
	}, nil
}

// Apply commits matches: each shift gets its caregiver set, moves to the
// assigned status, and a matching history entry records the prior state for
// revertability. Failures are itemized per match, not all-or-nothing.
func (o *Orchestrator) Apply(ctx context.Context, matches []types.MatchResult, actorID string) ([]string, []types.MatchFailure, error) {
	if actorID == "" {
		return nil, nil, types.NewValidationError(types.ErrCodeInvalidInput, "actor id is required", nil)
	}

	var historyIDs []string
	var failures []types.MatchFailure

	for _, match := range matches {
		if match.ShiftID == "" || match.CaregiverID == "" {
			failures = append(failures, types.MatchFailure{
				ShiftID:     match.ShiftID,
				CaregiverID: match.CaregiverID,
				Reason:      "match is missing shift or caregiver id",
			})
			continue
		}

		shift, err := o.repo.GetShiftByID(ctx, match.ShiftID)
		if err != nil {
			failures = append(failures, o.applyFailure(match, err))
			continue
		}

		entry := &types.MatchingHistoryEntry{
			ID:             uuid.New().String(),
			ShiftID:        shift.ID,
			ClientID:       shift.ClientID,
			OldCaregiverID: shift.CaregiverID,
			NewCaregiverID: match.CaregiverID,
			OldStatus:      shift.Status,
			Manual:         match.Manual,
			AppliedBy:      actorID,
			AppliedAt:      o.clock.Now(),
		}

		status := types.ShiftAssigned
		caregiverID := match.CaregiverID
		updates := &types.ShiftUpdates{
			CaregiverID: &caregiverID,
			Status:      &status,
		}
		if err := o.repo.UpdateShift(ctx, shift.ID, shift.Version, updates); err != nil {
			failures = append(failures, o.applyFailure(match, err))
			continue
		}

		if err := o.repo.CreateMatchingHistory(ctx, entry); err != nil {
			o.logger.WithError(err).Errorf("Assignment committed for shift %s but history write failed", shift.ID)
			failures = append(failures, o.applyFailure(match, err))
			continue
		}

		monitoring.RecordMatchApplied(match.Manual)
		o.logger.Audit(actorID, "matching.apply", shift.ID, true, map[string]interface{}{
			"caregiver_id": match.CaregiverID,
			"manual":       match.Manual,
			"history_id":   entry.ID,
		})
		o.notifier.Notify(types.Notification{
			Type:    "match_applied",
			Title:   "Shift assigned",
			Message: fmt.Sprintf("Caregiver %s assigned to shift %s", match.CaregiverID, shift.ID),
			Link:    "/shifts/" + shift.ID,
		})

		historyIDs = append(historyIDs, entry.ID)
	}

	return historyIDs, failures, nil
}

func (o *Orchestrator) applyFailure(match types.MatchResult, err error) types.MatchFailure {
	o.logger.WithError(err).Warnf("Failed to apply match for shift %s", match.ShiftID)
	return types.MatchFailure{
		ShiftID:     match.ShiftID,
		ClientID:    match.ClientID,
		CaregiverID: match.CaregiverID,
		Reason:      err.Error(),
	}
}

// Revert restores the pre-match shift state recorded in the history entry.
// This is a compensating action, not a delete: reverting an already
// reverted entry is a no-op reported as success.
func (o *Orchestrator) Revert(ctx context.Context, historyID, actorID string) error {
	if actorID == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "actor id is required", nil)
	}

	entry, err := o.repo.GetMatchingHistoryByID(ctx, historyID)
	if err != nil {
		return err
	}
	if entry.Reverted {
		o.logger.Infof("Matching history %s already reverted, treating as success", historyID)
		return nil
	}

	shift, err := o.repo.GetShiftByID(ctx, entry.ShiftID)
	if err != nil {
		return err
	}

	oldCaregiver := entry.OldCaregiverID
	oldStatus := entry.OldStatus
	updates := &types.ShiftUpdates{
		CaregiverID: &oldCaregiver,
		Status:      &oldStatus,
	}
	if err := o.repo.UpdateShift(ctx, shift.ID, shift.Version, updates); err != nil {
		return err
	}

	if err := o.repo.MarkMatchingHistoryReverted(ctx, historyID, actorID, o.clock.Now()); err != nil {
		return err
	}

	monitoring.RecordMatchReverted()
	o.logger.Audit(actorID, "matching.revert", shift.ID, true, map[string]interface{}{
		"history_id": historyID,
	})
	o.notifier.Notify(types.Notification{
		Type:    "match_reverted",
		Title:   "Assignment reverted",
		Message: fmt.Sprintf("Shift %s returned to needs-assignment", shift.ID),
		Link:    "/shifts/" + shift.ID,
	})
	return nil
}
