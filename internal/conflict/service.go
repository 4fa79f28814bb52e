package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/homecare-scheduler/internal/matching"
	"github.com/carelink/homecare-scheduler/pkg/interfaces"
	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/monitoring"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

// rescheduleSearchDays bounds how far ahead the reschedule option looks for
// a free caregiver slot
const rescheduleSearchDays = 7

// Service is the conflict resolution orchestrator: it scans for conflicts,
// enumerates executable resolution options, and applies resolutions or
// manual overrides with a permanent history record.
type Service struct {
	repo     interfaces.CareRepository
	detector *Detector
	resolver interfaces.AvailabilityResolver
	scorer   *matching.Scorer
	criteria types.MatchCriteria
	notifier interfaces.NotificationSink
	clock    interfaces.Clock
	logger   *logger.Logger
}

// NewService creates a new conflict service
func NewService(repo interfaces.CareRepository, detector *Detector, resolver interfaces.AvailabilityResolver, scorer *matching.Scorer, criteria types.MatchCriteria, notifier interfaces.NotificationSink, clock interfaces.Clock, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		detector: detector,
		resolver: resolver,
		scorer:   scorer,
		criteria: criteria,
		notifier: notifier,
		clock:    clock,
		logger:   log,
	}
}

// Scan detects conflicts over the current schedule snapshot, dedupes
// against already-open conflicts by stable id, and persists the new ones.
// A resolved conflict whose condition still holds comes back as a fresh
// pending conflict rather than staying buried under its resolved record.
func (s *Service) Scan(ctx context.Context) ([]*types.Conflict, error) {
	start := s.clock.Now()

	shifts, clients, caregivers, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	detected, err := s.detector.Detect(ctx, shifts, clients, caregivers)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetConflicts(ctx, "")
	if err != nil {
		return nil, err
	}
	openBase := make(map[string]bool)
	resolvedGen := make(map[string]int)
	for _, c := range existing {
		base := baseConflictID(c.ID)
		if c.Status == types.ConflictPending {
			openBase[base] = true
		} else {
			resolvedGen[base]++
		}
	}

	var created []*types.Conflict
	for _, conflict := range detected {
		if openBase[conflict.ID] {
			continue
		}
		// The condition still holds after a resolution that left the
		// shifts in place (an override, or a revert back into the
		// conflicting state): reissue it as a fresh pending conflict
		// under a generation-suffixed id.
		if gen := resolvedGen[conflict.ID]; gen > 0 {
			conflict.ID = fmt.Sprintf("%s.%d", conflict.ID, gen+1)
		}
		if err := s.repo.CreateConflict(ctx, conflict); err != nil {
			s.logger.WithError(err).Errorf("Failed to persist conflict %s", conflict.ID)
			continue
		}
		monitoring.RecordConflictDetected(string(conflict.Type))
		s.notifier.Notify(types.Notification{
			Type:    "conflict_detected",
			Title:   "Schedule conflict detected",
			Message: conflict.Description,
			Link:    "/conflicts/" + conflict.ID,
		})
		created = append(created, conflict)
	}

	monitoring.RecordConflictScan(time.Since(start))
	s.logger.Infof("Conflict scan finished: %d detected, %d new", len(detected), len(created))
	return created, nil
}

// baseConflictID strips the reissue generation suffix from a conflict id,
// recovering the stable id the detector derives from the involved shifts.
func baseConflictID(id string) string {
	if i := strings.IndexByte(id, '.'); i >= 0 {
		return id[:i]
	}
	return id
}

// GetConflicts lists conflicts by status; an empty status returns all
func (s *Service) GetConflicts(ctx context.Context, status types.ConflictStatus) ([]*types.Conflict, error) {
	return s.repo.GetConflicts(ctx, status)
}

// History returns the resolution history for a conflict, or all entries
// when conflictID is empty
func (s *Service) History(ctx context.Context, conflictID string) ([]*types.ResolutionHistoryEntry, error) {
	return s.repo.GetResolutionHistory(ctx, conflictID)
}

// Options enumerates executable resolution options for a pending conflict.
// The list is empty when no option can actually be executed; nothing is
// fabricated.
func (s *Service) Options(ctx context.Context, conflictID string) ([]types.ResolutionOption, error) {
	conflict, err := s.repo.GetConflictByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Status != types.ConflictPending {
		return nil, types.NewConflictError(types.ErrCodeAlreadyResolved, "conflict is already resolved")
	}
	return s.buildOptions(ctx, conflict)
}

func (s *Service) buildOptions(ctx context.Context, conflict *types.Conflict) ([]types.ResolutionOption, error) {
	if len(conflict.ShiftIDs) < 2 {
		return nil, nil
	}

	// The later shift is the resolution target.
	target, err := s.laterShift(ctx, conflict.ShiftIDs)
	if err != nil {
		return nil, err
	}

	switch conflict.Type {
	case types.ConflictDoubleBooking, types.ConflictClientDoubleCoverage:
		return s.overlapOptions(ctx, conflict, target)
	case types.ConflictTravelTimeInsufficient:
		return s.travelOptions(ctx, conflict, target)
	default:
		return nil, nil
	}
}

// overlapOptions proposes reassignment to a qualified alternate caregiver
// (low impact) and rescheduling to the current caregiver's next free slot
// (medium impact), each only when executable.
func (s *Service) overlapOptions(ctx context.Context, conflict *types.Conflict, target *types.Shift) ([]types.ResolutionOption, error) {
	var options []types.ResolutionOption

	alternate, err := s.findAlternateCaregiver(ctx, target)
	if err != nil && !types.IsErrorType(err, types.ErrorTypeNotFound) {
		return nil, err
	}
	if alternate != "" {
		options = append(options, types.ResolutionOption{
			ID:             types.OptionID(conflict.ID, types.ResolutionReassign, target.ID, alternate),
			ConflictID:     conflict.ID,
			Description:    fmt.Sprintf("Reassign shift %s to alternate qualified caregiver %s", target.ID, alternate),
			Impact:         types.ImpactLow,
			Kind:           types.ResolutionReassign,
			TargetShiftID:  target.ID,
			NewCaregiverID: alternate,
		})
	}

	if target.CaregiverID != "" {
		if newDate, newStart, newEnd, ok := s.nextFreeSlot(ctx, target); ok {
			detail := newDate.Format("2006-01-02") + "T" + newStart
			options = append(options, types.ResolutionOption{
				ID:            types.OptionID(conflict.ID, types.ResolutionReschedule, target.ID, detail),
				ConflictID:    conflict.ID,
				Description:   fmt.Sprintf("Reschedule shift %s to %s %s-%s", target.ID, newDate.Format("2006-01-02"), newStart, newEnd),
				Impact:        types.ImpactMedium,
				Kind:          types.ResolutionReschedule,
				TargetShiftID: target.ID,
				NewDate:       &newDate,
				NewStartTime:  newStart,
				NewEndTime:    newEnd,
			})
		}
	}

	return options, nil
}

// travelOptions proposes shifting the second appointment's start by the
// buffer deficit, when the caregiver is free at the shifted time.
func (s *Service) travelOptions(ctx context.Context, conflict *types.Conflict, target *types.Shift) ([]types.ResolutionOption, error) {
	first, err := s.repo.GetShiftByID(ctx, conflict.ShiftIDs[0])
	if err != nil {
		return nil, err
	}

	firstEnd, err := types.ParseClock(first.EndTime)
	if err != nil {
		return nil, err
	}
	targetStart, targetEnd, err := target.Window()
	if err != nil {
		return nil, err
	}

	// Same distance-scaled requirement the detector applied, so the
	// proposed shift clears the full gap rather than just the base buffer.
	firstClient, err := s.repo.GetClientByID(ctx, first.ClientID)
	if err != nil && !types.IsErrorType(err, types.ErrorTypeNotFound) {
		return nil, err
	}
	targetClient, err := s.repo.GetClientByID(ctx, target.ClientID)
	if err != nil && !types.IsErrorType(err, types.ErrorTypeNotFound) {
		return nil, err
	}
	required := s.detector.requiredTravelGap(firstClient, targetClient)
	gap := targetStart - firstEnd
	deficit := required - gap
	if deficit <= 0 {
		return nil, nil
	}

	newStart := targetStart + deficit
	newEnd := targetEnd + deficit
	if newEnd >= 24*60 {
		return nil, nil
	}
	newStartStr := types.FormatClock(newStart)
	newEndStr := types.FormatClock(newEnd)

	// The shifted window must still be inside the caregiver's regular
	// schedule; checking availability against the stored shift would
	// trip over the shift itself, so validate the deficit window only.
	free, _, err := s.resolver.IsAvailable(ctx, target.CaregiverID, target.Date, types.FormatClock(targetEnd), newEndStr, interfaces.AvailabilityOptions{})
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, nil
	}

	return []types.ResolutionOption{{
		ID:            types.OptionID(conflict.ID, types.ResolutionShiftStart, target.ID, newStartStr),
		ConflictID:    conflict.ID,
		Description:   fmt.Sprintf("Shift start of %s by %d minutes to %s", target.ID, deficit, newStartStr),
		Impact:        types.ImpactLow,
		Kind:          types.ResolutionShiftStart,
		TargetShiftID: target.ID,
		NewStartTime:  newStartStr,
		NewEndTime:    newEndStr,
	}}, nil
}

// Resolve applies a previously offered resolution option. The shift
// mutation, conflict state change and history append happen in one logical
// transaction: a resolution is never recorded if the mutation failed.
func (s *Service) Resolve(ctx context.Context, req types.ResolveRequest) (*types.ResolutionHistoryEntry, error) {
	if req.ResolvedBy == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "resolved_by is required", nil)
	}

	conflict, err := s.repo.GetConflictByID(ctx, req.ConflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Status != types.ConflictPending {
		return nil, types.NewConflictError(types.ErrCodeAlreadyResolved, "conflict is already resolved")
	}

	options, err := s.buildOptions(ctx, conflict)
	if err != nil {
		return nil, err
	}
	var chosen *types.ResolutionOption
	for i := range options {
		if options[i].ID == req.OptionID {
			chosen = &options[i]
			break
		}
	}
	if chosen == nil {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "resolution option not found or no longer executable")
	}

	change, err := s.changeForOption(ctx, chosen)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.resultingSnapshot(ctx, conflict.ShiftIDs, change)
	if err != nil {
		return nil, err
	}

	entry := &types.ResolutionHistoryEntry{
		ID:            uuid.New().String(),
		ConflictID:    conflict.ID,
		Method:        types.MethodResolution,
		OptionID:      chosen.ID,
		ResolvedBy:    req.ResolvedBy,
		Notes:         req.Notes,
		ResolvedAt:    s.clock.Now(),
		ShiftSnapshot: snapshot,
	}

	if err := s.repo.ApplyResolution(ctx, conflict.ID, []types.ShiftChange{*change}, entry); err != nil {
		return nil, err
	}

	monitoring.RecordConflictResolved(string(types.MethodResolution))
	s.logger.Audit(req.ResolvedBy, "conflict.resolve", conflict.ID, true, map[string]interface{}{
		"option_id": chosen.ID,
		"kind":      string(chosen.Kind),
	})
	s.notifier.Notify(types.Notification{
		Type:    "conflict_resolved",
		Title:   "Conflict resolved",
		Message: chosen.Description,
		Link:    "/conflicts/" + conflict.ID,
	})
	return entry, nil
}

// OverrideResolve marks a conflict resolved without touching any shift:
// an explicit acknowledgment that the conflict is accepted as-is.
func (s *Service) OverrideResolve(ctx context.Context, req types.OverrideRequest) (*types.ResolutionHistoryEntry, error) {
	if req.UserID == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "user_id is required", nil)
	}
	if req.Reason == "" {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "override reason is required", nil)
	}

	conflict, err := s.repo.GetConflictByID(ctx, req.ConflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Status != types.ConflictPending {
		return nil, types.NewConflictError(types.ErrCodeAlreadyResolved, "conflict is already resolved")
	}

	snapshot, err := s.resultingSnapshot(ctx, conflict.ShiftIDs, nil)
	if err != nil {
		return nil, err
	}

	entry := &types.ResolutionHistoryEntry{
		ID:            uuid.New().String(),
		ConflictID:    conflict.ID,
		Method:        types.MethodOverride,
		ResolvedBy:    req.UserID,
		Notes:         req.Reason,
		ResolvedAt:    s.clock.Now(),
		ShiftSnapshot: snapshot,
	}

	// No shift changes on the override path.
	if err := s.repo.ApplyResolution(ctx, conflict.ID, nil, entry); err != nil {
		return nil, err
	}

	monitoring.RecordConflictResolved(string(types.MethodOverride))
	s.logger.Audit(req.UserID, "conflict.override", conflict.ID, true, map[string]interface{}{
		"reason": req.Reason,
	})
	return entry, nil
}

// changeForOption translates an option into a versioned shift mutation
func (s *Service) changeForOption(ctx context.Context, option *types.ResolutionOption) (*types.ShiftChange, error) {
	shift, err := s.repo.GetShiftByID(ctx, option.TargetShiftID)
	if err != nil {
		return nil, err
	}

	updates := types.ShiftUpdates{}
	switch option.Kind {
	case types.ResolutionReassign:
		caregiverID := option.NewCaregiverID
		status := types.ShiftAssigned
		updates.CaregiverID = &caregiverID
		updates.Status = &status
	case types.ResolutionReschedule:
		updates.Date = option.NewDate
		start, end := option.NewStartTime, option.NewEndTime
		updates.StartTime = &start
		updates.EndTime = &end
	case types.ResolutionShiftStart:
		start, end := option.NewStartTime, option.NewEndTime
		updates.StartTime = &start
		updates.EndTime = &end
	default:
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "unknown resolution kind", nil)
	}

	return &types.ShiftChange{
		ShiftID:         shift.ID,
		ExpectedVersion: shift.Version,
		Updates:         updates,
	}, nil
}

// findAlternateCaregiver returns a caregiver who is available for the shift
// window and scores at or above the compatibility threshold, excluding the
// currently assigned caregiver. Empty when none qualifies.
func (s *Service) findAlternateCaregiver(ctx context.Context, shift *types.Shift) (string, error) {
	client, err := s.repo.GetClientByID(ctx, shift.ClientID)
	if err != nil {
		return "", err
	}

	opts := interfaces.AvailabilityOptions{RequiresCar: client.Transportation.RequiresDriverCaregiver}
	candidates, err := s.resolver.AvailableCaregivers(ctx, shift.Date, shift.StartTime, shift.EndTime, opts)
	if err != nil {
		return "", err
	}

	var results []types.MatchResult
	for _, caregiver := range candidates {
		if caregiver.ID == shift.CaregiverID {
			continue
		}
		result, qualified, err := s.scorer.Score(ctx, client, caregiver, shift, s.criteria)
		if err != nil {
			s.logger.WithError(err).Warnf("Scoring alternate %s failed, skipping", caregiver.ID)
			continue
		}
		if qualified {
			results = append(results, result)
		}
	}
	if len(results) == 0 {
		return "", nil
	}
	matching.SortResults(results)
	return results[0].CaregiverID, nil
}

// nextFreeSlot searches forward day by day for the caregiver's next free
// window of the same length, starting the day after the shift.
func (s *Service) nextFreeSlot(ctx context.Context, shift *types.Shift) (time.Time, string, string, bool) {
	for offset := 1; offset <= rescheduleSearchDays; offset++ {
		date := types.Midnight(shift.Date).AddDate(0, 0, offset)
		free, _, err := s.resolver.IsAvailable(ctx, shift.CaregiverID, date, shift.StartTime, shift.EndTime, interfaces.AvailabilityOptions{})
		if err != nil {
			s.logger.WithError(err).Warnf("Free-slot search failed for caregiver %s", shift.CaregiverID)
			return time.Time{}, "", "", false
		}
		if free {
			return date, shift.StartTime, shift.EndTime, true
		}
	}
	return time.Time{}, "", "", false
}

// laterShift returns the shift in the pair with the later start time
func (s *Service) laterShift(ctx context.Context, shiftIDs []string) (*types.Shift, error) {
	var later *types.Shift
	for _, id := range shiftIDs {
		shift, err := s.repo.GetShiftByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if later == nil || shift.StartTime > later.StartTime {
			later = shift
		}
	}
	return later, nil
}

// resultingSnapshot captures what the involved shifts will look like after
// the change is applied, so the history entry records the resulting state
// even though it is written in the same transaction as the mutation.
func (s *Service) resultingSnapshot(ctx context.Context, shiftIDs []string, change *types.ShiftChange) ([]types.Shift, error) {
	var snapshot []types.Shift
	for _, id := range shiftIDs {
		shift, err := s.repo.GetShiftByID(ctx, id)
		if err != nil {
			return nil, err
		}
		copied := *shift
		if change != nil && change.ShiftID == copied.ID {
			applyUpdates(&copied, change.Updates)
		}
		snapshot = append(snapshot, copied)
	}
	return snapshot, nil
}

func applyUpdates(shift *types.Shift, updates types.ShiftUpdates) {
	if updates.CaregiverID != nil {
		shift.CaregiverID = *updates.CaregiverID
	}
	if updates.Date != nil {
		shift.Date = *updates.Date
	}
	if updates.StartTime != nil {
		shift.StartTime = *updates.StartTime
	}
	if updates.EndTime != nil {
		shift.EndTime = *updates.EndTime
	}
	if updates.Status != nil {
		shift.Status = *updates.Status
	}
	shift.Version++
}

// snapshot loads the full schedule state needed for a detection pass
func (s *Service) snapshot(ctx context.Context) ([]*types.Shift, map[string]*types.Client, map[string]*types.Caregiver, error) {
	shifts, err := s.repo.GetShifts(ctx, &types.ShiftFilters{})
	if err != nil {
		return nil, nil, nil, err
	}
	clientList, err := s.repo.GetClients(ctx, "")
	if err != nil {
		return nil, nil, nil, err
	}
	caregiverList, err := s.repo.GetCaregivers(ctx, false)
	if err != nil {
		return nil, nil, nil, err
	}

	clients := make(map[string]*types.Client, len(clientList))
	for _, c := range clientList {
		clients[c.ID] = c
	}
	caregivers := make(map[string]*types.Caregiver, len(caregiverList))
	for _, c := range caregiverList {
		caregivers[c.ID] = c
	}
	return shifts, clients, caregivers, nil
}
