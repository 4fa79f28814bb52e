package availability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/carelink/homecare-scheduler/pkg/interfaces"
	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

// Resolver determines caregiver availability for a date/time window:
// regular recurring schedule minus approved time off minus already
// committed shifts. All methods are pure reads.
type Resolver struct {
	repo   interfaces.CareRepository
	logger *logger.Logger
}

// NewResolver creates a new availability resolver
func NewResolver(repo interfaces.CareRepository, log *logger.Logger) *Resolver {
	return &Resolver{repo: repo, logger: log}
}

// IsAvailable reports whether the caregiver is free for the requested window.
// The second return value lists rejection reasons when unavailable.
func (r *Resolver) IsAvailable(ctx context.Context, caregiverID string, date time.Time, startTime, endTime string, opts interfaces.AvailabilityOptions) (bool, []string, error) {
	caregiver, err := r.repo.GetCaregiverByID(ctx, caregiverID)
	if err != nil {
		return false, nil, err
	}
	return r.check(ctx, caregiver, date, startTime, endTime, opts)
}

// AvailableCaregivers returns every caregiver free for the requested window.
// Per-caregiver read failures skip that caregiver; an unreachable store
// surfaces as an error.
func (r *Resolver) AvailableCaregivers(ctx context.Context, date time.Time, startTime, endTime string, opts interfaces.AvailabilityOptions) ([]*types.Caregiver, error) {
	caregivers, err := r.repo.GetCaregivers(ctx, true)
	if err != nil {
		return nil, err
	}

	var available []*types.Caregiver
	for _, caregiver := range caregivers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, _, err := r.check(ctx, caregiver, date, startTime, endTime, opts)
		if err != nil {
			if types.IsErrorType(err, types.ErrorTypeStoreUnavailable) {
				return nil, err
			}
			r.logger.WithError(err).Warnf("Skipping caregiver %s from availability check", caregiver.ID)
			continue
		}
		if ok {
			available = append(available, caregiver)
		}
	}

	sort.Slice(available, func(i, j int) bool { return available[i].ID < available[j].ID })
	return available, nil
}

// check applies the rejection rules in order: transportation requirement,
// covering regular slot, approved time off, overlapping committed shift.
func (r *Resolver) check(ctx context.Context, caregiver *types.Caregiver, date time.Time, startTime, endTime string, opts interfaces.AvailabilityOptions) (bool, []string, error) {
	start, err := types.ParseClock(startTime)
	if err != nil {
		return false, nil, err
	}
	end, err := types.ParseClock(endTime)
	if err != nil {
		return false, nil, err
	}
	if end <= start {
		return false, nil, types.NewValidationError(types.ErrCodeInvalidInput, "end time must be after start time", nil)
	}

	var reasons []string

	if opts.RequiresCar && !caregiver.Transportation.HasCar {
		reasons = append(reasons, "client requires a caregiver with a car")
		return false, reasons, nil
	}

	avail, err := r.repo.GetAvailability(ctx, caregiver.ID)
	if err != nil {
		return false, nil, err
	}

	if !slotCovers(avail.SlotsForDay(date), start, end) {
		reasons = append(reasons, fmt.Sprintf("no regular schedule slot covers %s-%s on %s", startTime, endTime, date.Weekday()))
		return false, reasons, nil
	}

	if timeOff, ok := avail.ApprovedTimeOffCovering(date); ok {
		reasons = append(reasons, fmt.Sprintf("approved time off from %s to %s",
			timeOff.StartDate.Format("2006-01-02"), timeOff.EndDate.Format("2006-01-02")))
		return false, reasons, nil
	}

	shifts, err := r.repo.GetCaregiverShifts(ctx, caregiver.ID, date)
	if err != nil {
		return false, nil, err
	}
	for _, shift := range shifts {
		if !shift.Committed() {
			continue
		}
		existingStart, existingEnd, err := shift.Window()
		if err != nil {
			r.logger.WithError(err).Warnf("Shift %s has malformed times, treating caregiver as unavailable", shift.ID)
			reasons = append(reasons, fmt.Sprintf("shift %s has malformed times", shift.ID))
			return false, reasons, nil
		}
		// Half-open overlap: existing.start < requested.end AND existing.end > requested.start
		if types.Overlaps(existingStart, existingEnd, start, end) {
			reasons = append(reasons, fmt.Sprintf("existing shift %s overlaps %s-%s", shift.ID, shift.StartTime, shift.EndTime))
			return false, reasons, nil
		}
	}

	return true, nil, nil
}

// slotCovers reports whether any regular slot fully contains the window
func slotCovers(slots []types.RegularSlot, start, end int) bool {
	for _, slot := range slots {
		slotStart, err := types.ParseClock(slot.StartTime)
		if err != nil {
			continue
		}
		slotEnd, err := types.ParseClock(slot.EndTime)
		if err != nil {
			continue
		}
		if types.Contains(slotStart, slotEnd, start, end) {
			return true
		}
	}
	return false
}
