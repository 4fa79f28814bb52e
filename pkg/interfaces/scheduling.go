package interfaces

import (
	"context"
	"time"

	"github.com/carelink/homecare-scheduler/pkg/types"
)

// CareRepository defines the interface for scheduling data persistence.
// Implementations exist for Postgres and in-memory storage.
type CareRepository interface {
	// Clients
	CreateClient(ctx context.Context, client *types.Client) error
	GetClientByID(ctx context.Context, id string) (*types.Client, error)
	UpdateClient(ctx context.Context, client *types.Client) error
	DeleteClient(ctx context.Context, id string) error
	GetClients(ctx context.Context, status types.ServiceStatus) ([]*types.Client, error)

	// Caregivers
	CreateCaregiver(ctx context.Context, caregiver *types.Caregiver) error
	GetCaregiverByID(ctx context.Context, id string) (*types.Caregiver, error)
	UpdateCaregiver(ctx context.Context, caregiver *types.Caregiver) error
	DeleteCaregiver(ctx context.Context, id string) error
	GetCaregivers(ctx context.Context, activeOnly bool) ([]*types.Caregiver, error)

	// Availability
	GetAvailability(ctx context.Context, caregiverID string) (*types.Availability, error)
	PutAvailability(ctx context.Context, availability *types.Availability) error

	// Shifts
	CreateShift(ctx context.Context, shift *types.Shift) error
	GetShiftByID(ctx context.Context, id string) (*types.Shift, error)
	UpdateShift(ctx context.Context, id string, expectedVersion int, updates *types.ShiftUpdates) error
	DeleteShift(ctx context.Context, id string) error
	GetShifts(ctx context.Context, filters *types.ShiftFilters) ([]*types.Shift, error)
	GetCaregiverShifts(ctx context.Context, caregiverID string, date time.Time) ([]*types.Shift, error)

	// Conflicts
	CreateConflict(ctx context.Context, conflict *types.Conflict) error
	GetConflictByID(ctx context.Context, id string) (*types.Conflict, error)
	GetConflicts(ctx context.Context, status types.ConflictStatus) ([]*types.Conflict, error)

	// ApplyResolution atomically applies shift changes, marks the conflict
	// resolved and appends the history entry in one logical transaction.
	// If any shift mutation fails, nothing is recorded.
	ApplyResolution(ctx context.Context, conflictID string, changes []types.ShiftChange, entry *types.ResolutionHistoryEntry) error
	GetResolutionHistory(ctx context.Context, conflictID string) ([]*types.ResolutionHistoryEntry, error)

	// Matching history
	CreateMatchingHistory(ctx context.Context, entry *types.MatchingHistoryEntry) error
	GetMatchingHistoryByID(ctx context.Context, id string) (*types.MatchingHistoryEntry, error)
	MarkMatchingHistoryReverted(ctx context.Context, id, revertedBy string, revertedAt time.Time) error
}

// AvailabilityOptions carries optional constraints for availability checks
type AvailabilityOptions struct {
	RequiresCar bool
}

// AvailabilityResolver determines whether caregivers are free for a window
type AvailabilityResolver interface {
	// IsAvailable reports whether the caregiver is free for the window,
	// with human-readable reasons when not.
	IsAvailable(ctx context.Context, caregiverID string, date time.Time, startTime, endTime string, opts AvailabilityOptions) (bool, []string, error)

	// AvailableCaregivers returns all caregivers free for the window
	AvailableCaregivers(ctx context.Context, date time.Time, startTime, endTime string, opts AvailabilityOptions) ([]*types.Caregiver, error)
}

// MatchingService runs batch matching sessions and commits assignments
type MatchingService interface {
	Run(ctx context.Context, criteria types.MatchCriteria) ([]types.MatchResult, []types.MatchFailure, error)
	Override(ctx context.Context, shiftID, caregiverID string) (*types.MatchResult, error)
	Apply(ctx context.Context, matches []types.MatchResult, actorID string) ([]string, []types.MatchFailure, error)
	Revert(ctx context.Context, historyID, actorID string) error
}

// ConflictService detects and resolves schedule conflicts
type ConflictService interface {
	Scan(ctx context.Context) ([]*types.Conflict, error)
	GetConflicts(ctx context.Context, status types.ConflictStatus) ([]*types.Conflict, error)
	Options(ctx context.Context, conflictID string) ([]types.ResolutionOption, error)
	Resolve(ctx context.Context, req types.ResolveRequest) (*types.ResolutionHistoryEntry, error)
	OverrideResolve(ctx context.Context, req types.OverrideRequest) (*types.ResolutionHistoryEntry, error)
	History(ctx context.Context, conflictID string) ([]*types.ResolutionHistoryEntry, error)
}

// NotificationSink delivers fire-and-forget notifications. Failures must
// never roll back the operation that produced the notification.
type NotificationSink interface {
	Notify(n types.Notification)
}

// Clock provides the current time, injectable for deterministic tests
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock implementation
type SystemClock struct{}

// Now returns the current wall-clock time
func (SystemClock) Now() time.Time { return time.Now() }
