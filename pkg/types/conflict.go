package types

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// ConflictType represents the kind of structural inconsistency detected
type ConflictType string

const (
	ConflictDoubleBooking          ConflictType = "double_booking"
	ConflictClientDoubleCoverage   ConflictType = "client_double_coverage"
	ConflictTravelTimeInsufficient ConflictType = "travel_time_insufficient"
)

// ConflictStatus represents the lifecycle state of a conflict
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
)

// SeverityBucket buckets a numeric severity for display
type SeverityBucket string

const (
	SeverityHigh   SeverityBucket = "high"
	SeverityMedium SeverityBucket = "medium"
	SeverityLow    SeverityBucket = "low"
)

// Conflict represents a detected inconsistency among committed shifts
type Conflict struct {
	ID           string         `json:"id" db:"id"`
	ShiftIDs     []string       `json:"shift_ids" db:"shift_ids"`
	Type         ConflictType   `json:"type" db:"type"`
	Severity     int            `json:"severity" db:"severity"` // 1..10
	ClientID     string         `json:"client_id,omitempty" db:"client_id"`
	CaregiverIDs []string       `json:"caregiver_ids,omitempty" db:"caregiver_ids"`
	Description  string         `json:"description" db:"description"`
	DetectedAt   time.Time      `json:"detected_at" db:"detected_at"`
	Status       ConflictStatus `json:"status" db:"status"`
	ResolvedAt   *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Bucket classifies the severity against configurable bucket boundaries
func (c *Conflict) Bucket(highMin, mediumMin int) SeverityBucket {
	switch {
	case c.Severity >= highMin:
		return SeverityHigh
	case c.Severity >= mediumMin:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ConflictID derives a stable conflict id from the involved shift ids and
// type, so repeated scans over the same snapshot produce the same id set.
func ConflictID(conflictType ConflictType, shiftIDs ...string) string {
	ids := append([]string(nil), shiftIDs...)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(string(conflictType) + ":" + strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])[:16]
}

// ImpactLevel represents the disruption a resolution option would cause
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// ResolutionKind identifies the executable action behind a resolution option
type ResolutionKind string

const (
	ResolutionReassign   ResolutionKind = "reassign"
	ResolutionReschedule ResolutionKind = "reschedule"
	ResolutionShiftStart ResolutionKind = "shift_start"
)

// ResolutionOption is an executable fix proposed for a conflict. Options are
// computed on demand and never persisted; their ids are deterministic so a
// later resolve call can re-derive and match them.
type ResolutionOption struct {
	ID          string         `json:"id"`
	ConflictID  string         `json:"conflict_id"`
	Description string         `json:"description"`
	Impact      ImpactLevel    `json:"impact_level"`
	Kind        ResolutionKind `json:"kind"`

	// Action parameters
	TargetShiftID  string     `json:"target_shift_id"`
	NewCaregiverID string     `json:"new_caregiver_id,omitempty"`
	NewDate        *time.Time `json:"new_date,omitempty"`
	NewStartTime   string     `json:"new_start_time,omitempty"`
	NewEndTime     string     `json:"new_end_time,omitempty"`
}

// OptionID derives a stable option id from the conflict and action parameters
func OptionID(conflictID string, kind ResolutionKind, targetShiftID, detail string) string {
	sum := sha256.Sum256([]byte(conflictID + ":" + string(kind) + ":" + targetShiftID + ":" + detail))
	return hex.EncodeToString(sum[:])[:16]
}

// ResolutionMethod distinguishes schedule-mutating resolutions from
// acknowledge-only overrides
type ResolutionMethod string

const (
	MethodResolution ResolutionMethod = "resolution"
	MethodOverride   ResolutionMethod = "override"
)

// ResolutionHistoryEntry is the append-only audit record of a conflict being
// closed. Never mutated after creation.
type ResolutionHistoryEntry struct {
	ID            string           `json:"id" db:"id"`
	ConflictID    string           `json:"conflict_id" db:"conflict_id"`
	Method        ResolutionMethod `json:"method" db:"method"`
	OptionID      string           `json:"option_id,omitempty" db:"option_id"`
	ResolvedBy    string           `json:"resolved_by" db:"resolved_by"`
	Notes         string           `json:"notes,omitempty" db:"notes"`
	ResolvedAt    time.Time        `json:"resolved_at" db:"resolved_at"`
	ShiftSnapshot []Shift          `json:"shift_snapshot,omitempty" db:"shift_snapshot"`
}

// ResolveRequest is the payload for applying a resolution option
type ResolveRequest struct {
	ConflictID string `json:"conflict_id"`
	OptionID   string `json:"option_id"`
	Notes      string `json:"notes,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// OverrideRequest is the payload for accepting a conflict without changes
type OverrideRequest struct {
	ConflictID string `json:"conflict_id"`
	Reason     string `json:"reason"`
	UserID     string `json:"user_id,omitempty"`
}

// ShiftChange pairs a versioned shift mutation with its target, applied
// atomically with the history append during resolution.
type ShiftChange struct {
	ShiftID         string
	ExpectedVersion int
	Updates         ShiftUpdates
}
