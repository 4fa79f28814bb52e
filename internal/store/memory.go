package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carelink/homecare-scheduler/pkg/types"
)

// Memory is an in-memory CareRepository used for tests and local
// development. All methods are safe for concurrent use.
type Memory struct {
	mu                sync.RWMutex
	clients           map[string]*types.Client
	caregivers        map[string]*types.Caregiver
	availability      map[string]*types.Availability
	shifts            map[string]*types.Shift
	conflicts         map[string]*types.Conflict
	resolutionHistory []*types.ResolutionHistoryEntry
	matchingHistory   map[string]*types.MatchingHistoryEntry
}

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		clients:         make(map[string]*types.Client),
		caregivers:      make(map[string]*types.Caregiver),
		availability:    make(map[string]*types.Availability),
		shifts:          make(map[string]*types.Shift),
		conflicts:       make(map[string]*types.Conflict),
		matchingHistory: make(map[string]*types.MatchingHistoryEntry),
	}
}

// CreateClient stores a new client
func (m *Memory) CreateClient(ctx context.Context, client *types.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.clients[client.ID]; exists {
		return types.NewConflictError(types.ErrCodeConflict, "client already exists")
	}
	copied := *client
	m.clients[client.ID] = &copied
	return nil
}

// GetClientByID returns a client by id
func (m *Memory) GetClientByID(ctx context.Context, id string) (*types.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "client not found: "+id)
	}
	copied := *client
	return &copied, nil
}

// UpdateClient replaces a stored client
func (m *Memory) UpdateClient(ctx context.Context, client *types.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, "client not found: "+client.ID)
	}
	copied := *client
	m.clients[client.ID] = &copied
	return nil
}

// DeleteClient removes a client
func (m *Memory) DeleteClient(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[id]; !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, "client not found: "+id)
	}
	delete(m.clients, id)
	return nil
}

// GetClients lists clients, optionally filtered by service status
func (m *Memory) GetClients(ctx context.Context, status types.ServiceStatus) ([]*types.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var clients []*types.Client
	for _, client := range m.clients {
		if status != "" && client.ServiceStatus != status {
			continue
		}
		copied := *client
		clients = append(clients, &copied)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return clients, nil
}

// CreateCaregiver stores a new caregiver
func (m *Memory) CreateCaregiver(ctx context.Context, caregiver *types.Caregiver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.caregivers[caregiver.ID]; exists {
		return types.NewConflictError(types.ErrCodeConflict, "caregiver already exists")
	}
	copied := *caregiver
	m.caregivers[caregiver.ID] = &copied
	return nil
}

// GetCaregiverByID returns a caregiver by id
func (m *Memory) GetCaregiverByID(ctx context.Context, id string) (*types.Caregiver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	caregiver, ok := m.caregivers[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "caregiver not found: "+id)
	}
	copied := *caregiver
	return &copied, nil
}

// UpdateCaregiver replaces a stored caregiver
func (m *Memory) UpdateCaregiver(ctx context.Context, caregiver *types.Caregiver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caregivers[caregiver.ID]; !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, "caregiver not found: "+caregiver.ID)
	}
	copied := *caregiver
	m.caregivers[caregiver.ID] = &copied
	return nil
}

// DeleteCaregiver removes a caregiver and its availability
func (m *Memory) DeleteCaregiver(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caregivers[id]; !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, "caregiver not found: "+id)
	}
	delete(m.caregivers, id)
	delete(m.availability, id)
	return nil
}

// GetCaregivers lists caregivers, optionally only active ones
func (m *Memory) GetCaregivers(ctx context.Context, activeOnly bool) ([]*types.Caregiver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var caregivers []*types.Caregiver
	for _, caregiver := range m.caregivers {
		if activeOnly && !caregiver.IsActive {
			continue
		}
		copied := *caregiver
		caregivers = append(caregivers, &copied)
	}
	sort.Slice(caregivers, func(i, j int) bool { return caregivers[i].ID < caregivers[j].ID })
	return caregivers, nil
}

// GetAvailability returns a caregiver's availability record. A caregiver
// without one gets an empty record, not an error.
func (m *Memory) GetAvailability(ctx context.Context, caregiverID string) (*types.Availability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.caregivers[caregiverID]; !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "caregiver not found: "+caregiverID)
	}
	avail, ok := m.availability[caregiverID]
	if !ok {
		return &types.Availability{CaregiverID: caregiverID}, nil
	}
	copied := *avail
	return &copied, nil
}

// PutAvailability upserts a caregiver's availability record
func (m *Memory) PutAvailability(ctx context.Context, availability *types.Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caregivers[availability.CaregiverID]; !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, "caregiver not found: "+availability.CaregiverID)
	}
	copied := *availability
	m.availability[availability.CaregiverID] = &copied
	return nil
}

// CreateShift stores a new shift with version 1
func (m *Memory) CreateShift(ctx context.Context, shift *types.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.shifts[shift.ID]; exists {
		return types.NewConflictError(types.ErrCodeConflict, "shift already exists")
	}
	copied := *shift
	if copied.Version == 0 {
		copied.Version = 1
	}
	m.shifts[shift.ID] = &copied
	return nil
}

// GetShiftByID returns a shift by id
func (m *Memory) GetShiftByID(ctx context.Context, id string) (*types.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getShiftLocked(id)
}

func (m *Memory) getShiftLocked(id string) (*types.Shift, error) {
	shift, ok := m.shifts[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "shift not found: "+id)
	}
	copied := *shift
	return &copied, nil
}

// UpdateShift applies a partial update guarded by an optimistic version
// check. A stale version yields a concurrency error.
func (m *Memory) UpdateShift(ctx context.Context, id string, expectedVersion int, updates *types.ShiftUpdates) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateShiftLocked(id, expectedVersion, updates)
}

func (m *Memory) updateShiftLocked(id string, expectedVersion int, updates *types.ShiftUpdates) error {
	shift, ok := m.shifts[id]
	if !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, "shift not found: "+id)
	}
	if shift.Version != expectedVersion {
		return types.NewConcurrencyError(types.ErrCodeStaleVersion, "shift was modified by another operation")
	}
	if updates.CaregiverID != nil {
		shift.CaregiverID = *updates.CaregiverID
	}
	if updates.Date != nil {
		shift.Date = types.Midnight(*updates.Date)
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
	shift.UpdatedAt = time.Now()
	return nil
}

// DeleteShift removes a shift
func (m *Memory) DeleteShift(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shifts[id]; !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, "shift not found: "+id)
	}
	delete(m.shifts, id)
	return nil
}

// GetShifts lists shifts matching the filters, ordered by date then start
func (m *Memory) GetShifts(ctx context.Context, filters *types.ShiftFilters) ([]*types.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var shifts []*types.Shift
	for _, shift := range m.shifts {
		if filters.ClientID != "" && shift.ClientID != filters.ClientID {
			continue
		}
		if filters.CaregiverID != "" && shift.CaregiverID != filters.CaregiverID {
			continue
		}
		if filters.Status != "" && shift.Status != filters.Status {
			continue
		}
		if !filters.FromDate.IsZero() && shift.Date.Before(types.Midnight(filters.FromDate)) {
			continue
		}
		if !filters.ToDate.IsZero() && shift.Date.After(types.Midnight(filters.ToDate)) {
			continue
		}
		copied := *shift
		shifts = append(shifts, &copied)
	}
	sort.Slice(shifts, func(i, j int) bool {
		if !shifts[i].Date.Equal(shifts[j].Date) {
			return shifts[i].Date.Before(shifts[j].Date)
		}
		if shifts[i].StartTime != shifts[j].StartTime {
			return shifts[i].StartTime < shifts[j].StartTime
		}
		return shifts[i].ID < shifts[j].ID
	})
	if filters.Offset > 0 && filters.Offset < len(shifts) {
		shifts = shifts[filters.Offset:]
	} else if filters.Offset >= len(shifts) && filters.Offset > 0 {
		shifts = nil
	}
	if filters.Limit > 0 && filters.Limit < len(shifts) {
		shifts = shifts[:filters.Limit]
	}
	return shifts, nil
}

// GetCaregiverShifts lists a caregiver's shifts on a given date
func (m *Memory) GetCaregiverShifts(ctx context.Context, caregiverID string, date time.Time) ([]*types.Shift, error) {
	return m.GetShifts(ctx, &types.ShiftFilters{
		CaregiverID: caregiverID,
		FromDate:    date,
		ToDate:      date,
	})
}

// CreateConflict stores a detected conflict
func (m *Memory) CreateConflict(ctx context.Context, conflict *types.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conflicts[conflict.ID]; exists {
		return types.NewConflictError(types.ErrCodeConflict, "conflict already exists")
	}
	copied := *conflict
	m.conflicts[conflict.ID] = &copied
	return nil
}

// GetConflictByID returns a conflict by id
func (m *Memory) GetConflictByID(ctx context.Context, id string) (*types.Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conflict, ok := m.conflicts[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "conflict not found: "+id)
	}
	copied := *conflict
	return &copied, nil
}

// GetConflicts lists conflicts, optionally filtered by status
func (m *Memory) GetConflicts(ctx context.Context, status types.ConflictStatus) ([]*types.Conflict, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var conflicts []*types.Conflict
	for _, conflict := range m.conflicts {
		if status != "" && conflict.Status != status {
			continue
		}
		copied := *conflict
		conflicts = append(conflicts, &copied)
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].ID < conflicts[j].ID })
	return conflicts, nil
}

// ApplyResolution applies shift changes, marks the conflict resolved and
// appends the history entry atomically: if any mutation fails, no state
// changes and no history is recorded.
func (m *Memory) ApplyResolution(ctx context.Context, conflictID string, changes []types.ShiftChange, entry *types.ResolutionHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conflict, ok := m.conflicts[conflictID]
	if !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, "conflict not found: "+conflictID)
	}
	if conflict.Status != types.ConflictPending {
		return types.NewConflictError(types.ErrCodeAlreadyResolved, "conflict is already resolved")
	}

	// Validate all changes against a copy first so a failure leaves the
	// store untouched.
	saved := make(map[string]types.Shift, len(changes))
	for _, change := range changes {
		shift, ok := m.shifts[change.ShiftID]
		if !ok {
			return types.NewNotFoundError(types.ErrCodeNotFound, "shift not found: "+change.ShiftID)
		}
		saved[change.ShiftID] = *shift
	}
	for _, change := range changes {
		updates := change.Updates
		if err := m.updateShiftLocked(change.ShiftID, change.ExpectedVersion, &updates); err != nil {
			for id, prior := range saved {
				restored := prior
				m.shifts[id] = &restored
			}
			return err
		}
	}

	conflict.Status = types.ConflictResolved
	resolvedAt := entry.ResolvedAt
	conflict.ResolvedAt = &resolvedAt

	copied := *entry
	m.resolutionHistory = append(m.resolutionHistory, &copied)
	return nil
}

// GetResolutionHistory lists history entries, optionally for one conflict
func (m *Memory) GetResolutionHistory(ctx context.Context, conflictID string) ([]*types.ResolutionHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []*types.ResolutionHistoryEntry
	for _, entry := range m.resolutionHistory {
		if conflictID != "" && entry.ConflictID != conflictID {
			continue
		}
		copied := *entry
		entries = append(entries, &copied)
	}
	return entries, nil
}

// CreateMatchingHistory stores a matching history entry
func (m *Memory) CreateMatchingHistory(ctx context.Context, entry *types.MatchingHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.matchingHistory[entry.ID]; exists {
		return types.NewConflictError(types.ErrCodeConflict, "matching history entry already exists")
	}
	copied := *entry
	m.matchingHistory[entry.ID] = &copied
	return nil
}

// GetMatchingHistoryByID returns a matching history entry by id
func (m *Memory) GetMatchingHistoryByID(ctx context.Context, id string) (*types.MatchingHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.matchingHistory[id]
	if !ok {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "matching history not found: "+id)
	}
	copied := *entry
	return &copied, nil
}

// MarkMatchingHistoryReverted flags an entry as reverted
func (m *Memory) MarkMatchingHistoryReverted(ctx context.Context, id, revertedBy string, revertedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.matchingHistory[id]
	if !ok {
		return types.NewNotFoundError(types.ErrCodeNotFound, "matching history not found: "+id)
	}
	entry.Reverted = true
	entry.RevertedAt = &revertedAt
	entry.RevertedBy = revertedBy
	return nil
}
