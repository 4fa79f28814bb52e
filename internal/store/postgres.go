package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carelink/homecare-scheduler/pkg/logger"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

// Postgres implements CareRepository on a PostgreSQL database
type Postgres struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPostgres creates a new Postgres-backed repository
func NewPostgres(db *sql.DB, log *logger.Logger) *Postgres {
	return &Postgres{db: db, logger: log}
}

func marshalColumn(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to encode column", err)
	}
	return data, nil
}

func unmarshalColumn(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to decode column", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return types.NewStoreUnavailableError(fmt.Sprintf("%s failed", op), err)
}

// CreateClient inserts a new client
func (p *Postgres) CreateClient(ctx context.Context, client *types.Client) error {
	address, err := marshalColumn(client.Address)
	if err != nil {
		return err
	}
	needs, err := marshalColumn(client.CareNeeds)
	if err != nil {
		return err
	}
	transport, err := marshalColumn(client.Transportation)
	if err != nil {
		return err
	}
	hours, err := marshalColumn(client.PreferredHours)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO clients (
			id, name, address, care_needs, transportation, preferred_hours,
			preferred_language, preferred_gender, service_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = p.db.ExecContext(ctx, query,
		client.ID, client.Name, address, needs, transport, hours,
		client.PreferredLanguage, client.PreferredGender, client.ServiceStatus,
		client.CreatedAt, client.UpdatedAt,
	)
	if err != nil {
		return storeErr("create client", err)
	}
	return nil
}

func scanClient(row interface{ Scan(...interface{}) error }) (*types.Client, error) {
	var client types.Client
	var address, needs, transport, hours []byte
	err := row.Scan(
		&client.ID, &client.Name, &address, &needs, &transport, &hours,
		&client.PreferredLanguage, &client.PreferredGender, &client.ServiceStatus,
		&client.CreatedAt, &client.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalColumn(address, &client.Address); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(needs, &client.CareNeeds); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(transport, &client.Transportation); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(hours, &client.PreferredHours); err != nil {
		return nil, err
	}
	return &client, nil
}

const selectClientColumns = `
	id, name, address, care_needs, transportation, preferred_hours,
	preferred_language, preferred_gender, service_status, created_at, updated_at`

// GetClientByID returns a client by id
func (p *Postgres) GetClientByID(ctx context.Context, id string) (*types.Client, error) {
	query := `SELECT` + selectClientColumns + ` FROM clients WHERE id = $1`
	client, err := scanClient(p.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "client not found: "+id)
	}
	if err != nil {
		return nil, storeErr("get client", err)
	}
	return client, nil
}

// UpdateClient replaces a client row
func (p *Postgres) UpdateClient(ctx context.Context, client *types.Client) error {
	address, err := marshalColumn(client.Address)
	if err != nil {
		return err
	}
	needs, err := marshalColumn(client.CareNeeds)
	if err != nil {
		return err
	}
	transport, err := marshalColumn(client.Transportation)
	if err != nil {
		return err
	}
	hours, err := marshalColumn(client.PreferredHours)
	if err != nil {
		return err
	}

	query := `
		UPDATE clients SET
			name = $2, address = $3, care_needs = $4, transportation = $5,
			preferred_hours = $6, preferred_language = $7, preferred_gender = $8,
			service_status = $9, updated_at = NOW()
		WHERE id = $1`

	result, err := p.db.ExecContext(ctx, query,
		client.ID, client.Name, address, needs, transport, hours,
		client.PreferredLanguage, client.PreferredGender, client.ServiceStatus,
	)
	if err != nil {
		return storeErr("update client", err)
	}
	return requireRowAffected(result, "client not found: "+client.ID)
}

// DeleteClient removes a client
func (p *Postgres) DeleteClient(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete client", err)
	}
	return requireRowAffected(result, "client not found: "+id)
}

// GetClients lists clients, optionally filtered by service status
func (p *Postgres) GetClients(ctx context.Context, status types.ServiceStatus) ([]*types.Client, error) {
	query := `SELECT` + selectClientColumns + ` FROM clients`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE service_status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list clients", err)
	}
	defer rows.Close()

	var clients []*types.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, storeErr("scan client", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list clients", err)
	}
	return clients, nil
}

// CreateCaregiver inserts a new caregiver
func (p *Postgres) CreateCaregiver(ctx context.Context, caregiver *types.Caregiver) error {
	address, err := marshalColumn(caregiver.Address)
	if err != nil {
		return err
	}
	skills, err := marshalColumn(caregiver.Skills)
	if err != nil {
		return err
	}
	transport, err := marshalColumn(caregiver.Transportation)
	if err != nil {
		return err
	}
	certs, err := marshalColumn(caregiver.Certifications)
	if err != nil {
		return err
	}
	languages, err := marshalColumn(caregiver.Languages)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO caregivers (
			id, name, email, phone, address, skills, transportation,
			years_experience, certifications, languages, gender, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = p.db.ExecContext(ctx, query,
		caregiver.ID, caregiver.Name, caregiver.Email, caregiver.Phone,
		address, skills, transport, caregiver.YearsExperience, certs,
		languages, caregiver.Gender, caregiver.IsActive,
		caregiver.CreatedAt, caregiver.UpdatedAt,
	)
	if err != nil {
		return storeErr("create caregiver", err)
	}
	return nil
}

const selectCaregiverColumns = `
	id, name, email, phone, address, skills, transportation,
	years_experience, certifications, languages, gender, is_active,
	created_at, updated_at`

func scanCaregiver(row interface{ Scan(...interface{}) error }) (*types.Caregiver, error) {
	var caregiver types.Caregiver
	var address, skills, transport, certs, languages []byte
	err := row.Scan(
		&caregiver.ID, &caregiver.Name, &caregiver.Email, &caregiver.Phone,
		&address, &skills, &transport, &caregiver.YearsExperience, &certs,
		&languages, &caregiver.Gender, &caregiver.IsActive,
		&caregiver.CreatedAt, &caregiver.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalColumn(address, &caregiver.Address); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(skills, &caregiver.Skills); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(transport, &caregiver.Transportation); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(certs, &caregiver.Certifications); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(languages, &caregiver.Languages); err != nil {
		return nil, err
	}
	return &caregiver, nil
}

// GetCaregiverByID returns a caregiver by id
func (p *Postgres) GetCaregiverByID(ctx context.Context, id string) (*types.Caregiver, error) {
	query := `SELECT` + selectCaregiverColumns + ` FROM caregivers WHERE id = $1`
	caregiver, err := scanCaregiver(p.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "caregiver not found: "+id)
	}
	if err != nil {
		return nil, storeErr("get caregiver", err)
	}
	return caregiver, nil
}

// UpdateCaregiver replaces a caregiver row
func (p *Postgres) UpdateCaregiver(ctx context.Context, caregiver *types.Caregiver) error {
	address, err := marshalColumn(caregiver.Address)
	if err != nil {
		return err
	}
	skills, err := marshalColumn(caregiver.Skills)
	if err != nil {
		return err
	}
	transport, err := marshalColumn(caregiver.Transportation)
	if err != nil {
		return err
	}
	certs, err := marshalColumn(caregiver.Certifications)
	if err != nil {
		return err
	}
	languages, err := marshalColumn(caregiver.Languages)
	if err != nil {
		return err
	}

	query := `
		UPDATE caregivers SET
			name = $2, email = $3, phone = $4, address = $5, skills = $6,
			transportation = $7, years_experience = $8, certifications = $9,
			languages = $10, gender = $11, is_active = $12, updated_at = NOW()
		WHERE id = $1`

	result, err := p.db.ExecContext(ctx, query,
		caregiver.ID, caregiver.Name, caregiver.Email, caregiver.Phone,
		address, skills, transport, caregiver.YearsExperience, certs,
		languages, caregiver.Gender, caregiver.IsActive,
	)
	if err != nil {
		return storeErr("update caregiver", err)
	}
	return requireRowAffected(result, "caregiver not found: "+caregiver.ID)
}

// DeleteCaregiver removes a caregiver; availability cascades
func (p *Postgres) DeleteCaregiver(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM caregivers WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete caregiver", err)
	}
	return requireRowAffected(result, "caregiver not found: "+id)
}

// GetCaregivers lists caregivers, optionally only active ones
func (p *Postgres) GetCaregivers(ctx context.Context, activeOnly bool) ([]*types.Caregiver, error) {
	query := `SELECT` + selectCaregiverColumns + ` FROM caregivers`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("list caregivers", err)
	}
	defer rows.Close()

	var caregivers []*types.Caregiver
	for rows.Next() {
		caregiver, err := scanCaregiver(rows)
		if err != nil {
			return nil, storeErr("scan caregiver", err)
		}
		caregivers = append(caregivers, caregiver)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list caregivers", err)
	}
	return caregivers, nil
}

// GetAvailability returns a caregiver's availability record. A caregiver
// without a stored record gets an empty one.
func (p *Postgres) GetAvailability(ctx context.Context, caregiverID string) (*types.Availability, error) {
	query := `
		SELECT caregiver_id, regular_schedule, time_off, updated_at
		FROM caregiver_availability WHERE caregiver_id = $1`

	var avail types.Availability
	var schedule, timeOff []byte
	err := p.db.QueryRowContext(ctx, query, caregiverID).Scan(
		&avail.CaregiverID, &schedule, &timeOff, &avail.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		if _, err := p.GetCaregiverByID(ctx, caregiverID); err != nil {
			return nil, err
		}
		return &types.Availability{CaregiverID: caregiverID}, nil
	}
	if err != nil {
		return nil, storeErr("get availability", err)
	}
	if err := unmarshalColumn(schedule, &avail.RegularSchedule); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(timeOff, &avail.TimeOff); err != nil {
		return nil, err
	}
	return &avail, nil
}

// PutAvailability upserts a caregiver's availability record
func (p *Postgres) PutAvailability(ctx context.Context, availability *types.Availability) error {
	schedule, err := marshalColumn(availability.RegularSchedule)
	if err != nil {
		return err
	}
	timeOff, err := marshalColumn(availability.TimeOff)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO caregiver_availability (caregiver_id, regular_schedule, time_off, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (caregiver_id) DO UPDATE SET
			regular_schedule = EXCLUDED.regular_schedule,
			time_off = EXCLUDED.time_off,
			updated_at = NOW()`

	if _, err := p.db.ExecContext(ctx, query, availability.CaregiverID, schedule, timeOff); err != nil {
		return storeErr("put availability", err)
	}
	return nil
}

const selectShiftColumns = `
	id, client_id, caregiver_id, shift_date, start_time, end_time, status,
	is_recurring, day_of_week, recurrence, recurrence_start, version,
	created_at, updated_at`

func scanShift(row interface{ Scan(...interface{}) error }) (*types.Shift, error) {
	var shift types.Shift
	var dayOfWeek sql.NullInt64
	var recurrenceStart sql.NullTime
	err := row.Scan(
		&shift.ID, &shift.ClientID, &shift.CaregiverID, &shift.Date,
		&shift.StartTime, &shift.EndTime, &shift.Status, &shift.IsRecurring,
		&dayOfWeek, &shift.Recurrence, &recurrenceStart, &shift.Version,
		&shift.CreatedAt, &shift.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if dayOfWeek.Valid {
		day := int(dayOfWeek.Int64)
		shift.DayOfWeek = &day
	}
	if recurrenceStart.Valid {
		start := recurrenceStart.Time
		shift.RecurrenceStart = &start
	}
	return &shift, nil
}

// CreateShift inserts a new shift at version 1
func (p *Postgres) CreateShift(ctx context.Context, shift *types.Shift) error {
	if shift.Version == 0 {
		shift.Version = 1
	}

	query := `
		INSERT INTO shifts (
			id, client_id, caregiver_id, shift_date, start_time, end_time,
			status, is_recurring, day_of_week, recurrence, recurrence_start,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	var dayOfWeek interface{}
	if shift.DayOfWeek != nil {
		dayOfWeek = *shift.DayOfWeek
	}
	var recurrenceStart interface{}
	if shift.RecurrenceStart != nil {
		recurrenceStart = *shift.RecurrenceStart
	}

	_, err := p.db.ExecContext(ctx, query,
		shift.ID, shift.ClientID, shift.CaregiverID, shift.Date,
		shift.StartTime, shift.EndTime, shift.Status, shift.IsRecurring,
		dayOfWeek, shift.Recurrence, recurrenceStart, shift.Version,
		shift.CreatedAt, shift.UpdatedAt,
	)
	if err != nil {
		return storeErr("create shift", err)
	}
	return nil
}

// GetShiftByID returns a shift by id
func (p *Postgres) GetShiftByID(ctx context.Context, id string) (*types.Shift, error) {
	query := `SELECT` + selectShiftColumns + ` FROM shifts WHERE id = $1`
	shift, err := scanShift(p.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "shift not found: "+id)
	}
	if err != nil {
		return nil, storeErr("get shift", err)
	}
	return shift, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// updateShift runs the versioned partial update against db or a transaction
func (p *Postgres) updateShift(ctx context.Context, ex execer, id string, expectedVersion int, updates *types.ShiftUpdates) error {
	set := "version = version + 1, updated_at = NOW()"
	args := []interface{}{id, expectedVersion}
	next := 3
	if updates.CaregiverID != nil {
		set += fmt.Sprintf(", caregiver_id = $%d", next)
		args = append(args, *updates.CaregiverID)
		next++
	}
	if updates.Date != nil {
		set += fmt.Sprintf(", shift_date = $%d", next)
		args = append(args, types.Midnight(*updates.Date))
		next++
	}
	if updates.StartTime != nil {
		set += fmt.Sprintf(", start_time = $%d", next)
		args = append(args, *updates.StartTime)
		next++
	}
	if updates.EndTime != nil {
		set += fmt.Sprintf(", end_time = $%d", next)
		args = append(args, *updates.EndTime)
		next++
	}
	if updates.Status != nil {
		set += fmt.Sprintf(", status = $%d", next)
		args = append(args, *updates.Status)
		next++
	}

	query := fmt.Sprintf(`UPDATE shifts SET %s WHERE id = $1 AND version = $2`, set)
	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return storeErr("update shift", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("update shift", err)
	}
	if affected == 0 {
		// Either missing or modified concurrently; disambiguate.
		if _, err := p.GetShiftByID(ctx, id); err != nil {
			return err
		}
		return types.NewConcurrencyError(types.ErrCodeStaleVersion, "shift was modified by another operation")
	}
	return nil
}

// UpdateShift applies a partial update guarded by an optimistic version check
func (p *Postgres) UpdateShift(ctx context.Context, id string, expectedVersion int, updates *types.ShiftUpdates) error {
	return p.updateShift(ctx, p.db, id, expectedVersion, updates)
}

// DeleteShift removes a shift
func (p *Postgres) DeleteShift(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM shifts WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete shift", err)
	}
	return requireRowAffected(result, "shift not found: "+id)
}

// GetShifts lists shifts matching the filters, ordered by date then start
func (p *Postgres) GetShifts(ctx context.Context, filters *types.ShiftFilters) ([]*types.Shift, error) {
	query := `SELECT` + selectShiftColumns + ` FROM shifts WHERE 1=1`
	args := []interface{}{}
	next := 1

	if filters.ClientID != "" {
		query += fmt.Sprintf(` AND client_id = $%d`, next)
		args = append(args, filters.ClientID)
		next++
	}
	if filters.CaregiverID != "" {
		query += fmt.Sprintf(` AND caregiver_id = $%d`, next)
		args = append(args, filters.CaregiverID)
		next++
	}
	if filters.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, next)
		args = append(args, filters.Status)
		next++
	}
	if !filters.FromDate.IsZero() {
		query += fmt.Sprintf(` AND shift_date >= $%d`, next)
		args = append(args, types.Midnight(filters.FromDate))
		next++
	}
	if !filters.ToDate.IsZero() {
		query += fmt.Sprintf(` AND shift_date <= $%d`, next)
		args = append(args, types.Midnight(filters.ToDate))
		next++
	}

	query += ` ORDER BY shift_date, start_time, id`
	if filters.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, next)
		args = append(args, filters.Limit)
		next++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, next)
		args = append(args, filters.Offset)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list shifts", err)
	}
	defer rows.Close()

	var shifts []*types.Shift
	for rows.Next() {
		shift, err := scanShift(rows)
		if err != nil {
			return nil, storeErr("scan shift", err)
		}
		shifts = append(shifts, shift)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list shifts", err)
	}
	return shifts, nil
}

// GetCaregiverShifts lists a caregiver's shifts on a given date
func (p *Postgres) GetCaregiverShifts(ctx context.Context, caregiverID string, date time.Time) ([]*types.Shift, error) {
	return p.GetShifts(ctx, &types.ShiftFilters{
		CaregiverID: caregiverID,
		FromDate:    date,
		ToDate:      date,
	})
}

// CreateConflict inserts a detected conflict
func (p *Postgres) CreateConflict(ctx context.Context, conflict *types.Conflict) error {
	shiftIDs, err := marshalColumn(conflict.ShiftIDs)
	if err != nil {
		return err
	}
	caregiverIDs, err := marshalColumn(conflict.CaregiverIDs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO conflicts (
			id, shift_ids, type, severity, client_id, caregiver_ids,
			description, detected_at, status, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = p.db.ExecContext(ctx, query,
		conflict.ID, shiftIDs, conflict.Type, conflict.Severity,
		conflict.ClientID, caregiverIDs, conflict.Description,
		conflict.DetectedAt, conflict.Status, conflict.ResolvedAt,
	)
	if err != nil {
		return storeErr("create conflict", err)
	}
	return nil
}

const selectConflictColumns = `
	id, shift_ids, type, severity, client_id, caregiver_ids,
	description, detected_at, status, resolved_at`

func scanConflict(row interface{ Scan(...interface{}) error }) (*types.Conflict, error) {
	var conflict types.Conflict
	var shiftIDs, caregiverIDs []byte
	var resolvedAt sql.NullTime
	err := row.Scan(
		&conflict.ID, &shiftIDs, &conflict.Type, &conflict.Severity,
		&conflict.ClientID, &caregiverIDs, &conflict.Description,
		&conflict.DetectedAt, &conflict.Status, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalColumn(shiftIDs, &conflict.ShiftIDs); err != nil {
		return nil, err
	}
	if err := unmarshalColumn(caregiverIDs, &conflict.CaregiverIDs); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		conflict.ResolvedAt = &t
	}
	return &conflict, nil
}

// GetConflictByID returns a conflict by id
func (p *Postgres) GetConflictByID(ctx context.Context, id string) (*types.Conflict, error) {
	query := `SELECT` + selectConflictColumns + ` FROM conflicts WHERE id = $1`
	conflict, err := scanConflict(p.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "conflict not found: "+id)
	}
	if err != nil {
		return nil, storeErr("get conflict", err)
	}
	return conflict, nil
}

// GetConflicts lists conflicts, optionally filtered by status
func (p *Postgres) GetConflicts(ctx context.Context, status types.ConflictStatus) ([]*types.Conflict, error) {
	query := `SELECT` + selectConflictColumns + ` FROM conflicts`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list conflicts", err)
	}
	defer rows.Close()

	var conflicts []*types.Conflict
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, storeErr("scan conflict", err)
		}
		conflicts = append(conflicts, conflict)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list conflicts", err)
	}
	return conflicts, nil
}

// ApplyResolution applies the shift changes, marks the conflict resolved
// and appends the history entry in a single transaction.
func (p *Postgres) ApplyResolution(ctx context.Context, conflictID string, changes []types.ShiftChange, entry *types.ResolutionHistoryEntry) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin resolution", err)
	}
	defer tx.Rollback()

	var status types.ConflictStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM conflicts WHERE id = $1 FOR UPDATE`, conflictID).Scan(&status)
	if err == sql.ErrNoRows {
		return types.NewNotFoundError(types.ErrCodeNotFound, "conflict not found: "+conflictID)
	}
	if err != nil {
		return storeErr("lock conflict", err)
	}
	if status != types.ConflictPending {
		return types.NewConflictError(types.ErrCodeAlreadyResolved, "conflict is already resolved")
	}

	for _, change := range changes {
		updates := change.Updates
		if err := p.updateShift(ctx, tx, change.ShiftID, change.ExpectedVersion, &updates); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conflicts SET status = $2, resolved_at = $3 WHERE id = $1`,
		conflictID, types.ConflictResolved, entry.ResolvedAt,
	); err != nil {
		return storeErr("resolve conflict", err)
	}

	snapshot, err := marshalColumn(entry.ShiftSnapshot)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resolution_history (
			id, conflict_id, method, option_id, resolved_by, notes,
			resolved_at, shift_snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.ConflictID, entry.Method, entry.OptionID,
		entry.ResolvedBy, entry.Notes, entry.ResolvedAt, snapshot,
	); err != nil {
		return storeErr("record resolution", err)
	}

	if err := tx.Commit(); err != nil {
		return storeErr("commit resolution", err)
	}
	return nil
}

// GetResolutionHistory lists history entries, optionally for one conflict
func (p *Postgres) GetResolutionHistory(ctx context.Context, conflictID string) ([]*types.ResolutionHistoryEntry, error) {
	query := `
		SELECT id, conflict_id, method, option_id, resolved_by, notes,
			resolved_at, shift_snapshot
		FROM resolution_history`
	args := []interface{}{}
	if conflictID != "" {
		query += ` WHERE conflict_id = $1`
		args = append(args, conflictID)
	}
	query += ` ORDER BY resolved_at, id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list resolution history", err)
	}
	defer rows.Close()

	var entries []*types.ResolutionHistoryEntry
	for rows.Next() {
		var entry types.ResolutionHistoryEntry
		var snapshot []byte
		if err := rows.Scan(
			&entry.ID, &entry.ConflictID, &entry.Method, &entry.OptionID,
			&entry.ResolvedBy, &entry.Notes, &entry.ResolvedAt, &snapshot,
		); err != nil {
			return nil, storeErr("scan resolution history", err)
		}
		if err := unmarshalColumn(snapshot, &entry.ShiftSnapshot); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list resolution history", err)
	}
	return entries, nil
}

// CreateMatchingHistory inserts a matching history entry
func (p *Postgres) CreateMatchingHistory(ctx context.Context, entry *types.MatchingHistoryEntry) error {
	query := `
		INSERT INTO matching_history (
			id, shift_id, client_id, old_caregiver_id, new_caregiver_id,
			old_status, manual, applied_by, applied_at, reverted,
			reverted_at, reverted_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := p.db.ExecContext(ctx, query,
		entry.ID, entry.ShiftID, entry.ClientID, entry.OldCaregiverID,
		entry.NewCaregiverID, entry.OldStatus, entry.Manual, entry.AppliedBy,
		entry.AppliedAt, entry.Reverted, entry.RevertedAt, entry.RevertedBy,
	)
	if err != nil {
		return storeErr("create matching history", err)
	}
	return nil
}

// GetMatchingHistoryByID returns a matching history entry by id
func (p *Postgres) GetMatchingHistoryByID(ctx context.Context, id string) (*types.MatchingHistoryEntry, error) {
	query := `
		SELECT id, shift_id, client_id, old_caregiver_id, new_caregiver_id,
			old_status, manual, applied_by, applied_at, reverted,
			reverted_at, reverted_by
		FROM matching_history WHERE id = $1`

	var entry types.MatchingHistoryEntry
	var revertedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID, &entry.ShiftID, &entry.ClientID, &entry.OldCaregiverID,
		&entry.NewCaregiverID, &entry.OldStatus, &entry.Manual, &entry.AppliedBy,
		&entry.AppliedAt, &entry.Reverted, &revertedAt, &entry.RevertedBy,
	)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "matching history not found: "+id)
	}
	if err != nil {
		return nil, storeErr("get matching history", err)
	}
	if revertedAt.Valid {
		t := revertedAt.Time
		entry.RevertedAt = &t
	}
	return &entry, nil
}

// MarkMatchingHistoryReverted flags an entry as reverted
func (p *Postgres) MarkMatchingHistoryReverted(ctx context.Context, id, revertedBy string, revertedAt time.Time) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE matching_history SET reverted = TRUE, reverted_at = $2, reverted_by = $3 WHERE id = $1`,
		id, revertedAt, revertedBy,
	)
	if err != nil {
		return storeErr("mark matching history reverted", err)
	}
	return requireRowAffected(result, "matching history not found: "+id)
}

func requireRowAffected(result sql.Result, notFoundMsg string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, notFoundMsg)
	}
	return nil
}
