package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/carelink/homecare-scheduler/pkg/auth"
	"github.com/carelink/homecare-scheduler/pkg/interfaces"
	"github.com/carelink/homecare-scheduler/pkg/monitoring"
	"github.com/carelink/homecare-scheduler/pkg/types"
)

// setupRoutes configures HTTP routes for the scheduler service
func (s *Service) setupRoutes(router *mux.Router) {
	router.Use(monitoring.HTTPMiddleware(s.logger))

	api := router.PathPrefix("/api/v1").Subrouter()

	// Matching routes
	protected := api.NewRoute().Subrouter()
	protected.Use(s.verifier.Middleware)
	protected.HandleFunc("/matching/run", s.runMatchingHandler).Methods("POST")
	protected.HandleFunc("/matching/apply", s.applyMatchesHandler).Methods("POST")
	protected.HandleFunc("/matching/revert", s.revertMatchHandler).Methods("POST")
	protected.HandleFunc("/matching/override", s.overrideMatchHandler).Methods("POST")

	// Conflict routes
	api.HandleFunc("/conflicts", s.getConflictsHandler).Methods("GET")
	api.HandleFunc("/conflicts/history", s.getResolutionHistoryHandler).Methods("GET")
	api.HandleFunc("/conflicts/{id}/options", s.getOptionsHandler).Methods("GET")
	protected.HandleFunc("/conflicts/scan", s.scanConflictsHandler).Methods("POST")
	protected.HandleFunc("/conflicts/resolve", s.resolveConflictHandler).Methods("POST")
	protected.HandleFunc("/conflicts/override", s.overrideConflictHandler).Methods("POST")

	// Client routes
	protected.HandleFunc("/clients", s.createClientHandler).Methods("POST")
	api.HandleFunc("/clients", s.getClientsHandler).Methods("GET")
	api.HandleFunc("/clients/{id}", s.getClientHandler).Methods("GET")
	protected.HandleFunc("/clients/{id}", s.updateClientHandler).Methods("PUT")
	protected.HandleFunc("/clients/{id}", s.deleteClientHandler).Methods("DELETE")

	// Caregiver routes
	protected.HandleFunc("/caregivers", s.createCaregiverHandler).Methods("POST")
	api.HandleFunc("/caregivers", s.getCaregiversHandler).Methods("GET")
	api.HandleFunc("/caregivers/{id}", s.getCaregiverHandler).Methods("GET")
	protected.HandleFunc("/caregivers/{id}", s.updateCaregiverHandler).Methods("PUT")
	protected.HandleFunc("/caregivers/{id}", s.deleteCaregiverHandler).Methods("DELETE")
	api.HandleFunc("/caregivers/{id}/availability", s.checkAvailabilityHandler).Methods("GET")
	protected.HandleFunc("/caregivers/{id}/availability", s.putAvailabilityHandler).Methods("PUT")

	// Shift routes
	protected.HandleFunc("/shifts", s.createShiftHandler).Methods("POST")
	api.HandleFunc("/shifts", s.getShiftsHandler).Methods("GET")
	api.HandleFunc("/shifts/{id}", s.getShiftHandler).Methods("GET")
	protected.HandleFunc("/shifts/{id}", s.updateShiftHandler).Methods("PUT")
	protected.HandleFunc("/shifts/{id}", s.deleteShiftHandler).Methods("DELETE")

	// Health and metrics
	api.Handle("/health", s.health.Handler()).Methods("GET")
	if s.config.Monitoring.Enabled {
		router.Handle(s.config.Monitoring.MetricsPath, monitoring.Handler()).Methods("GET")
	}

	s.logger.Info("Scheduler service routes configured")
}

// runMatchingHandler runs a batch matching session
func (s *Service) runMatchingHandler(w http.ResponseWriter, r *http.Request) {
	criteria := s.config.Matching.DefaultCriteria()
	if r.ContentLength != 0 {
		var req struct {
			Criteria *types.MatchCriteria `json:"criteria"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
			return
		}
		if req.Criteria != nil {
			criteria = *req.Criteria
		}
	}

	results, failures, err := s.matcher.Run(r.Context(), criteria)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":  results,
		"failures": failures,
	})
}

// applyMatchesHandler commits match results as assignments
func (s *Service) applyMatchesHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Matches []types.MatchResult `json:"matches"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if len(req.Matches) == 0 {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "matches are required", nil))
		return
	}

	historyIDs, failures, err := s.matcher.Apply(r.Context(), req.Matches, auth.ActorFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied":     len(historyIDs),
		"history_ids": historyIDs,
		"failures":    failures,
	})
}

// revertMatchHandler restores the pre-match state of an applied match
func (s *Service) revertMatchHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HistoryID string `json:"history_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.HistoryID == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "history_id is required", nil))
		return
	}

	if err := s.matcher.Revert(r.Context(), req.HistoryID, auth.ActorFromContext(r.Context())); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// overrideMatchHandler records an operator-chosen match
func (s *Service) overrideMatchHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShiftID     string `json:"shift_id"`
		CaregiverID string `json:"caregiver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.ShiftID == "" || req.CaregiverID == "" {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "shift_id and caregiver_id are required", nil))
		return
	}

	match, err := s.matcher.Override(r.Context(), req.ShiftID, req.CaregiverID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, match)
}

// getConflictsHandler lists conflicts, optionally filtered by status
func (s *Service) getConflictsHandler(w http.ResponseWriter, r *http.Request) {
	status := types.ConflictStatus(r.URL.Query().Get("status"))
	conflicts, err := s.conflicts.GetConflicts(r.Context(), status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []*types.Conflict{}
	}
	s.writeJSON(w, http.StatusOK, conflicts)
}

// scanConflictsHandler runs an on-demand conflict scan
func (s *Service) scanConflictsHandler(w http.ResponseWriter, r *http.Request) {
	detected, err := s.conflicts.Scan(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"detected":  len(detected),
		"conflicts": detected,
	})
}

// getOptionsHandler lists the executable resolution options for a conflict
func (s *Service) getOptionsHandler(w http.ResponseWriter, r *http.Request) {
	conflictID := mux.Vars(r)["id"]
	options, err := s.conflicts.Options(r.Context(), conflictID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if options == nil {
		options = []types.ResolutionOption{}
	}
	s.writeJSON(w, http.StatusOK, options)
}

// resolveConflictHandler applies a resolution option
func (s *Service) resolveConflictHandler(w http.ResponseWriter, r *http.Request) {
	var req types.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	req.ResolvedBy = auth.ActorFromContext(r.Context())

	entry, err := s.conflicts.Resolve(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

// overrideConflictHandler accepts a conflict without schedule changes
func (s *Service) overrideConflictHandler(w http.ResponseWriter, r *http.Request) {
	var req types.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	req.UserID = auth.ActorFromContext(r.Context())

	entry, err := s.conflicts.OverrideResolve(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

// getResolutionHistoryHandler lists resolution history entries
func (s *Service) getResolutionHistoryHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.conflicts.History(r.Context(), r.URL.Query().Get("conflict_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*types.ResolutionHistoryEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// checkAvailabilityHandler reports whether a caregiver is free for a window
func (s *Service) checkAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	caregiverID := mux.Vars(r)["id"]
	q := r.URL.Query()

	date, err := time.Parse("2006-01-02", q.Get("date"))
	if err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "date must be YYYY-MM-DD", nil))
		return
	}
	start, end := q.Get("start"), q.Get("end")
	if _, err := types.ParseClock(start); err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := types.ParseClock(end); err != nil {
		s.writeError(w, err)
		return
	}

	requiresCar, _ := strconv.ParseBool(q.Get("requires_car"))
	available, reasons, err := s.resolver.IsAvailable(r.Context(), caregiverID, date, start, end,
		interfaces.AvailabilityOptions{RequiresCar: requiresCar})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if reasons == nil {
		reasons = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"available": available,
		"reasons":   reasons,
	})
}

// putAvailabilityHandler replaces a caregiver's availability record
func (s *Service) putAvailabilityHandler(w http.ResponseWriter, r *http.Request) {
	var avail types.Availability
	if err := json.NewDecoder(r.Body).Decode(&avail); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	avail.CaregiverID = mux.Vars(r)["id"]
	if err := avail.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.repository.PutAvailability(r.Context(), &avail); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, avail)
}

// createClientHandler creates a new client
func (s *Service) createClientHandler(w http.ResponseWriter, r *http.Request) {
	var client types.Client
	if err := json.NewDecoder(r.Body).Decode(&client); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if err := client.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	if client.ServiceStatus == "" {
		client.ServiceStatus = types.ServiceStatusActive
	}
	client.CreatedAt = time.Now()
	client.UpdatedAt = client.CreatedAt

	if err := s.repository.CreateClient(r.Context(), &client); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, client)
}

// getClientHandler returns a client by id
func (s *Service) getClientHandler(w http.ResponseWriter, r *http.Request) {
	client, err := s.repository.GetClientByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, client)
}

// getClientsHandler lists clients
func (s *Service) getClientsHandler(w http.ResponseWriter, r *http.Request) {
	status := types.ServiceStatus(r.URL.Query().Get("status"))
	clients, err := s.repository.GetClients(r.Context(), status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if clients == nil {
		clients = []*types.Client{}
	}
	s.writeJSON(w, http.StatusOK, clients)
}

// updateClientHandler replaces a client
func (s *Service) updateClientHandler(w http.ResponseWriter, r *http.Request) {
	var client types.Client
	if err := json.NewDecoder(r.Body).Decode(&client); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	client.ID = mux.Vars(r)["id"]
	if err := client.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.repository.UpdateClient(r.Context(), &client); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, client)
}

// deleteClientHandler removes a client
func (s *Service) deleteClientHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.repository.DeleteClient(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// createCaregiverHandler creates a new caregiver
func (s *Service) createCaregiverHandler(w http.ResponseWriter, r *http.Request) {
	var caregiver types.Caregiver
	if err := json.NewDecoder(r.Body).Decode(&caregiver); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if err := caregiver.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if caregiver.ID == "" {
		caregiver.ID = uuid.New().String()
	}
	caregiver.CreatedAt = time.Now()
	caregiver.UpdatedAt = caregiver.CreatedAt

	if err := s.repository.CreateCaregiver(r.Context(), &caregiver); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, caregiver)
}

// getCaregiverHandler returns a caregiver by id
func (s *Service) getCaregiverHandler(w http.ResponseWriter, r *http.Request) {
	caregiver, err := s.repository.GetCaregiverByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, caregiver)
}

// getCaregiversHandler lists caregivers
func (s *Service) getCaregiversHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	caregivers, err := s.repository.GetCaregivers(r.Context(), activeOnly)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if caregivers == nil {
		caregivers = []*types.Caregiver{}
	}
	s.writeJSON(w, http.StatusOK, caregivers)
}

// updateCaregiverHandler replaces a caregiver
func (s *Service) updateCaregiverHandler(w http.ResponseWriter, r *http.Request) {
	var caregiver types.Caregiver
	if err := json.NewDecoder(r.Body).Decode(&caregiver); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	caregiver.ID = mux.Vars(r)["id"]
	if err := caregiver.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.repository.UpdateCaregiver(r.Context(), &caregiver); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, caregiver)
}

// deleteCaregiverHandler removes a caregiver
func (s *Service) deleteCaregiverHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.repository.DeleteCaregiver(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// createShiftHandler creates a new shift
func (s *Service) createShiftHandler(w http.ResponseWriter, r *http.Request) {
	var shift types.Shift
	if err := json.NewDecoder(r.Body).Decode(&shift); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if err := shift.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if shift.ID == "" {
		shift.ID = uuid.New().String()
	}
	if shift.Status == "" {
		shift.Status = types.ShiftNeedsAssignment
	}
	shift.Version = 1
	shift.CreatedAt = time.Now()
	shift.UpdatedAt = shift.CreatedAt

	if err := s.repository.CreateShift(r.Context(), &shift); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, shift)
}

// getShiftHandler returns a shift by id
func (s *Service) getShiftHandler(w http.ResponseWriter, r *http.Request) {
	shift, err := s.repository.GetShiftByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shift)
}

// getShiftsHandler lists shifts matching query filters
func (s *Service) getShiftsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := &types.ShiftFilters{
		ClientID:    q.Get("client_id"),
		CaregiverID: q.Get("caregiver_id"),
		Status:      types.ShiftStatus(q.Get("status")),
	}
	if from := q.Get("from"); from != "" {
		date, err := time.Parse("2006-01-02", from)
		if err != nil {
			s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "from must be YYYY-MM-DD", nil))
			return
		}
		filters.FromDate = date
	}
	if to := q.Get("to"); to != "" {
		date, err := time.Parse("2006-01-02", to)
		if err != nil {
			s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "to must be YYYY-MM-DD", nil))
			return
		}
		filters.ToDate = date
	}
	if limit := q.Get("limit"); limit != "" {
		filters.Limit, _ = strconv.Atoi(limit)
	}
	if offset := q.Get("offset"); offset != "" {
		filters.Offset, _ = strconv.Atoi(offset)
	}

	shifts, err := s.repository.GetShifts(r.Context(), filters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if shifts == nil {
		shifts = []*types.Shift{}
	}
	s.writeJSON(w, http.StatusOK, shifts)
}

// updateShiftHandler applies a versioned partial update to a shift
func (s *Service) updateShiftHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Version int                `json:"version"`
		Updates types.ShiftUpdates `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "invalid request body", nil))
		return
	}
	if req.Version <= 0 {
		s.writeError(w, types.NewValidationError(types.ErrCodeInvalidInput, "version is required", nil))
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.repository.UpdateShift(r.Context(), id, req.Version, &req.Updates); err != nil {
		s.writeError(w, err)
		return
	}

	shift, err := s.repository.GetShiftByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, shift)
}

// deleteShiftHandler removes a shift
func (s *Service) deleteShiftHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.repository.DeleteShift(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// writeJSON writes a JSON response with the given status
func (s *Service) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError maps a CoreError to its HTTP status and writes it
func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case types.IsErrorType(err, types.ErrorTypeValidation):
		status = http.StatusBadRequest
	case types.IsErrorType(err, types.ErrorTypeNotFound):
		status = http.StatusNotFound
	case types.IsErrorType(err, types.ErrorTypeConflict),
		types.IsErrorType(err, types.ErrorTypeConcurrency),
		types.IsErrorType(err, types.ErrorTypeMatchingInProgress):
		status = http.StatusConflict
	case types.IsErrorType(err, types.ErrorTypeStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{"error": err.Error()}
	var ce *types.CoreError
	if errors.As(err, &ce) {
		body = map[string]interface{}{
			"error":   ce.Message,
			"code":    ce.Code,
			"type":    ce.Type,
			"details": ce.Details,
		}
	}
	s.writeJSON(w, status, body)
}
