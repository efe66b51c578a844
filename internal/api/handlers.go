package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/balkashynov/qcscan/internal/db"
	"github.com/balkashynov/qcscan/internal/inspection"
	"github.com/balkashynov/qcscan/internal/models"
	"github.com/balkashynov/qcscan/internal/parser"
	"github.com/balkashynov/qcscan/internal/session"
)

type WorkerRequest struct {
	WorkerID string `json:"worker_id"`
}

type ScanRequest struct {
	Code         string `json:"code"`
	ScanRecordID string `json:"scan_record_id"`
}

type AbortRequest struct {
	Reason string `json:"reason"`
}

type QualityRequest struct {
	Rating            *int   `json:"rating"`
	DefectsFound      bool   `json:"defects_found"`
	DefectDescription string `json:"defect_description"`
	ReworkRequired    bool   `json:"rework_required"`
	Priority          string `json:"priority"`
}

type SessionResponse struct {
	Session   *models.WorkerSession `json:"session"`
	Restarted bool                  `json:"restarted,omitempty"`
	Aborted   int                   `json:"aborted,omitempty"`
}

type SuppressedResponse struct {
	Suppressed bool   `json:"suppressed"`
	Reason     string `json:"reason"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthHandler reports liveness
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateSessionHandler starts a session for a worker
func (s *Server) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req WorkerRequest
	if !decodeWorker(w, r, &req) {
		return
	}

	sess, err := s.app.Sessions.CreateSession(r.Context(), req.WorkerID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{Session: sess})
}

// LoginHandler creates a session, or restarts the worker's active one
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req WorkerRequest
	if !decodeWorker(w, r, &req) {
		return
	}

	sess, restarted, err := s.app.Sessions.Login(r.Context(), req.WorkerID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	status := http.StatusCreated
	if restarted {
		status = http.StatusOK
	}
	writeJSON(w, status, SessionResponse{Session: sess, Restarted: restarted})
}

// GetSessionHandler returns the session with its scan expectation
func (s *Server) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	snap, err := s.app.Sessions.Snapshot(r.Context(), id)
	if err == nil {
		writeJSON(w, http.StatusOK, snap)
		return
	}
	if !errors.Is(err, session.ErrSessionNotActive) {
		s.writeStoreError(w, err)
		return
	}

	// ended sessions are still readable
	sess, err := s.app.Store.GetSession(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot{Session: *sess, PendingCodes: []string{}})
}

// RestartSessionHandler aborts the session's active items and resets it
func (s *Server) RestartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req WorkerRequest
	if !decodeWorker(w, r, &req) {
		return
	}

	sess, aborted, err := s.app.Sessions.RestartSession(r.Context(), mux.Vars(r)["id"], req.WorkerID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: sess, Restarted: true, Aborted: aborted})
}

// EndSessionHandler aborts the session's active items and ends it
func (s *Server) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req WorkerRequest
	if !decodeWorker(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	aborted, err := s.app.Sessions.EndSession(r.Context(), id, req.WorkerID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	sess, err := s.app.Store.GetSession(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{Session: sess, Aborted: aborted})
}

// SubmitScanHandler runs a decoded scan through the ingestion pipeline.
// Suppressed duplicates answer 202 with the reason.
func (s *Server) SubmitScanHandler(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res := s.app.Scans.Submit(r.Context(), mux.Vars(r)["id"], req.Code, req.ScanRecordID)
	if !res.Accepted() {
		writeJSON(w, http.StatusAccepted, SuppressedResponse{Suppressed: true, Reason: string(res.Suppressed)})
		return
	}
	writeJSON(w, outcomeStatus(res.Outcome), res.Outcome)
}

// ListItemsHandler lists a session's items, optionally filtered by status
func (s *Server) ListItemsHandler(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", models.StatusActive, models.StatusCompleted, models.StatusAborted:
	default:
		writeError(w, http.StatusBadRequest, "status must be active, completed or aborted")
		return
	}

	items, err := s.app.Store.ListItems(r.Context(), mux.Vars(r)["id"], status)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// AbortItemHandler aborts a single active item
func (s *Server) AbortItemHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var req AbortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "aborted by operator"
	}

	aborted, err := s.app.Sessions.AbortItem(r.Context(), id, req.Reason)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"aborted": aborted})
}

// QualityHandler records quality fields on an active item
func (s *Server) QualityHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var req QualityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	priority := 0
	if req.Priority != "" {
		if !parser.IsValidPriority(req.Priority) {
			writeError(w, http.StatusBadRequest, "priority must be low, medium or high")
			return
		}
		priority = parser.PriorityToInt(req.Priority)
	}

	item, err := s.app.Machine.RecordQuality(r.Context(), id, inspection.Quality{
		Rating:            req.Rating,
		DefectsFound:      req.DefectsFound,
		DefectDescription: req.DefectDescription,
		ReworkRequired:    req.ReworkRequired,
		Priority:          priority,
	})
	if err != nil {
		switch {
		case errors.Is(err, inspection.ErrInvalidRating),
			errors.Is(err, inspection.ErrInvalidPriority),
			errors.Is(err, inspection.ErrReworkNotAllowed):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.writeStoreError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// AuditHandler returns the audit trail of an item
func (s *Server) AuditHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	if _, err := s.app.Store.GetItem(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}

	events, err := s.app.Store.AuditTrail(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// outcomeStatus maps an outcome to an HTTP status. Policy rejections are
// answered 200 since they are expected results.
func outcomeStatus(o inspection.Outcome) int {
	switch o.Type {
	case inspection.OutcomeEntranceStarted:
		return http.StatusCreated
	case inspection.OutcomeRateLimit:
		return http.StatusTooManyRequests
	case inspection.OutcomeEntranceError, inspection.OutcomeExitError:
		return http.StatusConflict
	case inspection.OutcomeError:
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, db.ErrDuplicateSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrWorkerMismatch):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrSessionNotActive), errors.Is(err, db.ErrSessionInactive):
		writeError(w, http.StatusConflict, "session is not active")
	case errors.Is(err, db.ErrItemNotActive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeWorker(w http.ResponseWriter, r *http.Request, req *WorkerRequest) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if req.WorkerID == "" {
		writeError(w, http.StatusBadRequest, "missing worker_id")
		return false
	}
	return true
}

func itemID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return uint(id), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
