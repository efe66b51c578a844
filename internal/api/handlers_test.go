package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balkashynov/qcscan/internal/app"
	"github.com/balkashynov/qcscan/internal/config"
	"github.com/balkashynov/qcscan/internal/db"
	"github.com/balkashynov/qcscan/internal/inspection"
	"github.com/balkashynov/qcscan/internal/models"
	"github.com/balkashynov/qcscan/internal/session"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	conn, err := db.OpenMemory()
	require.NoError(t, err)

	a, err := app.New(cfg, zerolog.Nop(), conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return NewServer(a).NewRouter()
}

// noCooldown lets a test scan the same code twice in a row
func noCooldown(cfg *config.Config) {
	cfg.Scanner.ScanCooldownMs = 0
	cfg.Scanner.RepeatWindowMs = 0
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func createSession(t *testing.T, h http.Handler, workerID string) string {
	t.Helper()
	rec := do(t, h, "POST", "/sessions", WorkerRequest{WorkerID: workerID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp SessionResponse
	decode(t, rec, &resp)
	require.NotNil(t, resp.Session)
	return resp.Session.ID
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSessionLifecycle(t *testing.T) {
	h := newTestServer(t, nil)

	sid := createSession(t, h, "w1")

	rec := do(t, h, "POST", "/sessions", WorkerRequest{WorkerID: "w1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, "POST", "/sessions", WorkerRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "GET", "/sessions/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap session.Snapshot
	decode(t, rec, &snap)
	assert.True(t, snap.Session.Active)
	assert.Zero(t, snap.ActiveCount)

	rec = do(t, h, "POST", "/sessions/"+sid+"/restart", WorkerRequest{WorkerID: "w2"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, "POST", "/sessions/"+sid+"/end", WorkerRequest{WorkerID: "w1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var ended SessionResponse
	decode(t, rec, &ended)
	assert.False(t, ended.Session.Active)
	assert.NotNil(t, ended.Session.EndedAt)

	// ended sessions stay readable
	rec = do(t, h, "GET", "/sessions/"+sid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &snap)
	assert.False(t, snap.Session.Active)

	rec = do(t, h, "POST", "/sessions/"+sid+"/restart", WorkerRequest{WorkerID: "w1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, "GET", "/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogin(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, "POST", "/sessions/login", WorkerRequest{WorkerID: "w1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var first SessionResponse
	decode(t, rec, &first)
	assert.False(t, first.Restarted)

	rec = do(t, h, "POST", "/sessions/"+first.Session.ID+"/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, "POST", "/sessions/login", WorkerRequest{WorkerID: "w1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var second SessionResponse
	decode(t, rec, &second)
	assert.True(t, second.Restarted)
	assert.Equal(t, first.Session.ID, second.Session.ID)

	rec = do(t, h, "GET", "/sessions/"+first.Session.ID+"/items?status=aborted", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []models.InspectionItem
	decode(t, rec, &items)
	require.Len(t, items, 1)
	assert.Equal(t, "ABC123", items[0].Code)
}

func TestScanFlow(t *testing.T) {
	h := newTestServer(t, noCooldown)
	sid := createSession(t, h, "w1")

	rec := do(t, h, "POST", "/sessions/"+sid+"/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry inspection.Outcome
	decode(t, rec, &entry)
	assert.Equal(t, inspection.OutcomeEntranceStarted, entry.Type)
	require.NotNil(t, entry.Item)

	rec = do(t, h, "GET", "/sessions/"+sid, nil)
	var snap session.Snapshot
	decode(t, rec, &snap)
	assert.Equal(t, []string{"ABC123"}, snap.PendingCodes)

	rec = do(t, h, "POST", "/sessions/"+sid+"/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var exit inspection.Outcome
	decode(t, rec, &exit)
	assert.Equal(t, inspection.OutcomeExitCompleted, exit.Type)

	// completed today, so a third scan is refused
	rec = do(t, h, "POST", "/sessions/"+sid+"/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r3"})
	require.Equal(t, http.StatusOK, rec.Code)
	var again inspection.Outcome
	decode(t, rec, &again)
	assert.Equal(t, inspection.OutcomeAlreadyCompleted, again.Type)

	rec = do(t, h, "GET", "/sessions/"+sid+"/items?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var items []models.InspectionItem
	decode(t, rec, &items)
	require.Len(t, items, 1)
	assert.True(t, items[0].Completed)

	rec = do(t, h, "GET", "/items/"+strconv.FormatUint(uint64(entry.Item.ID), 10)+"/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []models.AuditEvent
	decode(t, rec, &events)
	require.Len(t, events, 2)
	assert.Equal(t, models.AuditCreated, events[0].Action)
	assert.Equal(t, models.AuditCompleted, events[1].Action)
}

func TestScanRejections(t *testing.T) {
	h := newTestServer(t, nil)
	sid := createSession(t, h, "w1")

	rec := do(t, h, "POST", "/sessions/"+sid+"/scans", ScanRequest{Code: "AB", ScanRecordID: "r1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, "POST", "/sessions/missing/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "is not active")

	rec = do(t, h, "POST", "/sessions/"+sid+"/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, "POST", "/sessions/"+sid+"/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r2"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var suppressed SuppressedResponse
	decode(t, rec, &suppressed)
	assert.True(t, suppressed.Suppressed)
	assert.Equal(t, "immediate_repeat", suppressed.Reason)

	req := httptest.NewRequest("POST", "/sessions/"+sid+"/scans", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListItemsRejectsUnknownStatus(t *testing.T) {
	h := newTestServer(t, nil)
	sid := createSession(t, h, "w1")

	rec := do(t, h, "GET", "/sessions/"+sid+"/items?status=pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAbortAndQuality(t *testing.T) {
	h := newTestServer(t, noCooldown)
	sid := createSession(t, h, "w1")

	rec := do(t, h, "POST", "/sessions/"+sid+"/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry inspection.Outcome
	decode(t, rec, &entry)
	itemPath := "/items/" + strconv.FormatUint(uint64(entry.Item.ID), 10)

	rating := 4
	rec = do(t, h, "POST", itemPath+"/quality", QualityRequest{Rating: &rating, DefectsFound: true, DefectDescription: "scratch", Priority: "high"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var item models.InspectionItem
	decode(t, rec, &item)
	require.NotNil(t, item.Rating)
	assert.Equal(t, 4, *item.Rating)
	assert.Equal(t, models.PriorityHigh, item.Priority)

	bad := 9
	rec = do(t, h, "POST", itemPath+"/quality", QualityRequest{Rating: &bad})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", itemPath+"/quality", QualityRequest{Priority: "urgent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", itemPath+"/abort", AbortRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"aborted":true}`, rec.Body.String())

	rec = do(t, h, "POST", itemPath+"/abort", AbortRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"aborted":false}`, rec.Body.String())

	// quality is only writable while active
	rec = do(t, h, "POST", itemPath+"/quality", QualityRequest{Rating: &rating})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, "POST", "/items/abc/abort", AbortRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "GET", "/items/999/audit", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// the aborted code can be scanned in again
	rec = do(t, h, "POST", "/sessions/"+sid+"/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r2"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	sid := createSession(t, h, "w1")
	do(t, h, "POST", "/sessions/"+sid+"/scans", ScanRequest{Code: "ABC123", ScanRecordID: "r1"})

	rec := do(t, h, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `qcscan_scans_total{outcome="entrance_started"} 1`)
	assert.Contains(t, rec.Body.String(), "qcscan_active_sessions 1")
}
