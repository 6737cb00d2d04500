// Waymark - Geospatial Node Spawning and Reservation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waymark

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/waymark/internal/auth"
	"github.com/tomtom215/waymark/internal/engine"
	"github.com/tomtom215/waymark/internal/ingest"
	"github.com/tomtom215/waymark/internal/models"
	"github.com/tomtom215/waymark/internal/reservation"
)

// fakeEngine records the last call and returns err when set.
type fakeEngine struct {
	mu sync.Mutex

	err     error
	owner   string
	id      string
	sample  *models.LocationSample
	lat     *float64
	lng     *float64
	payload *models.MapPayload
}

func (f *fakeEngine) record(owner, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owner, f.id = owner, id
	return f.err
}

func (f *fakeEngine) UpdateLocation(_ context.Context, _ string, s *models.LocationSample) error {
	f.mu.Lock()
	f.sample = s
	f.mu.Unlock()
	return f.record(s.OwnerID, "")
}

func (f *fakeEngine) QueryNodes(_ context.Context, owner string, lat, lng float64) (*models.MapPayload, error) {
	if err := f.record(owner, fmt.Sprintf("%.4f,%.4f", lat, lng)); err != nil {
		return nil, err
	}
	if f.payload != nil {
		return f.payload, nil
	}
	return &models.MapPayload{PersonalNodes: []models.NodeView{}, Hotspots: []models.NodeView{}, Events: []models.NodeView{}}, nil
}

func (f *fakeEngine) Reserve(_ context.Context, owner, nodeID string) (*models.ReservationResult, error) {
	if err := f.record(owner, nodeID); err != nil {
		return nil, err
	}
	return &models.ReservationResult{ReservationID: "st-1", NodeID: nodeID, Status: models.StatusReserved}, nil
}

func (f *fakeEngine) Arrive(_ context.Context, owner, reservationID string, lat, lng *float64) (*models.ArrivalResult, error) {
	f.mu.Lock()
	f.lat, f.lng = lat, lng
	f.mu.Unlock()
	if err := f.record(owner, reservationID); err != nil {
		return nil, err
	}
	return &models.ArrivalResult{ReservationID: reservationID, Status: models.StatusArrived}, nil
}

func (f *fakeEngine) Collect(_ context.Context, owner, id string) (*models.CollectResult, error) {
	if err := f.record(owner, id); err != nil {
		return nil, err
	}
	return &models.CollectResult{ReservationID: id, Status: models.StatusCollected, Quality: models.QualityGreat, Rarity: models.RarityRare}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// envelope decodes APIResponse keeping data raw.
type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Error    *models.APIError `json:"error"`
	Metadata models.Metadata  `json:"metadata"`
}

func newTestRouter(t *testing.T, eng Engine, cfg *ChiMiddlewareConfig) http.Handler {
	t.Helper()
	if cfg == nil {
		cfg = DefaultChiMiddlewareConfig()
		cfg.RateLimitDisabled = true
	}
	h := NewHandler(eng, HandlerOptions{DB: fakePinger{}, Version: "test"})
	return NewRouter(h, auth.NewMiddleware(auth.NewHeaderAuthenticator()), cfg).SetupChi()
}

func do(t *testing.T, h http.Handler, method, path, owner, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if owner != "" {
		req.Header.Set(auth.OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestEngineErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{reservation.ErrNodeNotFound, http.StatusNotFound, "NODE_NOT_FOUND"},
		{reservation.ErrReservationNotFound, http.StatusNotFound, "RESERVATION_NOT_FOUND"},
		{reservation.ErrNodeExpired, http.StatusBadRequest, "NODE_EXPIRED"},
		{reservation.ErrAlreadyCollected, http.StatusBadRequest, "ALREADY_COLLECTED"},
		{reservation.ErrStateExpired, http.StatusBadRequest, "STATE_EXPIRED"},
		{reservation.ErrAlreadyArrived, http.StatusBadRequest, "ALREADY_ARRIVED"},
		{reservation.ErrNotArrived, http.StatusBadRequest, "NOT_ARRIVED"},
		{reservation.ErrGraceElapsed, http.StatusBadRequest, "GRACE_ELAPSED"},
		{reservation.ErrReservationLimit, http.StatusConflict, "RESERVATION_LIMIT"},
		{reservation.ErrStateConflict, http.StatusConflict, "STATE_CONFLICT"},
		{fmt.Errorf("reserve: %w", reservation.ErrNodeExpired), http.StatusBadRequest, "NODE_EXPIRED"},
		{ingest.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{engine.ErrInvalidLocation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{errors.New("database is locked"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode+"/"+tt.err.Error(), func(t *testing.T) {
			router := newTestRouter(t, &fakeEngine{err: tt.err}, nil)
			rec, env := do(t, router, http.MethodPost, "/api/v1/nodes/n-1/reserve", "alice", "")

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if env.Status != "error" || env.Error == nil || env.Error.Code != tt.wantCode {
				t.Fatalf("response = %+v, want code %s", env, tt.wantCode)
			}
			if tt.wantCode == "INTERNAL_ERROR" && strings.Contains(env.Error.Message, "locked") {
				t.Errorf("internal error leaked to client: %q", env.Error.Message)
			}
		})
	}
}

func TestArrive_TooFarDetails(t *testing.T) {
	fe := &fakeEngine{err: &reservation.TooFarError{DistanceM: 61.5, LimitM: 50}}
	rec, env := do(t, newTestRouter(t, fe, nil), http.MethodPost,
		"/api/v1/reservations/st-1/arrive", "alice", `{"lat":14.6,"lng":120.98}`)

	if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != "TOO_FAR" {
		t.Fatalf("status = %d, error = %+v", rec.Code, env.Error)
	}
	if got, ok := env.Error.Details["distance_m"].(float64); !ok || got != 61.5 {
		t.Errorf("details = %v, want distance_m 61.5", env.Error.Details)
	}
}

func TestArrive_Body(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCoords bool
	}{
		{"no body", "", http.StatusOK, false},
		{"coordinates", `{"lat":14.6,"lng":120.98}`, http.StatusOK, true},
		{"latitude only", `{"lat":14.6}`, http.StatusBadRequest, false},
		{"latitude out of range", `{"lat":95,"lng":120.98}`, http.StatusBadRequest, false},
		{"unknown field", `{"latitude":14.6}`, http.StatusBadRequest, false},
		{"malformed", `{"lat":`, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := &fakeEngine{}
			rec, env := do(t, newTestRouter(t, fe, nil), http.MethodPost,
				"/api/v1/reservations/st-9/arrive", "alice", tt.body)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
					t.Errorf("error = %+v, want VALIDATION_ERROR", env.Error)
				}
				return
			}
			if fe.id != "st-9" || fe.owner != "alice" {
				t.Errorf("engine called with owner=%q id=%q", fe.owner, fe.id)
			}
			if (fe.lat != nil) != tt.wantCoords {
				t.Errorf("lat passed = %v, want %v", fe.lat != nil, tt.wantCoords)
			}
		})
	}
}

func TestUpdateLocation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"lat":14.5995,"lng":120.9842,"accuracy":8,"speed_mps":1.2,"heading_deg":90}`, http.StatusOK},
		{"zero coordinates are valid", `{"lat":0,"lng":0}`, http.StatusOK},
		{"missing lng", `{"lat":14.5995}`, http.StatusBadRequest},
		{"longitude out of range", `{"lat":14.5,"lng":181}`, http.StatusBadRequest},
		{"negative accuracy", `{"lat":14.5,"lng":120.9,"accuracy":-1}`, http.StatusBadRequest},
		{"heading out of range", `{"lat":14.5,"lng":120.9,"heading_deg":360}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := &fakeEngine{}
			rec, _ := do(t, newTestRouter(t, fe, nil), http.MethodPost, "/api/v1/location", "alice", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if fe.sample == nil || fe.sample.OwnerID != "alice" {
					t.Fatalf("sample = %+v", fe.sample)
				}
			}
		})
	}
}

func TestUpdateLocation_DeviceClockNotForwarded(t *testing.T) {
	fe := &fakeEngine{}
	body := `{"lat":14.5995,"lng":120.9842,"captured_at":"2026-03-10T04:00:00Z"}`
	rec, _ := do(t, newTestRouter(t, fe, nil), http.MethodPost, "/api/v1/location", "alice", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !fe.sample.CapturedAt.IsZero() {
		t.Errorf("CapturedAt = %v, want zero for the engine to stamp", fe.sample.CapturedAt)
	}
}

func TestQueryNodes(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"valid", "?lat=14.5995&lng=120.9842", http.StatusOK},
		{"missing", "", http.StatusBadRequest},
		{"not a number", "?lat=abc&lng=1", http.StatusBadRequest},
		{"out of range", "?lat=91&lng=1", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := &fakeEngine{payload: &models.MapPayload{RegionKey: "r:1", Flagged: true, Warning: "implausible movement"}}
			rec, env := do(t, newTestRouter(t, fe, nil), http.MethodGet, "/api/v1/nodes"+tt.query, "alice", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if fe.id != "14.5995,120.9842" {
				t.Errorf("engine called with %q", fe.id)
			}
			var p models.MapPayload
			if err := json.Unmarshal(env.Data, &p); err != nil {
				t.Fatal(err)
			}
			if !p.Flagged || p.Warning == "" {
				t.Errorf("payload = %+v, want flagged with warning", p)
			}
		})
	}
}

func TestCollect_PassesID(t *testing.T) {
	fe := &fakeEngine{}
	rec, env := do(t, newTestRouter(t, fe, nil), http.MethodPost, "/api/v1/reservations/node-42/collect", "bob", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if fe.owner != "bob" || fe.id != "node-42" {
		t.Errorf("engine called with owner=%q id=%q", fe.owner, fe.id)
	}
	var res models.CollectResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.Rarity != models.RarityRare {
		t.Errorf("Rarity = %q", res.Rarity)
	}
}

func TestRequiresOwner(t *testing.T) {
	router := newTestRouter(t, &fakeEngine{}, nil)
	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/location"},
		{http.MethodGet, "/api/v1/nodes?lat=1&lng=1"},
		{http.MethodPost, "/api/v1/nodes/n-1/reserve"},
		{http.MethodPost, "/api/v1/reservations/r-1/arrive"},
		{http.MethodPost, "/api/v1/reservations/r-1/collect"},
		{http.MethodGet, "/api/v1/ws"},
	}
	for _, p := range paths {
		rec, _ := do(t, router, p.method, p.path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 1
	cfg.RateLimitWindow = time.Minute
	router := newTestRouter(t, &fakeEngine{}, cfg)

	if rec, _ := do(t, router, http.MethodPost, "/api/v1/nodes/n-1/reserve", "alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec, env := do(t, router, http.MethodPost, "/api/v1/nodes/n-1/reserve", "alice", "")
	if rec.Code != http.StatusTooManyRequests || env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Errorf("second request status = %d, error = %+v", rec.Code, env.Error)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		path       string
		wantStatus int
	}{
		{"live", nil, "/api/v1/health/live", http.StatusOK},
		{"ready", fakePinger{}, "/api/v1/health/ready", http.StatusOK},
		{"ready database down", fakePinger{err: errors.New("closed")}, "/api/v1/health/ready", http.StatusServiceUnavailable},
		{"ready without database", nil, "/api/v1/health/ready", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeEngine{}, HandlerOptions{DB: tt.db})
			router := NewRouter(h, auth.NewMiddleware(auth.NewHeaderAuthenticator()), nil).SetupChi()
			rec, env := do(t, router, http.MethodGet, tt.path, "", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if env.Metadata.RequestID == "" {
				t.Error("metadata.request_id is empty")
			}
		})
	}
}

func TestNotFoundAndMethod(t *testing.T) {
	router := newTestRouter(t, &fakeEngine{}, nil)

	if rec, env := do(t, router, http.MethodGet, "/nope", "", ""); rec.Code != http.StatusNotFound || env.Error == nil {
		t.Errorf("unknown route status = %d", rec.Code)
	}
	if rec, _ := do(t, router, http.MethodGet, "/api/v1/nodes/n-1/reserve", "alice", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET reserve status = %d, want 405", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &fakeEngine{}, nil)
	do(t, router, http.MethodPost, "/api/v1/nodes/n-1/reserve", "alice", "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `endpoint="/api/v1/nodes/{nodeID}/reserve"`) {
		t.Error("metrics missing route-pattern endpoint label")
	}
}
