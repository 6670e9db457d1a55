package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"obd-emissions-monitor/internal/db"
	"obd-emissions-monitor/internal/models"
)

func testServer(t *testing.T) (*Server, *db.Database) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "trips.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewServer(database, zap.NewNop()), database
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body: %s", rec.Body.String())
	return rec, resp
}

func storedTrip(t *testing.T, database *db.Database) models.Trip {
	t.Helper()
	avg := 200.0
	trip := models.Trip{
		VehicleID:    "car-1",
		StartedAt:    time.Now().Add(-time.Hour).UTC(),
		EndedAt:      time.Now().UTC(),
		DistanceKm:   10,
		TotalCO2G:    2000,
		AvgCO2GPerKm: &avg,
		MaxSpeedKmh:  88,
		TickCount:    3600,
	}
	points := []models.RoutePoint{
		{Seq: 1, Timestamp: trip.StartedAt, Latitude: 51.0, Longitude: 3.7, SpeedKmh: 30},
	}
	require.NoError(t, database.SaveTrip(&trip, points))
	return trip
}

func TestHandleHealth(t *testing.T) {
	s, _ := testServer(t)

	rec, resp := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.True(t, resp.Success)
}

func TestHandleListTrips(t *testing.T) {
	s, database := testServer(t)

	_, resp := doRequest(t, s, http.MethodGet, "/api/v1/trips", nil)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Data, "no trips stored yet")

	storedTrip(t, database)
	rec, resp := doRequest(t, s, http.MethodGet, "/api/v1/trips?vehicle=car-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 1, resp.Meta.Total)

	_, resp = doRequest(t, s, http.MethodGet, "/api/v1/trips?vehicle=other-car", nil)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Data)
}

func TestHandleGetTrip(t *testing.T) {
	s, database := testServer(t)
	trip := storedTrip(t, database)

	rec, resp := doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/v1/trips/%d", trip.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var got models.Trip
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, trip.ID, got.ID)
	assert.Equal(t, "car-1", got.VehicleID)
	require.NotNil(t, got.AvgCO2GPerKm)
	assert.InDelta(t, 200.0, *got.AvgCO2GPerKm, 1e-9)

	rec, resp = doRequest(t, s, http.MethodGet, "/api/v1/trips/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)

	rec, _ = doRequest(t, s, http.MethodGet, "/api/v1/trips/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetRoute(t *testing.T) {
	s, database := testServer(t)
	trip := storedTrip(t, database)

	rec, resp := doRequest(t, s, http.MethodGet, fmt.Sprintf("/api/v1/trips/%d/route", trip.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var points []models.RoutePoint
	require.NoError(t, json.Unmarshal(data, &points))
	require.Len(t, points, 1)
	assert.Equal(t, trip.ID, points[0].TripID)
}

func TestHandleDeleteTrip(t *testing.T) {
	s, database := testServer(t)
	trip := storedTrip(t, database)

	rec, resp := doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/v1/trips/%d", trip.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = doRequest(t, s, http.MethodDelete, fmt.Sprintf("/api/v1/trips/%d", trip.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStats(t *testing.T) {
	s, database := testServer(t)
	storedTrip(t, database)

	rec, resp := doRequest(t, s, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var stats models.FleetStats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 1, stats.TripCount)
	assert.InDelta(t, 10.0, stats.TotalDistanceKm, 1e-9)
}

func TestHandleDecode(t *testing.T) {
	s, _ := testServer(t)

	body, _ := json.Marshal(map[string]string{"pid": "0D", "response": "41 0D 32"})
	rec, resp := doRequest(t, s, http.MethodPost, "/api/v1/decode", body)
	require.Equal(t, http.StatusOK, rec.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "0D", data["pid"])
	assert.Equal(t, "Vehicle speed", data["name"])
	assert.Equal(t, "km/h", data["unit"])
	assert.InDelta(t, 50.0, data["value"].(float64), 1e-9)

	body, _ = json.Marshal(map[string]string{"pid": "zz", "response": ""})
	rec, _ = doRequest(t, s, http.MethodPost, "/api/v1/decode", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doRequest(t, s, http.MethodPost, "/api/v1/decode", []byte("{broken"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleLive_WithoutSession(t *testing.T) {
	s, _ := testServer(t)

	rec, resp := doRequest(t, s, http.MethodGet, "/api/v1/live", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
}

func TestHub_AttachDetach(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.False(t, hub.Attached())

	hub.Attach()
	assert.True(t, hub.Attached())

	// Broadcasting with no clients is a no-op.
	hub.Broadcast(models.Tick{Seq: 1})

	hub.Detach()
	assert.False(t, hub.Attached())
}
