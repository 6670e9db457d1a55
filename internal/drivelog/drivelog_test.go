package drivelog

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obd-emissions-monitor/internal/models"
)

func sampleReadings(n int) []models.Reading {
	base := time.UnixMilli(1_700_000_000_000)
	lat, lon := 51.05, 3.72

	readings := make([]models.Reading, 0, n)
	for i := 0; i < n; i++ {
		la, lo := lat+float64(i)*1e-4, lon+float64(i)*1e-4
		readings = append(readings, models.Reading{
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			SpeedKmh:    float64(30 + i),
			EngineRPM:   1500 + float64(i)*20,
			MAFGps:      10 + float64(i)*0.5,
			EngineLoad:  35,
			ThrottlePct: 22,
			Lambda:      1.0,
			Latitude:    &la,
			Longitude:   &lo,
		})
	}
	return readings
}

func TestRecordReplayRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trip.drivelog")
	readings := sampleReadings(10)

	rec, err := NewRecorder(path)
	require.NoError(t, err)
	for _, r := range readings {
		require.NoError(t, rec.Append(r))
	}
	require.NoError(t, rec.Close())

	rep, err := NewReplayer(path)
	require.NoError(t, err)
	defer rep.Close()

	for i, want := range readings {
		got, err := rep.Read()
		require.NoError(t, err, "record %d", i)

		assert.True(t, want.Timestamp.Equal(got.Timestamp), "record %d timestamp", i)
		assert.Equal(t, want.SpeedKmh, got.SpeedKmh, "record %d", i)
		assert.Equal(t, want.EngineRPM, got.EngineRPM, "record %d", i)
		assert.Equal(t, want.MAFGps, got.MAFGps, "record %d", i)
		assert.Equal(t, want.EngineLoad, got.EngineLoad, "record %d", i)
		assert.Equal(t, want.ThrottlePct, got.ThrottlePct, "record %d", i)
		assert.Equal(t, want.Lambda, got.Lambda, "record %d", i)
		require.NotNil(t, got.Latitude, "record %d", i)
		assert.Equal(t, *want.Latitude, *got.Latitude, "record %d", i)
		require.NotNil(t, got.Longitude, "record %d", i)
		assert.Equal(t, *want.Longitude, *got.Longitude, "record %d", i)
	}

	_, err = rep.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplayer_OmittedSignalsReadAsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparse.drivelog")

	rec, err := NewRecorder(path)
	require.NoError(t, err)
	// Fuel-rate-only reading: no MAF, no lambda, no position.
	require.NoError(t, rec.Append(models.Reading{
		Timestamp:  time.UnixMilli(1_700_000_000_000),
		SpeedKmh:   50,
		EngineRPM:  1800,
		FuelRateLh: 4.2,
	}))
	require.NoError(t, rec.Close())

	rep, err := NewReplayer(path)
	require.NoError(t, err)
	defer rep.Close()

	got, err := rep.Read()
	require.NoError(t, err)
	assert.Zero(t, got.MAFGps)
	assert.Zero(t, got.Lambda)
	assert.Equal(t, 4.2, got.FuelRateLh)
	assert.Nil(t, got.Latitude)
	assert.Nil(t, got.Longitude)
}

func TestNewReplayer_MissingFile(t *testing.T) {
	_, err := NewReplayer(filepath.Join(t.TempDir(), "absent.drivelog"))
	assert.Error(t, err)
}
