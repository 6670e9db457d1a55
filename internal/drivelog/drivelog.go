// Package drivelog records raw trip readings to a compact CBOR file and
// replays them later. A replayed log carries the original timestamps, so
// running it through a fresh estimator reproduces the trip totals.
package drivelog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"obd-emissions-monitor/internal/models"
)

// record is the on-disk shape of one reading. Integer keys keep the
// per-tick overhead small; timestamps are stored as unix milliseconds.
type record struct {
	UnixMs      int64    `cbor:"1,keyasint"`
	SpeedKmh    float64  `cbor:"2,keyasint"`
	EngineRPM   float64  `cbor:"3,keyasint"`
	MAFGps      float64  `cbor:"4,keyasint,omitempty"`
	EngineLoad  float64  `cbor:"5,keyasint,omitempty"`
	ThrottlePct float64  `cbor:"6,keyasint,omitempty"`
	FuelRateLh  float64  `cbor:"7,keyasint,omitempty"`
	Lambda      float64  `cbor:"8,keyasint,omitempty"`
	Latitude    *float64 `cbor:"9,keyasint,omitempty"`
	Longitude   *float64 `cbor:"10,keyasint,omitempty"`
}

// Recorder appends one CBOR record per tick to a drive log file.
type Recorder struct {
	f   *os.File
	enc *cbor.Encoder
}

// NewRecorder creates (or truncates) the log file at path.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create drive log: %w", err)
	}
	return &Recorder{f: f, enc: cbor.NewEncoder(f)}, nil
}

// Append writes one reading to the log.
func (r *Recorder) Append(reading models.Reading) error {
	rec := record{
		UnixMs:      reading.Timestamp.UnixMilli(),
		SpeedKmh:    reading.SpeedKmh,
		EngineRPM:   reading.EngineRPM,
		MAFGps:      reading.MAFGps,
		EngineLoad:  reading.EngineLoad,
		ThrottlePct: reading.ThrottlePct,
		FuelRateLh:  reading.FuelRateLh,
		Lambda:      reading.Lambda,
		Latitude:    reading.Latitude,
		Longitude:   reading.Longitude,
	}
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

// Close flushes and closes the log file.
func (r *Recorder) Close() error {
	return r.f.Close()
}

// Replayer streams readings back from a drive log in recorded order.
type Replayer struct {
	f   *os.File
	dec *cbor.Decoder
}

// NewReplayer opens the log file at path for reading.
func NewReplayer(path string) (*Replayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open drive log: %w", err)
	}
	return &Replayer{f: f, dec: cbor.NewDecoder(f)}, nil
}

// Read returns the next recorded reading, or io.EOF after the last one.
func (p *Replayer) Read() (models.Reading, error) {
	var rec record
	if err := p.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return models.Reading{}, io.EOF
		}
		return models.Reading{}, fmt.Errorf("decode record: %w", err)
	}

	return models.Reading{
		Timestamp:   time.UnixMilli(rec.UnixMs),
		SpeedKmh:    rec.SpeedKmh,
		EngineRPM:   rec.EngineRPM,
		MAFGps:      rec.MAFGps,
		EngineLoad:  rec.EngineLoad,
		ThrottlePct: rec.ThrottlePct,
		FuelRateLh:  rec.FuelRateLh,
		Lambda:      rec.Lambda,
		Latitude:    rec.Latitude,
		Longitude:   rec.Longitude,
	}, nil
}

// Close closes the log file.
func (p *Replayer) Close() error {
	return p.f.Close()
}
