// Package trip runs a monitoring session: it polls a telemetry source,
// feeds each reading to the emissions estimator, fans the resulting
// ticks out to live consumers, and builds the trip record at the end.
package trip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"obd-emissions-monitor/internal/emissions"
	"obd-emissions-monitor/internal/models"
)

// Source delivers one reading per call. Read blocks until a reading is
// available and returns io.EOF when the source is exhausted.
type Source interface {
	Read() (models.Reading, error)
	Close() error
}

// Session drives one trip. It owns the estimator and is the only caller
// of IngestTick, which keeps the estimator's single-owner contract; all
// sink callbacks run on the session goroutine.
type Session struct {
	source   Source
	est      *emissions.Estimator
	interval time.Duration
	vehicle  string
	log      *zap.Logger
	sinks    []func(models.Tick)
	now      func() time.Time

	startedAt   time.Time
	lastTS      time.Time
	seq         int64
	tickCount   int
	maxSpeedKmh float64
	route       []models.RoutePoint
}

// NewSession prepares a session over the source. Interval is the poll
// cadence; an interval of zero ticks as fast as the source delivers,
// which is how drive logs are replayed.
func NewSession(source Source, vehicle string, interval time.Duration, log *zap.Logger) *Session {
	return &Session{
		source:   source,
		est:      emissions.New(),
		interval: interval,
		vehicle:  vehicle,
		log:      log,
		now:      time.Now,
	}
}

// OnTick registers a consumer for every processed tick. Register before
// Run; sinks are invoked in registration order.
func (s *Session) OnTick(fn func(models.Tick)) {
	s.sinks = append(s.sinks, fn)
}

// Run polls the source until the context is cancelled, the source is
// exhausted, or the source fails. Accumulated state survives all three:
// the caller finishes the trip either way.
func (s *Session) Run(ctx context.Context) error {
	s.startedAt = s.now()
	s.est.Reset()

	var tick <-chan time.Time
	if s.interval > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		reading, err := s.source.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}

		s.ingest(reading)

		if tick == nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
	}
}

// ingest processes one reading: derive dt from consecutive timestamps,
// run the estimator, track route and max speed, and fan the tick out.
// The first reading has no predecessor, so its dt of zero makes it the
// session baseline via the estimator's own guard.
func (s *Session) ingest(reading models.Reading) {
	if reading.Timestamp.IsZero() {
		reading.Timestamp = s.now()
	}
	if errs := models.ValidateReading(&reading); len(errs) > 0 {
		s.log.Warn("suspect reading", zap.Strings("problems", errs))
	}

	var dt float64
	if !s.lastTS.IsZero() {
		dt = reading.Timestamp.Sub(s.lastTS).Seconds()
	}
	s.lastTS = reading.Timestamp

	result := s.est.IngestTick(reading.Sample(dt))
	s.seq++

	if !result.Stale {
		s.tickCount++
		if reading.SpeedKmh > s.maxSpeedKmh {
			s.maxSpeedKmh = reading.SpeedKmh
		}
	}
	if reading.Latitude != nil && reading.Longitude != nil {
		s.route = append(s.route, models.RoutePoint{
			Seq:       s.seq,
			Timestamp: reading.Timestamp,
			Latitude:  *reading.Latitude,
			Longitude: *reading.Longitude,
			SpeedKmh:  reading.SpeedKmh,
		})
	}

	t := models.Tick{Seq: s.seq, Reading: reading, Result: result}
	for _, fn := range s.sinks {
		fn(t)
	}
}

// Summary exposes the estimator totals without consuming a tick.
func (s *Session) Summary() emissions.Summary {
	return s.est.Summary()
}

// Finish closes the source and builds the trip record and its route from
// the estimator summary plus session-tracked metadata.
func (s *Session) Finish() (models.Trip, []models.RoutePoint) {
	if err := s.source.Close(); err != nil {
		s.log.Warn("close source", zap.Error(err))
	}

	endedAt := s.lastTS
	if endedAt.IsZero() {
		endedAt = s.now()
	}

	sum := s.est.Summary()
	return models.Trip{
		VehicleID:    s.vehicle,
		StartedAt:    s.startedAt,
		EndedAt:      endedAt,
		DistanceKm:   sum.DistanceKm,
		TotalCO2G:    sum.TotalCO2G,
		AvgCO2GPerKm: sum.AvgCO2GPerKm,
		MaxSpeedKmh:  s.maxSpeedKmh,
		TickCount:    s.tickCount,
	}, s.route
}
