package adapter

import (
	"math"
	"math/rand"
	"time"

	"obd-emissions-monitor/internal/models"
)

// Drive cycle phases. The simulator walks idle -> accelerate -> cruise ->
// brake -> idle with randomized phase lengths.
type simPhase int

const (
	phaseIdle simPhase = iota
	phaseAccelerate
	phaseCruise
	phaseBrake
)

// Simulator produces a plausible randomized drive cycle when no real
// adapter is connected. Its readings are shaped exactly like live ones,
// so downstream consumers cannot tell the difference.
type Simulator struct {
	rng *rand.Rand

	// FuelRateOnly suppresses the MAF signal and reports a fuel rate
	// instead, exercising the estimator's fallback chain.
	FuelRateOnly bool

	phase      simPhase
	phaseLeft  int
	speedKmh   float64
	targetKmh  float64
	lat, lon   float64
	headingRad float64
}

// NewSimulator seeds a drive cycle. The same seed replays the same cycle.
func NewSimulator(seed int64) *Simulator {
	rng := rand.New(rand.NewSource(seed))
	return &Simulator{
		rng: rng,
		// Start somewhere around Ghent and wander from there.
		lat:        51.05 + (rng.Float64()-0.5)*0.02,
		lon:        3.72 + (rng.Float64()-0.5)*0.02,
		headingRad: rng.Float64() * 2 * math.Pi,
	}
}

// Read advances the cycle by one second and returns the resulting
// reading. It never fails; the simulated drive runs until the session
// stops it.
func (s *Simulator) Read() (models.Reading, error) {
	s.step()

	rpm := 800 + s.speedKmh*38 + s.rng.Float64()*120
	load := math.Min(100, 12+s.speedKmh*0.55+s.rng.Float64()*8)
	throttle := math.Min(100, load*0.8+s.rng.Float64()*5)

	r := models.Reading{
		Timestamp:   time.Now(),
		SpeedKmh:    s.speedKmh,
		EngineRPM:   rpm,
		EngineLoad:  load,
		ThrottlePct: throttle,
		Latitude:    ptr(s.lat),
		Longitude:   ptr(s.lon),
	}

	if s.FuelRateOnly {
		// Roughly 0.7 L/h at idle up to ~12 L/h at highway load.
		r.FuelRateLh = 0.7 + load*0.11 + s.speedKmh*0.02
	} else {
		// Airflow tracks load; a warm gasoline engine idles near 2.5 g/s.
		r.MAFGps = 2.5 + load*0.45 + s.rng.Float64()*0.8
		r.Lambda = 0.97 + s.rng.Float64()*0.06
	}

	return r, nil
}

// Close implements the source contract; the simulator holds no resources.
func (s *Simulator) Close() error {
	return nil
}

// step moves the drive cycle one tick forward: pick a new phase when the
// current one expires, pull speed toward the phase target, and advance
// the position along a slowly drifting heading.
func (s *Simulator) step() {
	if s.phaseLeft <= 0 {
		s.nextPhase()
	}
	s.phaseLeft--

	switch s.phase {
	case phaseAccelerate:
		s.speedKmh += 4 + s.rng.Float64()*6
		if s.speedKmh > s.targetKmh {
			s.speedKmh = s.targetKmh
		}
	case phaseBrake:
		s.speedKmh -= 6 + s.rng.Float64()*8
		if s.speedKmh < 0 {
			s.speedKmh = 0
		}
	case phaseCruise:
		s.speedKmh += (s.rng.Float64() - 0.5) * 3
		if s.speedKmh < 0 {
			s.speedKmh = 0
		}
	case phaseIdle:
		s.speedKmh = 0
	}

	// One tick is one second; degrees per meter at mid latitudes.
	distM := s.speedKmh / 3.6
	s.headingRad += (s.rng.Float64() - 0.5) * 0.1
	s.lat += distM * math.Cos(s.headingRad) / 111_000
	s.lon += distM * math.Sin(s.headingRad) / (111_000 * math.Cos(s.lat*math.Pi/180))
}

func (s *Simulator) nextPhase() {
	switch s.phase {
	case phaseIdle:
		s.phase = phaseAccelerate
		s.targetKmh = 30 + s.rng.Float64()*90
		s.phaseLeft = 5 + s.rng.Intn(10)
	case phaseAccelerate:
		s.phase = phaseCruise
		s.phaseLeft = 10 + s.rng.Intn(30)
	case phaseCruise:
		s.phase = phaseBrake
		s.phaseLeft = 3 + s.rng.Intn(8)
	case phaseBrake:
		s.phase = phaseIdle
		s.phaseLeft = 2 + s.rng.Intn(6)
	}
}

func ptr(v float64) *float64 {
	return &v
}
