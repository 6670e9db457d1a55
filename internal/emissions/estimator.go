// Package emissions derives CO2 mass flow and running trip totals from
// normalized vehicle telemetry.
//
// The estimator prefers mass air flow as the fuel-flow signal and falls
// back to a reported fuel rate; a tick with neither is stale and leaves
// the accumulated totals untouched. All error conditions are reported
// through result flags, never through errors or panics, so a momentary
// sensor dropout cannot corrupt or discard an in-flight trip.
package emissions

// Gasoline combustion calibration. These are the canonical constants for
// the whole system; they are applied as-is, never re-derived per tick, and
// there is no runtime recalibration for other fuel types.
const (
	// StoichAFR is the stoichiometric air-fuel mass ratio for gasoline.
	StoichAFR = 14.7
	// FuelDensityGPerL is the mass of one liter of gasoline in grams.
	FuelDensityGPerL = 745.0
	// CO2GramsPerLiterFuel is the CO2 mass emitted per liter of gasoline
	// burned. The factor already encodes the combustion chemistry.
	CO2GramsPerLiterFuel = 2340.0

	// lambdaFloor clamps the commanded equivalence ratio. Leaner values are
	// sensor excursions, not sustained mixture state, and would blow up the
	// MAF-derived fuel flow.
	lambdaFloor = 0.8
)

// Sample is one tick's normalized telemetry input. A zero MAFGps,
// FuelRateLh, or Lambda means the signal was not reported this tick; a
// non-positive fuel-flow signal is treated as missing.
type Sample struct {
	DtS        float64 // elapsed seconds since the previous tick
	SpeedMps   float64 // vehicle speed, m/s
	MAFGps     float64 // mass air flow, g/s; preferred fuel-flow signal
	FuelRateLh float64 // fuel consumption rate, L/h; fallback signal
	Lambda     float64 // commanded equivalence ratio; 0 = not reported
}

// TickResult is the per-tick estimator output: instantaneous CO2 flow and
// intensity plus the running totals after this tick. CO2GPerKm is nil at
// standstill and AvgCO2GPerKm is nil until distance accumulates; both are
// undefined there, not zero.
type TickResult struct {
	CO2Gps       float64  `json:"co2_gps"`
	CO2GPerKm    *float64 `json:"co2_g_per_km,omitempty"`
	TotalCO2G    float64  `json:"total_co2_g"`
	DistanceKm   float64  `json:"distance_km"`
	AvgCO2GPerKm *float64 `json:"avg_co2_g_per_km,omitempty"`
	UsedMAF      bool     `json:"used_maf"`
	UsedFuelRate bool     `json:"used_fuel_rate"`
	Stale        bool     `json:"stale"`
}

// Summary is a read-only snapshot of the running totals.
type Summary struct {
	TotalCO2G    float64  `json:"total_co2_g"`
	DistanceKm   float64  `json:"distance_km"`
	AvgCO2GPerKm *float64 `json:"avg_co2_g_per_km,omitempty"`
}

// Estimator accumulates CO2 mass and distance for a single trip. Construct
// one per trip and reset it at trip start.
//
// The estimator is a sequential state machine with no internal locking:
// exactly one caller may drive IngestTick at a time. Callers with multiple
// producers must serialize access themselves.
type Estimator struct {
	totalCO2G  float64
	distanceKm float64
}

// New returns a fresh estimator with zeroed totals.
func New() *Estimator {
	return &Estimator{}
}

// IngestTick consumes one telemetry sample and returns the instantaneous
// CO2 figures plus the updated running totals.
//
// Ticks with a non-positive elapsed time or negative speed, and ticks
// without a usable fuel-flow signal, are rejected: the result carries the
// prior totals with zero flow and Stale set, and state is unchanged.
func (e *Estimator) IngestTick(s Sample) TickResult {
	if s.DtS <= 0 || s.SpeedMps < 0 {
		return e.staleResult()
	}

	var (
		fuelLps      float64
		usedMAF      bool
		usedFuelRate bool
	)
	switch {
	case s.MAFGps > 0:
		lambda := s.Lambda
		if lambda <= 0 {
			lambda = 1.0
		}
		if lambda < lambdaFloor {
			lambda = lambdaFloor
		}
		fuelGps := s.MAFGps / (StoichAFR * lambda)
		fuelLps = fuelGps / FuelDensityGPerL
		usedMAF = true

	case s.FuelRateLh > 0:
		fuelLps = s.FuelRateLh / 3600
		usedFuelRate = true

	default:
		return e.staleResult()
	}

	co2Gps := fuelLps * CO2GramsPerLiterFuel

	// Intensity is meaningless at standstill: idling emits CO2 but covers
	// no distance, so grams-per-kilometer has no value there.
	var intensity *float64
	if s.SpeedMps > 0 {
		v := co2Gps / s.SpeedMps * 1000
		intensity = &v
	}

	e.totalCO2G += co2Gps * s.DtS
	e.distanceKm += s.SpeedMps * s.DtS / 1000

	return TickResult{
		CO2Gps:       co2Gps,
		CO2GPerKm:    intensity,
		TotalCO2G:    e.totalCO2G,
		DistanceKm:   e.distanceKm,
		AvgCO2GPerKm: e.average(),
		UsedMAF:      usedMAF,
		UsedFuelRate: usedFuelRate,
	}
}

// Reset zeroes the running totals, e.g. at the start of a new trip.
// Idempotent; only the next tick's baseline is affected.
func (e *Estimator) Reset() {
	e.totalCO2G = 0
	e.distanceKm = 0
}

// Summary returns the current totals without consuming a tick or mutating
// state.
func (e *Estimator) Summary() Summary {
	return Summary{
		TotalCO2G:    e.totalCO2G,
		DistanceKm:   e.distanceKm,
		AvgCO2GPerKm: e.average(),
	}
}

// staleResult reports the last known totals with zero instantaneous flow.
func (e *Estimator) staleResult() TickResult {
	return TickResult{
		TotalCO2G:    e.totalCO2G,
		DistanceKm:   e.distanceKm,
		AvgCO2GPerKm: e.average(),
		Stale:        true,
	}
}

// average is the running intensity, nil while no distance has accumulated.
func (e *Estimator) average() *float64 {
	if e.distanceKm <= 0 {
		return nil
	}
	v := e.totalCO2G / e.distanceKm
	return &v
}
