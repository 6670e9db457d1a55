package models

import (
	"fmt"
	"time"

	"obd-emissions-monitor/internal/emissions"
)

// Reading is one tick's decoded sensor readout, normalized to physical
// units. Zero MAFGps, FuelRateLh, or Lambda mean the signal was not
// reported this tick; position is nil when the source has no fix.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	SpeedKmh    float64   `json:"speed_kmh"`
	EngineRPM   float64   `json:"engine_rpm"`
	MAFGps      float64   `json:"maf_gps"`
	EngineLoad  float64   `json:"engine_load_pct"` // percent
	ThrottlePct float64   `json:"throttle_pct"`    // percent
	FuelRateLh  float64   `json:"fuel_rate_lh"`
	Lambda      float64   `json:"lambda"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
}

// Sample converts the reading into estimator input. Speed is reported by
// the vehicle in km/h and the estimator works in m/s.
func (r *Reading) Sample(dtSeconds float64) emissions.Sample {
	return emissions.Sample{
		DtS:        dtSeconds,
		SpeedMps:   r.SpeedKmh / 3.6,
		MAFGps:     r.MAFGps,
		FuelRateLh: r.FuelRateLh,
		Lambda:     r.Lambda,
	}
}

// ValidateReading returns a description of every physically impossible
// field value. An empty slice means the reading is usable.
func ValidateReading(r *Reading) []string {
	var errs []string

	if r.SpeedKmh < 0 || r.SpeedKmh > 400 {
		errs = append(errs, fmt.Sprintf("speed out of range: %.1f km/h", r.SpeedKmh))
	}
	// Decode ceilings for the two-byte PIDs.
	if r.EngineRPM < 0 || r.EngineRPM > 16383.75 {
		errs = append(errs, fmt.Sprintf("rpm out of range: %.1f", r.EngineRPM))
	}
	if r.MAFGps < 0 || r.MAFGps > 655.35 {
		errs = append(errs, fmt.Sprintf("maf out of range: %.2f g/s", r.MAFGps))
	}
	if r.EngineLoad < 0 || r.EngineLoad > 100 {
		errs = append(errs, fmt.Sprintf("engine load out of range: %.1f%%", r.EngineLoad))
	}
	if r.ThrottlePct < 0 || r.ThrottlePct > 100 {
		errs = append(errs, fmt.Sprintf("throttle out of range: %.1f%%", r.ThrottlePct))
	}
	if r.FuelRateLh < 0 {
		errs = append(errs, fmt.Sprintf("negative fuel rate: %.2f L/h", r.FuelRateLh))
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		errs = append(errs, fmt.Sprintf("latitude out of range: %.6f", *r.Latitude))
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		errs = append(errs, fmt.Sprintf("longitude out of range: %.6f", *r.Longitude))
	}

	return errs
}

// Tick is one processed step of a trip: the raw reading plus the
// estimator output, as fanned out to live consumers.
type Tick struct {
	Seq     int64                `json:"seq"`
	Reading Reading              `json:"reading"`
	Result  emissions.TickResult `json:"result"`
}

// Trip is the persisted summary of one completed monitoring session.
type Trip struct {
	ID           int64     `json:"id"`
	VehicleID    string    `json:"vehicle_id"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	DistanceKm   float64   `json:"distance_km"`
	TotalCO2G    float64   `json:"total_co2_g"`
	AvgCO2GPerKm *float64  `json:"avg_co2_g_per_km,omitempty"` // nil when no distance accumulated
	MaxSpeedKmh  float64   `json:"max_speed_kmh"`
	TickCount    int       `json:"tick_count"` // accepted ticks only
	CreatedAt    time.Time `json:"created_at"`
}

// RoutePoint is one position fix along a trip's route.
type RoutePoint struct {
	TripID    int64     `json:"trip_id"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	SpeedKmh  float64   `json:"speed_kmh"`
}

// TripQuery holds filter parameters for trip searches.
type TripQuery struct {
	VehicleID     string
	Since         time.Time
	Until         time.Time
	MinDistanceKm float64
	Limit         int
	Offset        int
}

// FleetStats aggregates every stored trip. AvgCO2GPerKm is the
// distance-weighted fleet intensity, nil until any distance is stored.
type FleetStats struct {
	TripCount       int      `json:"trip_count"`
	TotalDistanceKm float64  `json:"total_distance_km"`
	TotalCO2G       float64  `json:"total_co2_g"`
	AvgCO2GPerKm    *float64 `json:"avg_co2_g_per_km,omitempty"`
	MaxSpeedKmh     float64  `json:"max_speed_kmh"`
}
