// Package db persists completed trips and their routes in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"obd-emissions-monitor/internal/models"
)

// Database wraps the SQLite connection.
type Database struct {
	conn *sql.DB
}

// New opens (or creates) the trip database at dbPath.
func New(dbPath string) (*Database, error) {
	// WAL keeps reads cheap while a trip save is in flight.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite works best with a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}
	if err := db.initialize(); err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return db, nil
}

func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trips (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vehicle_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		distance_km REAL NOT NULL,
		total_co2_g REAL NOT NULL,
		avg_co2_g_per_km REAL,
		max_speed_kmh REAL NOT NULL,
		tick_count INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS route_points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trip_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		speed_kmh REAL NOT NULL,
		FOREIGN KEY (trip_id) REFERENCES trips(id)
	);

	CREATE INDEX IF NOT EXISTS idx_trips_vehicle_id ON trips(vehicle_id);
	CREATE INDEX IF NOT EXISTS idx_trips_started_at ON trips(started_at);
	CREATE INDEX IF NOT EXISTS idx_route_points_trip_seq ON route_points(trip_id, seq);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *Database) Close() error {
	return db.conn.Close()
}

// SaveTrip stores a finished trip and its route in one transaction and
// fills in the trip ID. Trips are written exactly once, at trip end.
func (db *Database) SaveTrip(t *models.Trip, points []models.RoutePoint) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var avg sql.NullFloat64
	if t.AvgCO2GPerKm != nil {
		avg = sql.NullFloat64{Float64: *t.AvgCO2GPerKm, Valid: true}
	}

	res, err := tx.Exec(`
		INSERT INTO trips
		(vehicle_id, started_at, ended_at, distance_km, total_co2_g,
		 avg_co2_g_per_km, max_speed_kmh, tick_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.VehicleID, t.StartedAt, t.EndedAt, t.DistanceKm, t.TotalCO2G,
		avg, t.MaxSpeedKmh, t.TickCount)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id

	stmt, err := tx.Prepare(`
		INSERT INTO route_points (trip_id, seq, timestamp, latitude, longitude, speed_kmh)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.Exec(id, p.Seq, p.Timestamp, p.Latitude, p.Longitude, p.SpeedKmh); err != nil {
			return fmt.Errorf("insert route point %d: %w", p.Seq, err)
		}
	}

	return tx.Commit()
}

// GetTrip retrieves one trip by ID.
func (db *Database) GetTrip(id int64) (*models.Trip, error) {
	row := db.conn.QueryRow(`
		SELECT id, vehicle_id, started_at, ended_at, distance_km, total_co2_g,
		       avg_co2_g_per_km, max_speed_kmh, tick_count, created_at
		FROM trips WHERE id = ?
	`, id)

	t, err := scanTrip(row)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListTrips returns trips matching the query, newest first.
func (db *Database) ListTrips(q models.TripQuery) ([]models.Trip, error) {
	var conditions []string
	var args []interface{}

	baseQuery := `
		SELECT id, vehicle_id, started_at, ended_at, distance_km, total_co2_g,
		       avg_co2_g_per_km, max_speed_kmh, tick_count, created_at
		FROM trips
	`

	if q.VehicleID != "" {
		conditions = append(conditions, "vehicle_id = ?")
		args = append(args, q.VehicleID)
	}
	if !q.Since.IsZero() {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, q.Since)
	}
	if !q.Until.IsZero() {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, q.Until)
	}
	if q.MinDistanceKm > 0 {
		conditions = append(conditions, "distance_km >= ?")
		args = append(args, q.MinDistanceKm)
	}

	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	baseQuery += " ORDER BY started_at DESC"

	if q.Limit > 0 {
		baseQuery += fmt.Sprintf(" LIMIT %d", q.Limit)
		if q.Offset > 0 {
			baseQuery += fmt.Sprintf(" OFFSET %d", q.Offset)
		}
	}

	rows, err := db.conn.Query(baseQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

// GetRoute returns a trip's route points in sequence order.
func (db *Database) GetRoute(tripID int64) ([]models.RoutePoint, error) {
	rows, err := db.conn.Query(`
		SELECT trip_id, seq, timestamp, latitude, longitude, speed_kmh
		FROM route_points WHERE trip_id = ? ORDER BY seq
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []models.RoutePoint
	for rows.Next() {
		var p models.RoutePoint
		if err := rows.Scan(&p.TripID, &p.Seq, &p.Timestamp, &p.Latitude, &p.Longitude, &p.SpeedKmh); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// GetFleetStats aggregates all stored trips. The average intensity is
// distance-weighted: total CO2 over total distance, NULL with no distance.
func (db *Database) GetFleetStats() (*models.FleetStats, error) {
	row := db.conn.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(distance_km), 0),
		       COALESCE(SUM(total_co2_g), 0),
		       COALESCE(MAX(max_speed_kmh), 0)
		FROM trips
	`)

	var s models.FleetStats
	if err := row.Scan(&s.TripCount, &s.TotalDistanceKm, &s.TotalCO2G, &s.MaxSpeedKmh); err != nil {
		return nil, err
	}
	if s.TotalDistanceKm > 0 {
		avg := s.TotalCO2G / s.TotalDistanceKm
		s.AvgCO2GPerKm = &avg
	}
	return &s, nil
}

// DeleteTrip removes a trip and its route points.
func (db *Database) DeleteTrip(id int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM route_points WHERE trip_id = ?", id); err != nil {
		return fmt.Errorf("delete route points: %w", err)
	}
	res, err := tx.Exec("DELETE FROM trips WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete trip: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(row rowScanner) (*models.Trip, error) {
	var t models.Trip
	var avg sql.NullFloat64
	err := row.Scan(&t.ID, &t.VehicleID, &t.StartedAt, &t.EndedAt, &t.DistanceKm,
		&t.TotalCO2G, &avg, &t.MaxSpeedKmh, &t.TickCount, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		t.AvgCO2GPerKm = &avg.Float64
	}
	return &t, nil
}
