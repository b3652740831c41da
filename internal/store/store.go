// Package store persists detections and registered vehicles in sqlite.
package store

import (
	"database/sql"
	"fmt"
	"image"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vigia-labs/plategate/internal/pipeline"
)

const timeLayout = "2006-01-02 15:04:05"

// DB wraps the sqlite handle with the LPR schema.
type DB struct {
	*sql.DB
}

// Detection is one persisted row from lpr_detections.
type Detection struct {
	Timestamp          time.Time `json:"timestamp"`
	Plate              string    `json:"plate"`
	Valid              bool      `json:"valid"`
	DetectorConfidence float64   `json:"confidence"`
	OCRConfidence      float64   `json:"plate_score"`
	VehicleBox         string    `json:"vehicle_bbox"`
	PlateBox           string    `json:"plate_bbox"`
	Location           string    `json:"camera_location"`
}

// Vehicle is one registered vehicle.
type Vehicle struct {
	Plate      string
	OwnerName  string
	Authorized bool
	// ValidFrom/ValidUntil bound the authorization window; zero values
	// mean unbounded.
	ValidFrom  time.Time
	ValidUntil time.Time
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS lpr_detections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			plate_text TEXT NOT NULL,
			valid BOOLEAN DEFAULT FALSE,
			confidence REAL,
			plate_score REAL,
			vehicle_bbox TEXT,
			plate_bbox TEXT,
			camera_location TEXT DEFAULT 'entrada_principal'
		);
		CREATE INDEX IF NOT EXISTS idx_detections_timestamp ON lpr_detections(timestamp);
		CREATE INDEX IF NOT EXISTS idx_detections_plate ON lpr_detections(plate_text);

		CREATE TABLE IF NOT EXISTS registered_vehicles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			plate_number TEXT UNIQUE NOT NULL,
			owner_name TEXT,
			authorized BOOLEAN DEFAULT TRUE,
			authorization_start DATE,
			authorization_end DATE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_vehicles_plate ON registered_vehicles(plate_number);

		CREATE TABLE IF NOT EXISTS access_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			detection_id INTEGER,
			plate_number TEXT NOT NULL,
			access_granted BOOLEAN DEFAULT FALSE,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			camera_location TEXT,
			FOREIGN KEY(detection_id) REFERENCES lpr_detections(id)
		);
		CREATE INDEX IF NOT EXISTS idx_access_plate ON access_log(plate_number);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}

	return &DB{db}, nil
}

func bboxString(r image.Rectangle) string {
	return fmt.Sprintf("[%d,%d,%d,%d]", r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}

// InsertDetection records an accepted detection and appends the matching
// access_log row. Implements the pipeline's Store capability.
func (db *DB) InsertDetection(r pipeline.Result) error {
	res, err := db.Exec(
		`INSERT INTO lpr_detections
			(timestamp, plate_text, valid, confidence, plate_score, vehicle_bbox, plate_bbox, camera_location)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp.UTC().Format(timeLayout),
		r.Plate,
		r.Valid,
		r.DetectorConfidence,
		r.OCRConfidence,
		bboxString(r.VehicleBox),
		bboxString(r.PlateBox),
		r.Location,
	)
	if err != nil {
		return fmt.Errorf("store: insert detection: %w", err)
	}

	detectionID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: detection id: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO access_log (detection_id, plate_number, access_granted, timestamp, camera_location)
		 VALUES (?, ?, ?, ?, ?)`,
		detectionID,
		r.Plate,
		r.Authorized,
		r.Timestamp.UTC().Format(timeLayout),
		r.Location,
	)
	if err != nil {
		return fmt.Errorf("store: insert access log: %w", err)
	}
	return nil
}

// IsAuthorized reports whether plate is registered, authorized, and
// inside its authorization date window. Implements the pipeline's
// Authorizer capability.
func (db *DB) IsAuthorized(plate string) (bool, error) {
	var authorized bool
	err := db.QueryRow(
		`SELECT authorized FROM registered_vehicles
		 WHERE plate_number = ?
		   AND (authorization_start IS NULL OR authorization_start <= date('now'))
		   AND (authorization_end IS NULL OR authorization_end >= date('now'))
		 LIMIT 1`,
		plate,
	).Scan(&authorized)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: authorization lookup: %w", err)
	}
	return authorized, nil
}

// RegisterVehicle adds or replaces a registered vehicle.
func (db *DB) RegisterVehicle(v Vehicle) error {
	var start, end any
	if !v.ValidFrom.IsZero() {
		start = v.ValidFrom.UTC().Format("2006-01-02")
	}
	if !v.ValidUntil.IsZero() {
		end = v.ValidUntil.UTC().Format("2006-01-02")
	}
	_, err := db.Exec(
		`INSERT INTO registered_vehicles (plate_number, owner_name, authorized, authorization_start, authorization_end)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(plate_number) DO UPDATE SET
			owner_name = excluded.owner_name,
			authorized = excluded.authorized,
			authorization_start = excluded.authorization_start,
			authorization_end = excluded.authorization_end`,
		v.Plate, v.OwnerName, v.Authorized, start, end,
	)
	if err != nil {
		return fmt.Errorf("store: register vehicle %s: %w", v.Plate, err)
	}
	return nil
}

// RecentDetections returns detections from the last given hours, newest
// first, capped at limit rows.
func (db *DB) RecentDetections(hours, limit int) ([]Detection, error) {
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT timestamp, plate_text, valid, confidence, plate_score, vehicle_bbox, plate_bbox, camera_location
		 FROM lpr_detections
		 WHERE timestamp >= datetime('now', ?)
		 ORDER BY timestamp DESC
		 LIMIT ?`,
		fmt.Sprintf("-%d hours", hours),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent detections: %w", err)
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		var d Detection
		var ts string
		if err := rows.Scan(&ts, &d.Plate, &d.Valid, &d.DetectorConfidence, &d.OCRConfidence,
			&d.VehicleBox, &d.PlateBox, &d.Location); err != nil {
			return nil, fmt.Errorf("store: scan detection: %w", err)
		}
		if t, err := time.Parse(timeLayout, ts); err == nil {
			d.Timestamp = t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
