package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB holds the request log: lifecycle events and prediction rows.
type DB struct {
	*sql.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL NOT NULL,
		level TEXT,
		code TEXT,
		msg TEXT,
		meta TEXT
	)`,
	// one row per prediction service invocation, HTTP or NATS
	`CREATE TABLE IF NOT EXISTS predictions(
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts REAL NOT NULL,
		trace_id TEXT,
		req_id TEXT,
		worker_id TEXT,
		source TEXT,
		model_id TEXT,
		features_json TEXT,
		label INTEGER,
		probabilities_json TEXT,
		cached INTEGER,
		dur_ms REAL,
		status TEXT,
		error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_ts ON predictions(ts)`,
}

// Open opens (creating if needed) the sqlite file at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply schema to %s: %w", path, err)
		}
	}
	return &DB{db}, nil
}

// Event appends a lifecycle event; meta is stored as JSON.
func (db *DB) Event(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	m := ""
	if meta != nil {
		b, _ := json.Marshal(meta)
		m = string(b)
	}
	_, err := db.ExecContext(ctx, `INSERT INTO events(ts,level,code,msg,meta) VALUES(?,?,?,?,?)`,
		unixSeconds(time.Now()), level, code, msg, m)
	return err
}

func (db *DB) Prediction(ctx context.Context, start time.Time, traceID, reqID, workerID, source, modelID, featuresJSON string,
	label *int, probabilitiesJSON string, cached bool, durMs float64, status, errStr string) error {
	var labelVal sql.NullInt64
	if label != nil {
		labelVal = sql.NullInt64{Int64: int64(*label), Valid: true}
	}
	_, err := db.ExecContext(ctx, `INSERT INTO predictions(
		ts, trace_id, req_id, worker_id, source, model_id, features_json, label, probabilities_json, cached, dur_ms, status, error)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		unixSeconds(start), traceID, reqID, workerID, source, modelID, featuresJSON, labelVal, probabilitiesJSON, cached, durMs, status, errStr)
	return err
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromUnixSeconds converts a stored ts column back to a time.
func FromUnixSeconds(ts float64) time.Time {
	return time.Unix(0, int64(ts*1e9))
}
