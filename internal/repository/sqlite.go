package repository

import (
	"context"
	"database/sql"

	"github.com/aigoflow/classifier-service/internal/models"
	"github.com/aigoflow/classifier-service/internal/store"
)

// SQLiteRepository implements Repository interface using SQLite
type SQLiteRepository struct {
	db             *store.DB
	predictionRepo PredictionRepositoryInterface
	eventRepo      EventRepositoryInterface
}

func NewSQLiteRepository(db *store.DB) Repository {
	return &SQLiteRepository{
		db:             db,
		predictionRepo: &SQLitePredictionRepository{db: db},
		eventRepo:      &SQLiteEventRepository{db: db},
	}
}

func (r *SQLiteRepository) Prediction() PredictionRepositoryInterface {
	return r.predictionRepo
}

func (r *SQLiteRepository) Event() EventRepositoryInterface {
	return r.eventRepo
}

// SQLitePredictionRepository handles prediction logging
type SQLitePredictionRepository struct {
	db *store.DB
}

func (r *SQLitePredictionRepository) LogPrediction(ctx context.Context, log *models.PredictionLog) error {
	return r.db.Prediction(ctx,
		log.Timestamp,
		log.TraceID,
		log.ReqID,
		log.WorkerID,
		log.Source,
		log.ModelID,
		log.FeaturesJSON,
		log.Label,
		log.ProbabilitiesJSON,
		log.Cached,
		log.DurationMs,
		log.Status,
		log.Error,
	)
}

func (r *SQLitePredictionRepository) GetPredictionLogs(ctx context.Context, limit int) ([]*models.PredictionLog, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ts,trace_id,req_id,worker_id,source,model_id,features_json,label,probabilities_json,cached,dur_ms,status,error FROM predictions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*models.PredictionLog{}
	for rows.Next() {
		var log models.PredictionLog
		var tsFloat float64
		var label sql.NullInt64

		if err := rows.Scan(
			&tsFloat, &log.TraceID, &log.ReqID, &log.WorkerID, &log.Source, &log.ModelID,
			&log.FeaturesJSON, &label, &log.ProbabilitiesJSON, &log.Cached,
			&log.DurationMs, &log.Status, &log.Error,
		); err != nil {
			return nil, err
		}
		log.Timestamp = store.FromUnixSeconds(tsFloat)
		if label.Valid {
			v := int(label.Int64)
			log.Label = &v
		}
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

// SQLiteEventRepository handles event logging
type SQLiteEventRepository struct {
	db *store.DB
}

func (r *SQLiteEventRepository) LogEvent(ctx context.Context, level, code, msg string, meta map[string]interface{}) error {
	return r.db.Event(ctx, level, code, msg, meta)
}

func (r *SQLiteEventRepository) GetEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ts,level,code,msg,meta FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var e models.Event
		var tsFloat float64
		if err := rows.Scan(&tsFloat, &e.Level, &e.Code, &e.Message, &e.MetaJSON); err != nil {
			return nil, err
		}
		e.Timestamp = store.FromUnixSeconds(tsFloat)
		events = append(events, &e)
	}
	return events, rows.Err()
}
