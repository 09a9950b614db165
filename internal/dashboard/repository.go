package dashboard

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]HealthLog, error)
	Insert(ctx context.Context, l *HealthLog) error
}

// sqlRepo works against both lib/pq and go-sqlite3; the queries stick to
// numbered placeholders and portable types.
type sqlRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &sqlRepo{db: db}
}

// ListByUser returns the user's logs, most recent first.
func (r *sqlRepo) ListByUser(ctx context.Context, userID string) ([]HealthLog, error) {
	query := `
		SELECT id, user_id, recorded_at, heart_rate, blood_pressure_systolic,
			blood_pressure_diastolic, temperature, oxygen_level, symptoms
		FROM health_logs
		WHERE user_id = $1
		ORDER BY recorded_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query health logs")
	}
	defer rows.Close()

	logs := []HealthLog{}
	for rows.Next() {
		var l HealthLog
		var heartRate, systolic, diastolic, oxy sql.NullInt64
		var temperature sql.NullFloat64
		var symptoms sql.NullString
		if err := rows.Scan(
			&l.ID,
			&l.UserID,
			&l.Timestamp,
			&heartRate,
			&systolic,
			&diastolic,
			&temperature,
			&oxy,
			&symptoms,
		); err != nil {
			return nil, errors.Wrap(err, "scan health log")
		}
		l.HeartRate = nullInt(heartRate)
		l.BloodPressureSystolic = nullInt(systolic)
		l.BloodPressureDiastolic = nullInt(diastolic)
		l.OxygenLevel = nullInt(oxy)
		if temperature.Valid {
			l.Temperature = &temperature.Float64
		}
		if symptoms.Valid {
			l.Symptoms = &symptoms.String
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate health logs")
	}
	return logs, nil
}

func (r *sqlRepo) Insert(ctx context.Context, l *HealthLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO health_logs (id, user_id, recorded_at, heart_rate, blood_pressure_systolic,
			blood_pressure_diastolic, temperature, oxygen_level, symptoms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		l.ID.String(), l.UserID, l.Timestamp, l.HeartRate, l.BloodPressureSystolic,
		l.BloodPressureDiastolic, l.Temperature, l.OxygenLevel, l.Symptoms)
	return errors.Wrap(err, "insert health log")
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
