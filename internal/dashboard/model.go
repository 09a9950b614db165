package dashboard

import (
	"time"

	"github.com/google/uuid"
)

// HealthLog is one vitals check or symptom note recorded for a user.
type HealthLog struct {
	ID                     uuid.UUID `json:"id" db:"id"`
	UserID                 string    `json:"user_id" db:"user_id"`
	Timestamp              time.Time `json:"timestamp" db:"recorded_at"`
	HeartRate              *int      `json:"heart_rate,omitempty" db:"heart_rate"`
	BloodPressureSystolic  *int      `json:"blood_pressure_systolic,omitempty" db:"blood_pressure_systolic"`
	BloodPressureDiastolic *int      `json:"blood_pressure_diastolic,omitempty" db:"blood_pressure_diastolic"`
	Temperature            *float64  `json:"temperature,omitempty" db:"temperature"`
	OxygenLevel            *int      `json:"oxygen_level,omitempty" db:"oxygen_level"`
	Symptoms               *string   `json:"symptoms,omitempty" db:"symptoms"`
}

// Vital is one card of the vitals row.
type Vital struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// ActivityEntry is one item of the health timeline.
type ActivityEntry struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Timestamp   time.Time `json:"timestamp"`
	HeartRate   *int      `json:"heart_rate,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// Summary is what the dashboard renders: vitals from the most recent log and
// the full history, newest first.
type Summary struct {
	Latest   *HealthLog      `json:"latest,omitempty"`
	Vitals   []Vital         `json:"vitals"`
	Activity []ActivityEntry `json:"activity"`
}
