package dashboard

import (
	"context"
	"fmt"
	"strconv"
)

const placeholder = "--"

type Service interface {
	Summary(ctx context.Context, userID string) (*Summary, error)
	RecordLog(ctx context.Context, l *HealthLog) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Summary(ctx context.Context, userID string) (*Summary, error) {
	logs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var latest *HealthLog
	if len(logs) > 0 {
		latest = &logs[0]
	}

	activity := make([]ActivityEntry, 0, len(logs))
	for _, l := range logs {
		title := "Vitals check"
		if l.Symptoms != nil && *l.Symptoms != "" {
			title = *l.Symptoms
		}
		activity = append(activity, ActivityEntry{
			ID:          l.ID,
			Title:       title,
			Timestamp:   l.Timestamp,
			HeartRate:   l.HeartRate,
			Temperature: l.Temperature,
		})
	}

	return &Summary{
		Latest:   latest,
		Vitals:   vitals(latest),
		Activity: activity,
	}, nil
}

func (s *service) RecordLog(ctx context.Context, l *HealthLog) error {
	return s.repo.Insert(ctx, l)
}

// vitals builds the four cards. Missing or zero readings show as "--";
// blood pressure needs both readings.
func vitals(l *HealthLog) []Vital {
	hr, sys, dia, oxy := placeholder, placeholder, placeholder, placeholder
	temp := placeholder
	if l != nil {
		hr = intValue(l.HeartRate)
		oxy = intValue(l.OxygenLevel)
		if l.Temperature != nil && *l.Temperature != 0 {
			temp = strconv.FormatFloat(*l.Temperature, 'f', -1, 64)
		}
		sys = intValue(l.BloodPressureSystolic)
		dia = intValue(l.BloodPressureDiastolic)
	}

	bp := placeholder
	if sys != placeholder && dia != placeholder {
		bp = fmt.Sprintf("%s/%s", sys, dia)
	}

	return []Vital{
		{Label: "Heart Rate", Value: hr, Unit: "bpm"},
		{Label: "Blood Pressure", Value: bp, Unit: "mmHg"},
		{Label: "Temperature", Value: temp, Unit: "°F"},
		{Label: "Oxygen", Value: oxy, Unit: "%"},
	}
}

func intValue(v *int) string {
	if v == nil || *v == 0 {
		return placeholder
	}
	return strconv.Itoa(*v)
}
