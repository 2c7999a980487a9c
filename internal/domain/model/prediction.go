package model

import "time"

// TimestampLayout renders prediction timestamps in UTC with microseconds and a trailing Z.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Prediction is the result for one request. A nil label means the
// confidence was below the threshold; the confidence is always set.
type Prediction struct {
	PredictedCategory  *string `json:"predicted_category"`
	CategoryConfidence float64 `json:"category_confidence"`
	PredictedPriority  *string `json:"predicted_priority"`
	PriorityConfidence float64 `json:"priority_confidence"`
	ModelVersion       string  `json:"model_version"`
	Timestamp          string  `json:"timestamp"`
}

// FormatTimestamp converts t to UTC and formats it with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
