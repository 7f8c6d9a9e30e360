package domain

import "time"

// RecyclingEvent is one accepted scan. It is immutable once written;
// PointsAwarded is frozen at the rate in force when it was recorded.
type RecyclingEvent struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Material      Material  `json:"material"`
	Quantity      int       `json:"quantity"`
	PointsAwarded int64     `json:"points_awarded"`
	Timestamp     time.Time `json:"timestamp"`
}
