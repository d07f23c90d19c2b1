package models

import "time"

// ProcessedEvent records consumer-side event ids so redelivered pubsub
// messages are acked without reprocessing.
type ProcessedEvent struct {
	EventID     string    `gorm:"column:event_id;type:text;primaryKey"`
	Consumer    string    `gorm:"column:consumer;type:text;primaryKey"`
	ProcessedAt time.Time `gorm:"column:processed_at;autoCreateTime"`
}
