package model

type WebhookEvent struct {
	EventID    uint64  `gorm:"column:event_id;primaryKey;autoIncrement;index:idx_webhook_events_recent,priority:2"`
	RequestID  string  `gorm:"column:request_id;type:text;not null;index"`
	Author     string  `gorm:"column:author;type:text;not null"`
	Action     string  `gorm:"column:action;type:text;not null"`
	FromBranch *string `gorm:"column:from_branch;type:text"`
	ToBranch   string  `gorm:"column:to_branch;type:text;not null"`
	// OccurredAt is the source timestamp in unix nanoseconds (UTC).
	OccurredAt int64  `gorm:"column:occurred_at;not null;index:idx_webhook_events_recent,priority:1"`
	IngestedAt string `gorm:"column:ingested_at;type:text;not null"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
