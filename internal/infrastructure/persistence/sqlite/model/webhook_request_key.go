package model

// WebhookRequestKey records claimed request ids when duplicate suppression is on.
type WebhookRequestKey struct {
	RequestID string `gorm:"column:request_id;type:text;primaryKey"`
	ClaimedAt string `gorm:"column:claimed_at;type:text;not null"`
}

func (WebhookRequestKey) TableName() string {
	return "webhook_request_keys"
}
